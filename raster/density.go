package raster

import (
	"context"
	"errors"
	"sync"
)

// Density returns the highest total ink coverage of any pixel, as the sum of
// the four channel percentages. Only four-component, non-indexed buffers
// carry ink values; every other buffer reports 0. Pixels removed by a
// color-key mask paint nothing and are skipped.
func Density(buf *SampleBuffer) float64 {
	if buf == nil || buf.Components != 4 || buf.Indexed {
		return 0
	}
	max := 0.0
	for i := 0; i+3 < len(buf.Pix); i += 4 {
		if buf.Mask != nil && buf.Mask[i/4] == 255 {
			continue
		}
		sum := int(buf.Pix[i]) + int(buf.Pix[i+1]) + int(buf.Pix[i+2]) + int(buf.Pix[i+3])
		if d := float64(sum) / 255 * 100; d > max {
			max = d
		}
	}
	return max
}

type densityResult struct {
	density float64
	err     error
}

// Cache memoizes image densities for one validation run, keyed by image
// object identity. Concurrent misses on the same key may both compute.
type Cache struct {
	m sync.Map
}

func NewCache() *Cache { return &Cache{} }

// Density returns the cached density for key, calling compute on a miss.
// Errors are cached as well, except cancellation. A nil key is never cached.
func (c *Cache) Density(key any, compute func() (float64, error)) (float64, error) {
	if key != nil {
		if v, ok := c.m.Load(key); ok {
			r := v.(densityResult)
			return r.density, r.err
		}
	}
	d, err := compute()
	if key != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.m.Store(key, densityResult{density: d, err: err})
	}
	return d, err
}
