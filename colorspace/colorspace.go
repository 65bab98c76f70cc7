package colorspace

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/wudi/preflight/ir/raw"
)

// ErrUnresolvable is returned for color space objects with no usable family.
var ErrUnresolvable = errors.New("colorspace: unresolvable color space")

// Color space families.
const (
	DeviceGray = "DeviceGray"
	DeviceRGB  = "DeviceRGB"
	DeviceCMYK = "DeviceCMYK"
	CalGray    = "CalGray"
	CalRGB     = "CalRGB"
	Lab        = "Lab"
	ICCBased   = "ICCBased"
	Indexed    = "Indexed"
	Separation = "Separation"
	DeviceN    = "DeviceN"
	Pattern    = "Pattern"
)

// abbreviations used by inline images
var abbreviations = map[string]string{
	"G":    DeviceGray,
	"RGB":  DeviceRGB,
	"CMYK": DeviceCMYK,
	"I":    Indexed,
}

// maxNesting bounds Indexed -> Indexed chains built from reference cycles.
const maxNesting = 8

func canonical(name string) string {
	if full, ok := abbreviations[name]; ok {
		return full
	}
	return name
}

// head resolves obj and returns its family name and, for array forms, the array.
func head(r raw.Resolver, obj raw.Object) (string, *raw.ArrayObj, error) {
	if obj == nil {
		return "", nil, fmt.Errorf("%w: missing", ErrUnresolvable)
	}
	o, err := r.Resolve(obj)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	switch v := o.(type) {
	case raw.NameObj:
		return canonical(v.Val), nil, nil
	case *raw.ArrayObj:
		if len(v.Items) == 0 {
			return "", nil, fmt.Errorf("%w: empty array", ErrUnresolvable)
		}
		name, ok := raw.NameOf(r, v.Items[0])
		if !ok {
			return "", nil, fmt.Errorf("%w: array head is not a name", ErrUnresolvable)
		}
		return canonical(name), v, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrUnresolvable, o.Type())
}

type result struct {
	name string
	err  error
}

// Resolver classifies color spaces. Results are cached by the identity of
// the underlying object, so one Resolver must not outlive a validation run.
// It is safe for concurrent use.
type Resolver struct {
	doc   raw.Resolver
	cache sync.Map // identity -> result
}

func NewResolver(doc raw.Resolver) *Resolver {
	if doc == nil {
		doc = raw.Direct{}
	}
	return &Resolver{doc: doc}
}

// Resolve returns the family that classifies obj. Indexed spaces are
// classified by their base.
func (c *Resolver) Resolve(obj raw.Object) (string, error) {
	key := raw.IdentityOf(obj)
	if key != nil {
		if v, ok := c.cache.Load(key); ok {
			res := v.(result)
			return res.name, res.err
		}
	}
	name, err := c.resolve(obj, 0)
	if key != nil {
		c.cache.Store(key, result{name: name, err: err})
	}
	return name, err
}

func (c *Resolver) resolve(obj raw.Object, depth int) (string, error) {
	if depth > maxNesting {
		return "", fmt.Errorf("%w: indexed nesting too deep", ErrUnresolvable)
	}
	name, arr, err := head(c.doc, obj)
	if err != nil {
		return "", err
	}
	if name != Indexed || arr == nil {
		return name, nil
	}
	base, ok := arr.Get(1)
	if !ok {
		return "", fmt.Errorf("%w: indexed space without base", ErrUnresolvable)
	}
	return c.resolve(base, depth+1)
}

// Family returns the head family of obj without unwrapping Indexed.
func Family(r raw.Resolver, obj raw.Object) (string, error) {
	name, _, err := head(r, obj)
	return name, err
}

// IsIndexed reports whether obj is an Indexed space.
func IsIndexed(r raw.Resolver, obj raw.Object) bool {
	name, _, err := head(r, obj)
	return err == nil && name == Indexed
}

// Components returns the number of color components per sample.
func Components(r raw.Resolver, obj raw.Object) (int, error) {
	name, arr, err := head(r, obj)
	if err != nil {
		return 0, err
	}
	switch name {
	case DeviceGray, CalGray, Separation, Indexed:
		return 1, nil
	case DeviceRGB, CalRGB, Lab:
		return 3, nil
	case DeviceCMYK:
		return 4, nil
	case Pattern:
		return 0, nil
	case DeviceN:
		if arr != nil {
			if names, ok := raw.ArrayOf(r, elem(arr, 1)); ok {
				return names.Len(), nil
			}
		}
		return 0, fmt.Errorf("%w: DeviceN without colorant names", ErrUnresolvable)
	case ICCBased:
		if arr != nil {
			if d, ok := raw.DictOf(r, elem(arr, 1)); ok {
				if n, ok := raw.IntOf(r, valueOf(d, "N")); ok && n > 0 {
					return n, nil
				}
				if alt, ok := d.Get("Alternate"); ok {
					return Components(r, alt)
				}
			}
		}
		return 0, fmt.Errorf("%w: ICCBased without /N", ErrUnresolvable)
	}
	return 0, fmt.Errorf("%w: unknown family %s", ErrUnresolvable, name)
}

// DefaultDecode returns the decode array an image in obj uses when it does
// not declare one.
func DefaultDecode(r raw.Resolver, obj raw.Object, bitsPerComponent int) ([]float64, error) {
	name, arr, err := head(r, obj)
	if err != nil {
		return nil, err
	}
	switch name {
	case Indexed:
		return []float64{0, math.Pow(2, float64(bitsPerComponent)) - 1}, nil
	case Lab:
		out := []float64{0, 100, -100, 100, -100, 100}
		if arr != nil {
			if d, ok := raw.DictOf(r, elem(arr, 1)); ok {
				if rng, ok := raw.Numbers(r, valueOf(d, "Range")); ok && len(rng) == 4 {
					copy(out[2:], rng)
				}
			}
		}
		return out, nil
	case ICCBased:
		if arr != nil {
			if d, ok := raw.DictOf(r, elem(arr, 1)); ok {
				if rng, ok := raw.Numbers(r, valueOf(d, "Range")); ok && len(rng) > 0 && len(rng)%2 == 0 {
					return rng, nil
				}
			}
		}
	}
	n, err := Components(r, obj)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		out[2*i+1] = 1
	}
	return out, nil
}

// InitialColor returns the color a space starts with after CS or cs.
func InitialColor(r raw.Resolver, obj raw.Object) []float64 {
	name, _, err := head(r, obj)
	if err != nil {
		return nil
	}
	switch name {
	case Pattern:
		return nil
	case DeviceCMYK:
		return []float64{0, 0, 0, 1}
	case Indexed:
		return []float64{0}
	}
	n, err := Components(r, obj)
	if err != nil {
		return nil
	}
	out := make([]float64, n)
	if name == Separation || name == DeviceN {
		for i := range out {
			out[i] = 1
		}
	}
	return out
}

func elem(arr *raw.ArrayObj, i int) raw.Object {
	o, _ := arr.Get(i)
	return o
}

func valueOf(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}
