package raster

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/preflight/ir/raw"
	"github.com/wudi/preflight/ir/semantic"
)

func decode(t *testing.T, img *semantic.Image, colorKey []int) *SampleBuffer {
	t.Helper()
	buf, err := NewDecoder(nil, nil).Decode(context.Background(), img, colorKey)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return buf
}

func gray(w, h, bpc int, data []byte) *semantic.Image {
	return &semantic.Image{Width: w, Height: h, BitsPerComponent: bpc, ColorSpace: raw.Name("DeviceGray"), Data: data}
}

func TestUniformCMYKDensity(t *testing.T) {
	tests := []struct{ c, m, y, k byte }{
		{0, 0, 0, 0},
		{255, 255, 255, 255},
		{255, 0, 0, 0},
		{128, 64, 32, 255},
		{200, 200, 200, 200},
		{1, 2, 3, 4},
	}
	for _, tt := range tests {
		px := []byte{tt.c, tt.m, tt.y, tt.k}
		img := &semantic.Image{Width: 3, Height: 2, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceCMYK"), Data: bytes.Repeat(px, 6)}
		got := Density(decode(t, img, nil))
		want := float64(int(tt.c)+int(tt.m)+int(tt.y)+int(tt.k)) / 255 * 100
		if math.Abs(got-want) > 1e-6 {
			t.Errorf("density of %v = %f, want %f", px, got, want)
		}
	}
}

func TestDensityTakesMaximumPixel(t *testing.T) {
	img := &semantic.Image{Width: 2, Height: 1, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceCMYK"),
		Data: []byte{10, 10, 10, 10, 255, 255, 0, 0}}
	if got := Density(decode(t, img, nil)); math.Abs(got-200) > 1e-6 {
		t.Fatalf("density = %f, want 200", got)
	}
}

func TestDensityIgnoresNonCMYK(t *testing.T) {
	rgb := &semantic.Image{Width: 1, Height: 1, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceRGB"), Data: []byte{255, 255, 255}}
	if got := Density(decode(t, rgb, nil)); got != 0 {
		t.Fatalf("RGB density = %f, want 0", got)
	}
	indexed := &semantic.Image{Width: 4, Height: 1, BitsPerComponent: 8,
		ColorSpace: raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceCMYK"), raw.Int(255), raw.Str("")),
		Data:       []byte{255, 255, 255, 255}}
	if got := Density(decode(t, indexed, nil)); got != 0 {
		t.Fatalf("indexed density = %f, want 0", got)
	}
}

func TestStencilOneBit(t *testing.T) {
	// width 10 rows take two bytes; the trailing six bits are padding
	img := &semantic.Image{Width: 10, Height: 2, BitsPerComponent: 1, ImageMask: true,
		Decode: []float64{0, 1}, HasDecode: true,
		Data: []byte{0b10110000, 0b01111111, 0b00000000, 0b11000000}}
	buf := decode(t, img, nil)
	want := []byte{
		255, 0, 255, 255, 0, 0, 0, 0, 0, 255,
		0, 0, 0, 0, 0, 0, 0, 0, 255, 255,
	}
	if diff := cmp.Diff(want, buf.Pix); diff != "" {
		t.Fatalf("stencil samples mismatch (-want +got):\n%s", diff)
	}

	img.Decode = []float64{1, 0}
	inverted := decode(t, img, nil)
	for i := range want {
		if inverted.Pix[i] != 255-want[i] {
			t.Fatalf("decode [1 0] should invert sample %d: got %d", i, inverted.Pix[i])
		}
	}
}

func TestOneBitShortDataLeavesZeros(t *testing.T) {
	buf := decode(t, gray(8, 3, 1, []byte{0xFF}), nil)
	if buf.Pix[7] != 255 || buf.Pix[8] != 0 || len(buf.Pix) != 24 {
		t.Fatalf("unexpected samples %v", buf.Pix)
	}
}

func TestFastPathCopies(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	buf := decode(t, &semantic.Image{Width: 2, Height: 1, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceRGB"), Data: data}, nil)
	if diff := cmp.Diff(data, buf.Pix); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	if px := buf.At(1, 0); px[0] != 4 || px[2] != 6 {
		t.Fatalf("At(1,0) = %v", px)
	}
}

func TestGenericPathDecodeArray(t *testing.T) {
	img := gray(3, 1, 8, []byte{0, 51, 255})
	img.Decode, img.HasDecode = []float64{1, 0}, true
	buf := decode(t, img, nil)
	if diff := cmp.Diff([]byte{255, 204, 0}, buf.Pix); diff != "" {
		t.Fatalf("inverted samples mismatch (-want +got):\n%s", diff)
	}
}

func TestGenericPathRowPadding(t *testing.T) {
	// 4-bit gray, width 3: 12 bits of samples then 4 bits of padding per row
	buf := decode(t, gray(3, 2, 4, []byte{0x12, 0x30, 0x45, 0x60}), nil)
	if diff := cmp.Diff([]byte{17, 34, 51, 68, 85, 102}, buf.Pix); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexedKeepsPaletteIndices(t *testing.T) {
	img := &semantic.Image{Width: 2, Height: 1, BitsPerComponent: 4,
		ColorSpace: raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceRGB"), raw.Int(15), raw.Str("")),
		Data:       []byte{0x3A}}
	buf := decode(t, img, nil)
	if !buf.Indexed {
		t.Fatalf("buffer not marked indexed")
	}
	if diff := cmp.Diff([]byte{3, 10}, buf.Pix); diff != "" {
		t.Fatalf("indices mismatch (-want +got):\n%s", diff)
	}
}

func TestColorKeyMask(t *testing.T) {
	rgb := &semantic.Image{Width: 2, Height: 1, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceRGB"),
		Data: []byte{5, 5, 5, 5, 5, 200}}
	buf := decode(t, rgb, []int{0, 10, 0, 10, 0, 10})
	// the second pixel fails one range, so it is not masked
	if diff := cmp.Diff([]byte{255, 0}, buf.Mask); diff != "" {
		t.Fatalf("mask mismatch (-want +got):\n%s", diff)
	}
	if buf.Pix[5] != 200 {
		t.Fatalf("masking must not alter samples: %v", buf.Pix)
	}
}

func TestDecodeThroughFilters(t *testing.T) {
	var z bytes.Buffer
	w := zlib.NewWriter(&z)
	w.Write([]byte{0, 0, 0, 255})
	w.Close()
	img := &semantic.Image{Width: 1, Height: 1, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceCMYK"),
		Data: z.Bytes(), Filters: []string{"FlateDecode"}}
	if got := Density(decode(t, img, nil)); math.Abs(got-100) > 1e-6 {
		t.Fatalf("density = %f, want 100", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := map[string]*semantic.Image{
		"empty":           gray(1, 1, 8, nil),
		"zero width":      gray(0, 1, 8, []byte{1}),
		"bad depth":       gray(1, 1, 3, []byte{1}),
		"truncated":       gray(4, 4, 4, []byte{0x11}),
		"truncated 8-bit": gray(2, 2, 8, []byte{1, 2, 3}),
		"no colorspace":   {Width: 1, Height: 1, BitsPerComponent: 8, Data: []byte{1}},
		"short 16-bit":    gray(4, 4, 16, []byte{1, 2}),
		"unsupported filter": {Width: 1, Height: 1, BitsPerComponent: 1, ColorSpace: raw.Name("DeviceGray"),
			Data: []byte{1}, Filters: []string{"JBIG2Decode"}},
	}
	for name, img := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewDecoder(nil, nil).Decode(context.Background(), img, nil)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestHugeImagesRejectedBeforeAllocation(t *testing.T) {
	cmyk := func(w, h int) *semantic.Image {
		return &semantic.Image{Width: w, Height: h, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceCMYK"), Data: []byte{0}}
	}
	for _, img := range []*semantic.Image{cmyk(1<<20, 1<<20), cmyk(60000, 60000), cmyk(4000, 4000)} {
		_, err := NewDecoder(nil, nil).Decode(context.Background(), img, nil)
		if !errors.Is(err, ErrDecode) {
			t.Fatalf("%dx%d: expected ErrDecode, got %v", img.Width, img.Height, err)
		}
	}
	_, err := NewDecoder(nil, nil).Decode(context.Background(), cmyk(4000, 4000), []int{0, 1, 0, 1, 0, 1, 0, 1})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("color-keyed: expected ErrDecode, got %v", err)
	}
}

func TestDensitySkipsMaskedPixels(t *testing.T) {
	img := &semantic.Image{Width: 2, Height: 1, BitsPerComponent: 8, ColorSpace: raw.Name("DeviceCMYK"),
		Data: []byte{255, 255, 255, 255, 51, 0, 0, 0}}
	buf := decode(t, img, []int{200, 255, 200, 255, 200, 255, 200, 255})
	if got := Density(buf); math.Abs(got-20) > 1e-6 {
		t.Fatalf("density = %f, want 20 from the unmasked pixel", got)
	}
}

func TestShortColorKeyRejected(t *testing.T) {
	_, err := NewDecoder(nil, nil).Decode(context.Background(), gray(1, 1, 8, []byte{1}), []int{0})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestCacheMemoizes(t *testing.T) {
	c := NewCache()
	calls := 0
	compute := func() (float64, error) {
		calls++
		return 42, nil
	}
	key := raw.Ref(7, 0)
	for i := 0; i < 3; i++ {
		if d, err := c.Density(raw.IdentityOf(key), compute); err != nil || d != 42 {
			t.Fatalf("Density = %f, %v", d, err)
		}
	}
	if calls != 1 {
		t.Fatalf("compute called %d times", calls)
	}

	boom := errors.New("boom")
	failing := func() (float64, error) {
		calls++
		return 0, boom
	}
	c.Density("bad", failing)
	if _, err := c.Density("bad", failing); !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("errors should be cached: err=%v calls=%d", err, calls)
	}

	c.Density(nil, compute)
	c.Density(nil, compute)
	if calls != 4 {
		t.Fatalf("nil keys must not be cached, calls=%d", calls)
	}
}

func TestCacheSkipsCancellation(t *testing.T) {
	c := NewCache()
	calls := 0
	c.Density("k", func() (float64, error) {
		calls++
		return 0, context.Canceled
	})
	c.Density("k", func() (float64, error) {
		calls++
		return 1, nil
	})
	if calls != 2 {
		t.Fatalf("cancelled result was cached")
	}
}
