// Package raster decodes image sample streams into normalized component
// buffers and measures their ink density.
package raster

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wudi/preflight/colorspace"
	"github.com/wudi/preflight/filters"
	"github.com/wudi/preflight/ir/raw"
	"github.com/wudi/preflight/ir/semantic"
)

// ErrDecode wraps every failure to turn an image into samples.
var ErrDecode = errors.New("raster: cannot decode image samples")

// SampleBuffer holds decoded samples interleaved by row, column and
// component. Values are 0-255, except that indexed images keep their palette
// indices.
type SampleBuffer struct {
	Width      int
	Height     int
	Components int
	Indexed    bool
	Pix        []byte
	// Mask is set when a color-key mask was applied: 255 marks a masked pixel.
	Mask []byte
}

// At returns the components of pixel (x, y).
func (b *SampleBuffer) At(x, y int) []byte {
	i := (y*b.Width + x) * b.Components
	return b.Pix[i : i+b.Components]
}

// Decoder turns image XObjects into sample buffers.
type Decoder struct {
	doc      raw.Resolver
	pipeline *filters.Pipeline
}

// NewDecoder returns a decoder resolving color spaces through doc and
// undoing stream filters with pipeline. A nil pipeline uses filters.Standard.
func NewDecoder(doc raw.Resolver, pipeline *filters.Pipeline) *Decoder {
	if doc == nil {
		doc = raw.Direct{}
	}
	if pipeline == nil {
		pipeline = filters.Standard(filters.Limits{})
	}
	return &Decoder{doc: doc, pipeline: pipeline}
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// layout is the sample geometry of one image.
type layout struct {
	width, height int
	bpc           int
	comps         int
	indexed       bool
	decode        []float64
	fast          bool
}

// Decode returns the samples of img. colorKey holds min/max pairs of raw
// component values; pixels within every range are recorded in Mask.
func (d *Decoder) Decode(ctx context.Context, img *semantic.Image, colorKey []int) (*SampleBuffer, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, decodeErr("image stream is empty")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, decodeErr("image width and height must be positive, got %dx%d", img.Width, img.Height)
	}
	l, err := d.layout(img)
	if err != nil {
		return nil, err
	}
	if colorKey != nil && len(colorKey) < 2*l.comps {
		return nil, decodeErr("color key mask has %d entries for %d components", len(colorKey), l.comps)
	}
	data, err := d.pipeline.Decode(ctx, img.Data, img.Filters, img.DecodeParms)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(data) == 0 {
		return nil, decodeErr("image stream is empty")
	}
	onebit := l.bpc == 1 && l.comps == 1 && colorKey == nil
	if need := l.size(); !onebit && int64(len(data)) < need {
		return nil, decodeErr("sample data has %d of %d bytes", len(data), need)
	}

	buf := &SampleBuffer{
		Width:      l.width,
		Height:     l.height,
		Components: l.comps,
		Indexed:    l.indexed,
		Pix:        make([]byte, l.width*l.height*l.comps),
	}
	switch {
	case l.fast && colorKey == nil:
		copy(buf.Pix, data)
	case onebit:
		from1Bit(buf, data, l)
	default:
		if err := fromAny(ctx, buf, data, l, colorKey); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// size is the byte length of the packed samples, rows padded to a byte.
func (l layout) size() int64 {
	row := (int64(l.width)*int64(l.comps)*int64(l.bpc) + 7) / 8
	return row * int64(l.height)
}

func (d *Decoder) layout(img *semantic.Image) (layout, error) {
	l := layout{width: img.Width, height: img.Height, bpc: img.BitsPerComponent}
	if err := filters.ValidateImageBounds(l.width, l.height); err != nil {
		return l, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	for _, f := range img.Filters {
		if filters.Produces8BitSamples(f) {
			l.bpc = 8
		}
	}
	switch l.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return l, decodeErr("unsupported bits per component %d", l.bpc)
	}

	var def, def8 []float64
	if img.ImageMask {
		l.comps = 1
		def, def8 = []float64{0, 1}, []float64{0, 1}
	} else {
		n, err := colorspace.Components(d.doc, img.ColorSpace)
		if err != nil || n == 0 {
			return l, decodeErr("color space has no components: %v", err)
		}
		l.comps = n
		l.indexed = colorspace.IsIndexed(d.doc, img.ColorSpace)
		if def, err = colorspace.DefaultDecode(d.doc, img.ColorSpace, l.bpc); err != nil {
			return l, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if def8, err = colorspace.DefaultDecode(d.doc, img.ColorSpace, 8); err != nil {
			return l, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}
	l.decode = decodeArray(img, l.comps, def)
	l.fast = l.bpc == 8 && equal(l.decode, def8)
	return l, nil
}

// decodeArray picks the image's /Decode when it has one pair per component.
// Stencil masks accept a leading pair within [0, 1]. Anything else falls back
// to the color space default.
func decodeArray(img *semantic.Image, comps int, def []float64) []float64 {
	if !img.HasDecode {
		return def
	}
	if len(img.Decode) == 2*comps {
		return img.Decode
	}
	if img.ImageMask && len(img.Decode) >= 2 {
		d0, d1 := img.Decode[0], img.Decode[1]
		if d0 >= 0 && d0 <= 1 && d1 >= 0 && d1 <= 1 {
			return []float64{d0, d1}
		}
	}
	return def
}

func equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func from1Bit(buf *SampleBuffer, data []byte, l layout) {
	var v0, v1 byte = 0, 255
	if !l.indexed && l.decode[0] >= l.decode[1] {
		v0, v1 = 255, 0
	}
	rowLen := (l.width + 7) / 8
	out := 0
	for y := 0; y < l.height; y++ {
		start := y * rowLen
		if start >= len(data) {
			return
		}
		row := data[start:min(start+rowLen, len(data))]
		x := 0
		for _, b := range row {
			for mask := byte(0x80); mask != 0 && x < l.width; mask >>= 1 {
				if b&mask == 0 {
					buf.Pix[out] = v0
				} else {
					buf.Pix[out] = v1
				}
				out++
				x++
			}
		}
		if len(row) != rowLen {
			return
		}
	}
}

func fromAny(ctx context.Context, buf *SampleBuffer, data []byte, l layout, colorKey []int) error {
	br := bitReader{data: data}
	sampleMax := math.Pow(2, float64(l.bpc)) - 1
	padding := 0
	if rem := l.width * l.comps * l.bpc % 8; rem > 0 {
		padding = 8 - rem
	}
	if colorKey != nil {
		buf.Mask = make([]byte, l.width*l.height)
	}

	out := 0
	for y := 0; y < l.height; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for x := 0; x < l.width; x++ {
			masked := true
			for c := 0; c < l.comps; c++ {
				value, ok := br.read(l.bpc)
				if !ok {
					return decodeErr("sample data ends at row %d of %d", y, l.height)
				}
				if colorKey != nil {
					masked = masked && value >= colorKey[2*c] && value <= colorKey[2*c+1]
				}
				dMin, dMax := l.decode[2*c], l.decode[2*c+1]
				v := dMin + float64(value)*((dMax-dMin)/sampleMax)
				if l.indexed {
					buf.Pix[out] = clampByte(round(v))
				} else {
					buf.Pix[out] = clampByte(round((v - math.Min(dMin, dMax)) / math.Abs(dMax-dMin) * 255))
				}
				out++
			}
			if buf.Mask != nil && masked {
				buf.Mask[y*l.width+x] = 255
			}
		}
		br.skip(padding)
	}
	return nil
}

// round rounds half up, so -0.5 becomes 0.
func round(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Floor(v + 0.5)
}

func clampByte(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(v)
}

type bitReader struct {
	data []byte
	pos  int // in bits
}

func (r *bitReader) read(n int) (int, bool) {
	if r.pos+n > len(r.data)*8 {
		return 0, false
	}
	if n == 8 && r.pos%8 == 0 {
		v := int(r.data[r.pos/8])
		r.pos += 8
		return v, true
	}
	v := 0
	for i := 0; i < n; i++ {
		b := r.data[r.pos/8] >> (7 - uint(r.pos%8)) & 1
		v = v<<1 | int(b)
		r.pos++
	}
	return v, true
}

func (r *bitReader) skip(n int) { r.pos += n }
