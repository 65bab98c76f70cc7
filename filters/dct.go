package filters

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/wudi/preflight/ir/raw"
)

type dctDecoder struct{}

func (dctDecoder) Name() string { return "DCTDecode" }
func NewDCTDecoder() Decoder    { return dctDecoder{} }

// Decode returns interleaved 8-bit samples: one channel for grayscale JPEGs,
// four for CMYK and three for everything else.
func (dctDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if err := ValidateImageBounds(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	switch m := img.(type) {
	case *image.Gray:
		return packRows(m.Pix, m.Stride, b.Dx(), b.Dy()), nil
	case *image.CMYK:
		return packRows(m.Pix, m.Stride, b.Dx()*4, b.Dy()), nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for i := 0; i < len(rgba.Pix); i += 4 {
		out = append(out, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
	}
	return out, nil
}

func packRows(pix []byte, stride, rowLen, rows int) []byte {
	if stride == rowLen {
		return append([]byte(nil), pix[:rowLen*rows]...)
	}
	out := make([]byte, 0, rowLen*rows)
	for y := 0; y < rows; y++ {
		out = append(out, pix[y*stride:y*stride+rowLen]...)
	}
	return out
}
