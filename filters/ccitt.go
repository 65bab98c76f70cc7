package filters

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/image/ccitt"

	"github.com/wudi/preflight/ir/raw"
)

type ccittDecoder struct{}

func (ccittDecoder) Name() string { return "CCITTFaxDecode" }
func NewCCITTFaxDecoder() Decoder { return ccittDecoder{} }

// Decode produces one bit per pixel, rows byte aligned, 0 meaning black unless
// /BlackIs1 is set. Mixed 1D/2D Group 3 data (K > 0) is not supported.
func (ccittDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	k, columns, rows := 0, 1728, ccitt.AutoDetectHeight
	if params != nil {
		if v, ok := intParam(params, "K"); ok {
			k = v
		}
		if v, ok := intParam(params, "Columns"); ok && v > 0 {
			columns = v
		}
		if v, ok := intParam(params, "Rows"); ok && v > 0 {
			rows = v
		}
	}
	if k > 0 {
		return nil, UnsupportedError{Filter: "CCITTFaxDecode (K>0)"}
	}
	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	if rows > 0 {
		if err := ValidateImageBounds(columns, rows); err != nil {
			return nil, err
		}
	}
	opts := &ccitt.Options{
		Align:  boolParam(params, "EncodedByteAlign"),
		Invert: boolParam(params, "BlackIs1"),
	}
	r := ccitt.NewReader(bytes.NewReader(in), ccitt.MSB, sf, columns, rows, opts)
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
