package filters

import (
	"bytes"
	"compress/lzw"
	"context"
	"io"

	tifflzw "golang.org/x/image/tiff/lzw"

	"github.com/wudi/preflight/ir/raw"
)

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

// Decode honours /EarlyChange. The default (1) is the code-width switch TIFF
// uses, which x/image implements; EarlyChange 0 is plain LZW.
func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := 1
	if params != nil {
		if v, ok := intParam(params, "EarlyChange"); ok {
			early = v
		}
	}
	var r io.ReadCloser
	if early == 0 {
		r = lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	} else {
		r = tifflzw.NewReader(bytes.NewReader(in), tifflzw.MSB, 8)
	}
	defer r.Close()
	out, err := readAllLenient(r)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}
