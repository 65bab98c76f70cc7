package filters

import (
	"errors"

	"github.com/wudi/preflight/ir/raw"
)

type predictorParams struct {
	predictor int
	colors    int
	bpc       int
	columns   int
}

func readPredictorParams(params *raw.DictObj) predictorParams {
	p := predictorParams{predictor: 1, colors: 1, bpc: 8, columns: 1}
	if params == nil {
		return p
	}
	if v, ok := intParam(params, "Predictor"); ok {
		p.predictor = v
	}
	if v, ok := intParam(params, "Colors"); ok && v > 0 {
		p.colors = v
	}
	if v, ok := intParam(params, "BitsPerComponent"); ok && v > 0 {
		p.bpc = v
	}
	if v, ok := intParam(params, "Columns"); ok && v > 0 {
		p.columns = v
	}
	return p
}

func intParam(params *raw.DictObj, key string) (int, bool) {
	v, ok := params.Get(key)
	if !ok {
		return 0, false
	}
	return raw.IntOf(raw.Direct{}, v)
}

func boolParam(params *raw.DictObj, key string) bool {
	if params == nil {
		return false
	}
	v, ok := params.Get(key)
	if !ok {
		return false
	}
	b, ok := v.(raw.BoolObj)
	return ok && b.V
}

func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	p := readPredictorParams(params)
	switch {
	case p.predictor <= 1:
		return data, nil
	case p.predictor == 2:
		return undoTIFFPredictor(data, p)
	case p.predictor >= 10:
		return undoPNGPredictor(data, p)
	}
	return nil, errors.New("unknown predictor")
}

func undoTIFFPredictor(data []byte, p predictorParams) ([]byte, error) {
	if p.bpc != 8 {
		return nil, errors.New("TIFF predictor only supports 8 bits per component")
	}
	rowLen := p.colors * p.columns
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := p.colors; i < rowLen; i++ {
			out[row+i] += out[row+i-p.colors]
		}
	}
	return out, nil
}

func undoPNGPredictor(data []byte, p predictorParams) ([]byte, error) {
	bpp := (p.colors*p.bpc + 7) / 8
	rowLen := (p.colors*p.bpc*p.columns + 7) / 8
	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for off := 0; off+stride <= len(data); off += stride {
		filter := data[off]
		copy(cur, data[off+1:off+stride])
		for i := 0; i < rowLen; i++ {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, errors.New("invalid PNG filter type")
			}
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
