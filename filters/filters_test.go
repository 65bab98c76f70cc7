package filters

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/preflight/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func predictorParams12(columns int) *raw.DictObj {
	return raw.Dict(
		"Predictor", raw.Int(12),
		"Colors", raw.Int(1),
		"BitsPerComponent", raw.Int(8),
		"Columns", raw.Int(int64(columns)),
	)
}

func TestFlateDecode(t *testing.T) {
	out, err := NewFlateDecoder().Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	in := zlibBytes(t, []byte{1, 10, 12, 20})
	out, err := NewFlateDecoder().Decode(context.Background(), in, predictorParams12(3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if diff := cmp.Diff([]byte{10, 22, 42}, out); diff != "" {
		t.Fatalf("predictor output mismatch (-want +got):\n%s", diff)
	}
}

func TestFlateDecodeUpPredictorAcrossRows(t *testing.T) {
	in := zlibBytes(t, []byte{0, 1, 2, 2, 1, 1})
	out, err := NewFlateDecoder().Decode(context.Background(), in, predictorParams12(2))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 2, 3}, out); diff != "" {
		t.Fatalf("predictor output mismatch (-want +got):\n%s", diff)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	for _, params := range []*raw.DictObj{nil, raw.Dict("EarlyChange", raw.Int(0))} {
		out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), params)
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if !bytes.Equal(out, input) {
			t.Fatalf("unexpected output: %q", out)
		}
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIDecoders(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil || string(out) != "Hello, World!" {
		t.Fatalf("ASCII85: %q %v", out, err)
	}
	out, err = NewASCIIHexDecoder().Decode(context.Background(), []byte("68 65 6c6c 6f7>"), nil)
	if err != nil || string(out) != "hellop" {
		t.Fatalf("ASCIIHex: %q %v", out, err)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	hexed := []byte("")
	for _, b := range zlibBytes(t, []byte("abc")) {
		hexed = append(hexed, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&15])
	}
	p := Standard(Limits{})
	out, err := p.Decode(context.Background(), hexed, []string{"AHx", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if string(out) != "abc" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	p := Standard(Limits{MaxDecompressedSize: 4})
	_, err := p.Decode(context.Background(), zlibBytes(t, []byte("too long")), []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestDCTDecodeGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 10})
	img.SetGray(1, 0, color.Gray{Y: 240})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	out, err := NewDCTDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 gray samples, got %d", len(out))
	}
	if out[0] >= out[1] {
		t.Fatalf("expected dark then light sample, got %v", out)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	_, err := Standard(Limits{}).Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	dict := raw.Dict(
		"Filter", raw.NewArray(raw.Name("ASCII85Decode"), raw.Name("FlateDecode")),
		"DecodeParms", raw.NewArray(raw.NullObj{}, predictorParams12(4)),
	)
	names, params := ExtractFilters(raw.Direct{}, dict)
	if diff := cmp.Diff([]string{"ASCII85Decode", "FlateDecode"}, names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if len(params) != 2 || params[0] != nil || params[1] == nil {
		t.Fatalf("unexpected params %v", params)
	}
}
