package semantic

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	utf16BOM = []byte{0xFE, 0xFF}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// DecodeText converts a PDF text string to UTF-8. UTF-16BE and UTF-8 strings
// are recognised by their byte order marks; everything else is read as
// PDFDocEncoding, approximated by Latin-1.
func DecodeText(b []byte) string {
	switch {
	case bytes.HasPrefix(b, utf16BOM):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, utf8BOM):
		return string(b[len(utf8BOM):])
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
