package fonts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	type1Headers = [][]byte{[]byte("%!PS-AdobeFont"), []byte("%!FontType1")}
	eexec        = []byte("eexec")
	fontNameKey  = []byte("/FontName")
)

// inspectType1 reads a FontFile program: a cleartext part ending in eexec
// followed by the encrypted part. PFB wrapped programs are unwrapped first.
func inspectType1(data []byte) (*Program, error) {
	if len(data) > 0 && data[0] == 0x80 {
		clear, err := pfbClearText(data)
		if err != nil {
			return nil, err
		}
		data = clear
	}
	ok := false
	for _, h := range type1Headers {
		if bytes.HasPrefix(data, h) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, errors.New("type1: missing PostScript font header")
	}
	end := bytes.Index(data, eexec)
	if end < 0 {
		return nil, errors.New("type1: no eexec section")
	}
	return &Program{Format: FormatType1, Name: type1FontName(data[:end])}, nil
}

// pfbClearText returns the first (ASCII) segment of a PFB file.
func pfbClearText(data []byte) ([]byte, error) {
	if len(data) < 6 || data[0] != 0x80 || data[1] != 1 {
		return nil, fmt.Errorf("type1: invalid pfb segment header % x", data[:min(2, len(data))])
	}
	n := int(binary.LittleEndian.Uint32(data[2:6]))
	if 6+n > len(data) {
		return nil, errors.New("type1: truncated pfb segment")
	}
	return data[6 : 6+n], nil
}

func type1FontName(clear []byte) string {
	i := bytes.Index(clear, fontNameKey)
	if i < 0 {
		return ""
	}
	rest := bytes.TrimLeft(clear[i+len(fontNameKey):], " \t\r\n")
	if len(rest) == 0 || rest[0] != '/' {
		return ""
	}
	rest = rest[1:]
	end := bytes.IndexAny(rest, " \t\r\n/[]{}()<>%")
	if end < 0 {
		end = len(rest)
	}
	return string(rest[:end])
}
