package fonts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-text/typesetting/font/opentype"
	"golang.org/x/image/font/sfnt"
)

var (
	tagCFF  = opentype.NewTag('C', 'F', 'F', ' ')
	tagGlyf = opentype.NewTag('g', 'l', 'y', 'f')
	tagHead = opentype.NewTag('h', 'e', 'a', 'd')
)

// inspectTrueType reads a FontFile2 program.
func inspectTrueType(data []byte) (*Program, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse sfnt: %w", err)
	}
	if f.NumGlyphs() == 0 {
		return nil, errors.New("font has no glyphs")
	}
	return &Program{Format: FormatTrueType, Name: postScriptName(f), Glyphs: f.NumGlyphs()}, nil
}

// inspectOpenType reads a FontFile3 /OpenType program, which may carry
// either CFF or TrueType outlines.
func inspectOpenType(data []byte) (*Program, error) {
	loader, err := opentype.NewLoader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}
	if !loader.HasTable(tagHead) {
		return nil, errors.New("missing head table")
	}
	switch {
	case loader.HasTable(tagCFF):
		raw, err := loader.RawTable(tagCFF)
		if err != nil {
			return nil, fmt.Errorf("read CFF table: %w", err)
		}
		p, err := inspectCFF(raw)
		if err != nil {
			return nil, err
		}
		p.Format = FormatOpenType
		return p, nil
	case loader.HasTable(tagGlyf):
		p, err := inspectTrueType(data)
		if err != nil {
			return nil, err
		}
		p.Format = FormatOpenType
		return p, nil
	}
	return nil, errors.New("no CFF or glyf outlines")
}

func postScriptName(f *sfnt.Font) string {
	var buf sfnt.Buffer
	name, err := f.Name(&buf, sfnt.NameIDPostScript)
	if err != nil {
		return ""
	}
	return name
}
