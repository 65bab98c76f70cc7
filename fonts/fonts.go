// Package fonts checks that embedded font programs can actually be read.
package fonts

import (
	"errors"
	"fmt"

	"github.com/wudi/preflight/ir/semantic"
)

var (
	// ErrNotEmbedded is returned for descriptors without a font file.
	ErrNotEmbedded = errors.New("fonts: font program not embedded")
	// ErrUnreadable wraps parse failures of an embedded program.
	ErrUnreadable = errors.New("fonts: unreadable font program")
	// ErrUnsupported is returned for FontFile3 subtypes this package does not know.
	ErrUnsupported = errors.New("fonts: unsupported font file format")
)

// Program formats reported by Inspect.
const (
	FormatType1    = "Type1"
	FormatTrueType = "TrueType"
	FormatCFF      = "Type1C"
	FormatCIDCFF   = "CIDFontType0C"
	FormatOpenType = "OpenType"
)

// Program summarizes a parsed font program.
type Program struct {
	Format string
	// Name is the PostScript name stored in the program, if any.
	Name string
	// Glyphs is zero when the format does not reveal a glyph count cheaply.
	Glyphs int
}

// Inspect parses the program referenced by desc.
func Inspect(desc *semantic.FontDescriptor) (*Program, error) {
	if desc == nil || desc.FontFileKey == "" {
		return nil, ErrNotEmbedded
	}
	if desc.FontFileErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, desc.FontFileErr)
	}
	if len(desc.FontFile) == 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrUnreadable, desc.FontFileKey)
	}

	var (
		p   *Program
		err error
	)
	switch desc.FontFileKey {
	case "FontFile":
		p, err = inspectType1(desc.FontFile)
	case "FontFile2":
		p, err = inspectTrueType(desc.FontFile)
	case "FontFile3":
		switch desc.FontFileSubtype {
		case FormatCFF, FormatCIDCFF:
			p, err = inspectCFF(desc.FontFile)
		case FormatOpenType:
			p, err = inspectOpenType(desc.FontFile)
		default:
			return nil, fmt.Errorf("%w: FontFile3 /%s", ErrUnsupported, desc.FontFileSubtype)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, desc.FontFileKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return p, nil
}
