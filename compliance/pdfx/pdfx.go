// Package pdfx composes the PDF/X rule sets.
package pdfx

import (
	"fmt"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/compliance/rules"
	"github.com/wudi/preflight/engine"
	"github.com/wudi/preflight/ir/semantic"
)

type Level int

const (
	PDFX1a Level = iota
)

func (l Level) String() string {
	switch l {
	case PDFX1a:
		return "PDF/X-1a"
	default:
		return "Unknown"
	}
}

// ParseLevel maps a profile name to its level.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "PDF/X-1a", "X1a", "x1a", "pdfx-1a":
		return PDFX1a, nil
	}
	return 0, fmt.Errorf("pdfx: unknown standard %q", name)
}

// X1a returns the PDF/X-1a:2001 rule set in reporting order.
func X1a() []compliance.Rule {
	colorSpaces := []string{"DeviceCMYK", "DeviceGray", "DeviceN", "Separation"}
	match, err := rules.NewInfoKeysMatch(
		rules.KeyPattern{Key: "GTS_PDFXVersion", Pattern: "PDF/X-1:2001"},
		rules.KeyPattern{Key: "GTS_PDFXConformance", Pattern: "PDF/X-1a:2001"},
		rules.KeyPattern{Key: "Trapped", Pattern: "True|False"},
	)
	if err != nil {
		panic(err) // constant patterns
	}
	return []compliance.Rule{
		rules.NewDocumentVersion("1.3"),
		rules.NoSeparation{},
		rules.OutputIntent{},
		rules.NewColorSpaceText(colorSpaces, nil),
		rules.NewColorSpaceImages(colorSpaces, nil),
		rules.OnlyEmbeddedFonts{},
		rules.NewInfoKeysExist("Title", "CreationDate", "ModDate"),
		match,
		rules.DocumentIdExists{},
		rules.BoxExists{},
		rules.BoxNesting{},
		rules.NoTransferCurves{},
		rules.NewAllowedHalftoneTypes(1, 5),
		rules.NoPostScripts{},
		rules.NoEncryption{},
		rules.NoAnnotationsInsidePageArea{},
		rules.NoActions{},
		rules.NoTransparency{},
	}
}

// Rules returns the rule set of level.
func Rules(level Level) ([]compliance.Rule, error) {
	switch level {
	case PDFX1a:
		return X1a(), nil
	}
	return nil, fmt.Errorf("pdfx: no rule set for %s", level)
}

type validator struct {
	level  Level
	engine *engine.Engine
}

// NewValidator returns a compliance.Validator for level. opts configure the
// underlying engine.
func NewValidator(level Level, opts ...engine.Option) (compliance.Validator, error) {
	rs, err := Rules(level)
	if err != nil {
		return nil, err
	}
	return &validator{level: level, engine: engine.New(rs, opts...)}, nil
}

func (v *validator) Validate(ctx compliance.Context, doc *semantic.Document) (*compliance.Report, error) {
	vs, err := v.engine.Validate(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &compliance.Report{
		Compliant:  len(vs) == 0,
		Standard:   v.level.String(),
		Violations: vs,
	}, nil
}

// Validate checks doc against PDF/X-1a.
func Validate(ctx compliance.Context, doc *semantic.Document, opts ...engine.Option) (*compliance.Report, error) {
	v, err := NewValidator(PDFX1a, opts...)
	if err != nil {
		return nil, err
	}
	return v.Validate(ctx, doc)
}
