package rules

import (
	"errors"
	"sort"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/fonts"
	"github.com/wudi/preflight/ir/semantic"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NoPostScripts rejects PostScript XObjects in page resources.
type NoPostScripts struct{}

func (NoPostScripts) ID() string { return "NoPostScripts" }

func (r NoPostScripts) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		if p.Resources == nil {
			continue
		}
		for _, name := range sortedKeys(p.Resources.XObjects) {
			if p.Resources.XObjects[name].Kind != semantic.XObjectPostScript {
				continue
			}
			out = append(out, compliance.NewPageViolation(r.ID(), "no_postscripts.embedded_postscript_not_allowed", p.Index,
				compliance.KV("script", name)))
		}
	}
	return out, nil
}

// OnlyEmbeddedFonts requires every page font to carry a readable program.
type OnlyEmbeddedFonts struct{}

func (OnlyEmbeddedFonts) ID() string { return "OnlyEmbeddedFonts" }

func (r OnlyEmbeddedFonts) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		if p.Resources == nil {
			continue
		}
		for _, name := range sortedKeys(p.Resources.Fonts) {
			f := p.Resources.Fonts[name]
			if !f.Embedded() {
				out = append(out, compliance.NewPageViolation(r.ID(), "Fonts must be embedded.", p.Index,
					compliance.KV("font", f.BaseFont)))
				continue
			}
			if f.Subtype == "Type3" {
				continue
			}
			if _, err := fonts.Inspect(f.Descriptor); err != nil && !errors.Is(err, fonts.ErrUnsupported) {
				out = append(out, compliance.NewPageViolation(r.ID(), "Embedded font program must be readable.", p.Index,
					compliance.KV("font", f.BaseFont), compliance.KV("error", err.Error())))
			}
		}
	}
	return out, nil
}

// ColorSpacePage checks the color spaces named in page resources.
type ColorSpacePage struct {
	ColorSpaces
}

func NewColorSpacePage(allowed, disallowed []string) *ColorSpacePage {
	return &ColorSpacePage{ColorSpaces{Allowed: allowed, Disallowed: disallowed}}
}

func (r *ColorSpacePage) ID() string { return "ColorSpacePage" }

func (r *ColorSpacePage) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		if p.Resources == nil {
			continue
		}
		for _, name := range sortedKeys(p.Resources.ColorSpaces) {
			family, err := run.ColorSpaces.Resolve(p.Resources.ColorSpaces[name])
			if err != nil {
				out = append(out, compliance.NewPageViolation(r.ID(), "color_space_page.invalid.%colorSpace%", p.Index,
					compliance.KV("colorSpace", unresolved), compliance.KV("resource", name), compliance.KV("error", err.Error())))
				continue
			}
			if !r.Valid(family) {
				out = append(out, compliance.NewPageViolation(r.ID(), "color_space_page.invalid.%colorSpace%", p.Index,
					compliance.KV("colorSpace", family), compliance.KV("resource", name)))
			}
		}
	}
	return out, nil
}
