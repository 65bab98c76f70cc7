package rules

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/wudi/preflight/colorspace"
	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/contentstream"
	"github.com/wudi/preflight/ir/semantic"
)

// textOf renders the codes of a run for reports. Composite font codes have
// no fixed mapping to characters and are shown in hex.
func textOf(run *contentstream.TextRun) string {
	if run.Font != nil && run.Font.Composite {
		return hex.EncodeToString(run.Codes)
	}
	return semantic.DecodeText(run.Codes)
}

// ColorSpaceText checks the stroking and non-stroking color spaces of text.
type ColorSpaceText struct {
	ColorSpaces
}

func NewColorSpaceText(allowed, disallowed []string) *ColorSpaceText {
	return &ColorSpaceText{ColorSpaces{Allowed: allowed, Disallowed: disallowed}}
}

func (r *ColorSpaceText) ID() string { return "ColorSpaceText" }

func (r *ColorSpaceText) family(run *compliance.Run, cs contentstream.ColorSpace) (string, bool) {
	family, err := run.ColorSpaces.Resolve(cs.Object)
	if err != nil {
		return unresolved, false
	}
	return family, r.Valid(family)
}

func (r *ColorSpaceText) CheckText(ctx compliance.Context, run *compliance.Run, text *contentstream.TextRun) ([]compliance.Violation, error) {
	stroke, strokeOK := r.family(run, text.State.StrokeColorSpace)
	fill, fillOK := r.family(run, text.State.FillColorSpace)
	if strokeOK && fillOK {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewPageViolation(r.ID(),
		fmt.Sprintf("Invalid text ColorSpace found : %s.", stroke), text.Page,
		compliance.KV("text", textOf(text)),
		compliance.KV("colorSpaceStroking", stroke),
		compliance.KV("colorSpaceNonStroking", fill))}, nil
}

// MaxInkDensityText caps the ink coverage of CMYK text colors. Stroke and
// fill are checked separately.
type MaxInkDensityText struct {
	Max int
}

func NewMaxInkDensityText(max int) *MaxInkDensityText { return &MaxInkDensityText{Max: max} }

func (r *MaxInkDensityText) ID() string { return "MaxInkDensityText" }

func (r *MaxInkDensityText) CheckText(ctx compliance.Context, run *compliance.Run, text *contentstream.TextRun) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, c := range []struct {
		space contentstream.ColorSpace
		color []float64
	}{
		{text.State.StrokeColorSpace, text.State.StrokeColor},
		{text.State.FillColorSpace, text.State.FillColor},
	} {
		// Indexed colors are palette indices, not ink amounts.
		if colorspace.IsIndexed(run.Doc, c.space.Object) {
			continue
		}
		if family, err := run.ColorSpaces.Resolve(c.space.Object); err != nil || family != colorspace.DeviceCMYK {
			continue
		}
		density := InkDensity(c.color)
		if density <= float64(r.Max) {
			continue
		}
		out = append(out, compliance.NewPageViolation(r.ID(),
			fmt.Sprintf("Text color density exceeds maximum of %d.", r.Max), text.Page,
			compliance.KV("density", density),
			compliance.KV("color", slices.Clone(c.color)),
			compliance.KV("text", textOf(text))))
	}
	return out, nil
}

// InkDensity returns the sum of color components as a percentage.
func InkDensity(color []float64) float64 {
	var sum float64
	for _, v := range color {
		sum += v * 100
	}
	return sum
}
