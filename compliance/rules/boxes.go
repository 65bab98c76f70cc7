package rules

import (
	"fmt"
	"math"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/ir/semantic"
)

// BoxExists requires every page to declare a TrimBox or an ArtBox, not both.
type BoxExists struct{}

func (BoxExists) ID() string { return "BoxExists" }

func (r BoxExists) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		trim, art := p.Declared[semantic.TrimBox], p.Declared[semantic.ArtBox]
		switch {
		case !trim && !art:
			out = append(out, compliance.NewPageViolation(r.ID(), "box_exists.trim_box_or_art_box_must_be_present", p.Index))
		case trim && art:
			out = append(out, compliance.NewPageViolation(r.ID(), "box_exists.trim_box_or_art_box_must_be_present_but_not_both", p.Index))
		}
	}
	return out, nil
}

// BoxNesting requires TrimBox ⊆ BleedBox ⊆ MediaBox on every page.
type BoxNesting struct{}

func (BoxNesting) ID() string { return "BoxNesting" }

func (r BoxNesting) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		if !p.MediaBox.ContainsRect(p.TrimBox) {
			out = append(out, compliance.NewPageViolation(r.ID(), "The TrimBox must not extend beyond the MediaBox.", p.Index))
		}
		if !p.BleedBox.ContainsRect(p.TrimBox) {
			out = append(out, compliance.NewPageViolation(r.ID(), "The TrimBox must not extend beyond the BleedBox.", p.Index))
		}
		if !p.MediaBox.ContainsRect(p.BleedBox) {
			out = append(out, compliance.NewPageViolation(r.ID(), "The BleedBox must not extend beyond the MediaBox.", p.Index))
		}
	}
	return out, nil
}

// BoxSize requires a box of an exact size in millimetres, compared after
// rounding to Decimals places.
type BoxSize struct {
	Box           string
	Width, Height float64
	Decimals      int
}

func NewBoxSize(box string, width, height float64, decimals int) *BoxSize {
	return &BoxSize{Box: box, Width: width, Height: height, Decimals: decimals}
}

func (r *BoxSize) ID() string { return "BoxSize" }

func (r *BoxSize) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		box, ok := p.Box(r.Box)
		if !ok {
			return nil, fmt.Errorf("unknown box %q", r.Box)
		}
		w, h := r.round(toMillimetres(box.Width())), r.round(toMillimetres(box.Height()))
		wantW, wantH := r.round(r.Width), r.round(r.Height)
		if w == wantW && h == wantH {
			continue
		}
		out = append(out, compliance.NewPageViolation(r.ID(),
			fmt.Sprintf("The %s must be exactly %f x %f mm-s.", r.Box, wantW, wantH), p.Index,
			compliance.KV("width", w), compliance.KV("height", h)))
	}
	return out, nil
}

// round rounds half up to Decimals places.
func (r *BoxSize) round(v float64) float64 {
	scale := math.Pow(10, float64(r.Decimals))
	return math.Floor(v*scale+0.5) / scale
}

func toMillimetres(pt float64) float64 { return pt * 25.4 / 72 }

// NoAnnotationsInsidePageArea rejects annotations with a corner inside the
// TrimBox or BleedBox.
type NoAnnotationsInsidePageArea struct{}

func (NoAnnotationsInsidePageArea) ID() string { return "NoAnnotationsInsidePageArea" }

func (r NoAnnotationsInsidePageArea) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		for _, a := range p.Annotations {
			if !p.TrimBox.AnyCornerIn(a.Rect) && !p.BleedBox.AnyCornerIn(a.Rect) {
				continue
			}
			out = append(out, compliance.NewPageViolation(r.ID(), "Annotation must be outside of TrimBox and BleedBox.", p.Index,
				compliance.KV("annotation", a.Subtype)))
		}
	}
	return out, nil
}
