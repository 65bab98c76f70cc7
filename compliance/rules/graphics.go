package rules

import (
	"slices"
	"sort"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/ir/raw"
)

// NoTransferCurves rejects page graphics states with TR, or TR2 other than
// /Default.
type NoTransferCurves struct{}

func (NoTransferCurves) ID() string { return "NoTransferCurves" }

func (r NoTransferCurves) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		if p.Resources == nil {
			continue
		}
		names := make([]string, 0, len(p.Resources.ExtGStates))
		for name := range p.Resources.ExtGStates {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			gs := p.Resources.ExtGStates[name].Dict
			tr2, hasTR2 := nameIn(run.Doc, gs, "TR2")
			if !gs.Has("TR") && (!gs.Has("TR2") || hasTR2 && tr2 == "Default") {
				continue
			}
			out = append(out, compliance.NewPageViolation(r.ID(), "Transfer curves prohibited", p.Index,
				compliance.KV("extGState", name)))
		}
	}
	return out, nil
}

// AllowedHalftoneTypes restricts HalftoneType values and prohibits
// HalftoneName.
type AllowedHalftoneTypes struct {
	Types []int
}

func NewAllowedHalftoneTypes(types ...int) *AllowedHalftoneTypes {
	return &AllowedHalftoneTypes{Types: types}
}

func (r *AllowedHalftoneTypes) ID() string { return "AllowedHalftoneTypes" }

func (r *AllowedHalftoneTypes) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	visitDicts(run.Doc, func(ref raw.ObjectRef, d *raw.DictObj) {
		typ, _ := nameIn(run.Doc, d, "Type")
		if typ != "Halftone" && !d.Has("HalftoneType") {
			return
		}
		if ht, ok := raw.IntOf(run.Doc, valueOf(d, "HalftoneType")); ok && !slices.Contains(r.Types, ht) {
			out = append(out, compliance.NewViolation(r.ID(), "allowed_halftone_types.type_not_allowed.%type%",
				compliance.KV("type", ht), compliance.KV("object", ref.String())))
		}
		if d.Has("HalftoneName") {
			out = append(out, compliance.NewViolation(r.ID(), "allowed_halftone_types.halftone_name_prohibited",
				compliance.KV("object", ref.String())))
		}
	})
	return out, nil
}

var actionTypes = []string{
	"GoTo", "GoToR", "GoToE", "Launch", "Thread", "URI", "Sound", "Movie", "Hide", "Named",
	"SubmitForm", "ResetForm", "ImportData", "JavaScript", "SetOCGState", "Rendition", "Trans", "GoTo3DView",
}

// NoActions rejects every action dictionary.
type NoActions struct{}

func (NoActions) ID() string { return "NoActions" }

func (r NoActions) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	visitDicts(run.Doc, func(ref raw.ObjectRef, d *raw.DictObj) {
		s, ok := nameIn(run.Doc, d, "S")
		if !ok || !slices.Contains(actionTypes, s) {
			return
		}
		out = append(out, compliance.NewViolation(r.ID(), "Actions and JavaScript prohibited.",
			compliance.KV("action", s), compliance.KV("object", ref.String())))
	})
	return out, nil
}

// NoTransparency rejects every dictionary with /S /Transparency.
type NoTransparency struct{}

func (NoTransparency) ID() string { return "NoTransparency" }

func (r NoTransparency) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	visitDicts(run.Doc, func(ref raw.ObjectRef, d *raw.DictObj) {
		if s, _ := nameIn(run.Doc, d, "S"); s != "Transparency" {
			return
		}
		msg := "no_transparency.transparency_not_allowed_unknown"
		if typ, _ := nameIn(run.Doc, d, "Type"); typ == "Group" {
			msg = "no_transparency.transparency_not_allowed_transparency_group"
		} else if d.Has("CS") {
			msg = "no_transparency.transparency_not_allowed_color_space"
		}
		out = append(out, compliance.NewViolation(r.ID(), msg, compliance.KV("object", ref.String())))
	})
	return out, nil
}

func valueOf(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}
