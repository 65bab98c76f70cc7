package rules

import (
	"fmt"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/scripting"
)

// Script is a document rule written in JavaScript. The script sees the
// document as the global doc and raises violations with
// report(message, [page], [context]). Each check gets a fresh engine.
type Script struct {
	Name   string
	Source string
}

func NewScript(id, source string) *Script { return &Script{Name: id, Source: source} }

func (r *Script) ID() string { return r.Name }

func (r *Script) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	engine := scripting.NewEngine()
	if err := engine.RegisterDocument(scripting.FromSemantic(run.Doc)); err != nil {
		return nil, err
	}
	if _, err := engine.Execute(ctx, r.Source); err != nil {
		return nil, fmt.Errorf("script %s: %w", r.Name, err)
	}
	findings := engine.Findings()
	out := make([]compliance.Violation, 0, len(findings))
	for _, f := range findings {
		kv := make([]compliance.Entry, 0, len(f.Context))
		for _, k := range sortedKeys(f.Context) {
			kv = append(kv, compliance.KV(k, f.Context[k]))
		}
		if f.Page < 0 {
			out = append(out, compliance.NewViolation(r.Name, f.Message, kv...))
		} else {
			out = append(out, compliance.NewPageViolation(r.Name, f.Message, f.Page, kv...))
		}
	}
	return out, nil
}
