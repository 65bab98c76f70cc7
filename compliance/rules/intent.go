package rules

import (
	"github.com/wudi/preflight/cmm"
	"github.com/wudi/preflight/compliance"
)

const pdfxIntent = "GTS_PDFX"

// OutputIntent checks the PDF/X output intent: exactly one GTS_PDFX entry
// with an identifier, Info, and an embedded output profile or registry name.
type OutputIntent struct{}

func (OutputIntent) ID() string { return "OutputIntent" }

func (r OutputIntent) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	add := func(msg string, kv ...compliance.Entry) {
		out = append(out, compliance.NewViolation(r.ID(), msg, kv...))
	}

	intents := run.Doc.OutputIntents
	if len(intents) == 0 {
		add("OutputIntent must be present.")
	}
	count := 0
	for _, oi := range intents {
		if oi.S != pdfxIntent {
			continue
		}
		count++
		if oi.OutputConditionIdentifier == "" {
			add("OutputConditionIdentifier required in PDF/X OutputIntent.")
		}
		if !oi.Dict.Has("RegistryName") && !oi.HasDestOutputProfile {
			add("Destination profile must be embedded or Registry Name must be filled out.")
		}
		if !oi.Dict.Has("Info") {
			add("OutputIntent Info key must be present.")
		}
		if !oi.HasDestOutputProfile {
			continue
		}
		profile, err := cmm.NewICCProfile(oi.DestOutputProfile)
		if err != nil {
			add("Destination profile must be a valid ICC profile.", compliance.KV("error", err.Error()))
			continue
		}
		if !profile.IsOutput() {
			add("Destination profile must be ICC output profile (type ‘prtr’).", compliance.KV("class", profile.Class()))
		}
	}
	if count != 1 {
		add("OutputIntent must contain exactly one PDF/X entry.", compliance.KV("count", count))
	}
	return out, nil
}

// NoSeparation rejects pages carrying /SeparationInfo.
type NoSeparation struct{}

func (NoSeparation) ID() string { return "NoSeparation" }

func (r NoSeparation) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, p := range run.Doc.Pages {
		if p.Dict.Has("SeparationInfo") {
			out = append(out, compliance.NewPageViolation(r.ID(), "Page must not be separated.", p.Index))
		}
	}
	return out, nil
}
