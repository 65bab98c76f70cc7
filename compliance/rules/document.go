package rules

import (
	"fmt"
	"strconv"

	"github.com/dlclark/regexp2"

	"github.com/wudi/preflight/compliance"
)

// PageCount requires the page count to lie in [Min, Max].
type PageCount struct {
	Min, Max int
}

func NewPageCount(min, max int) *PageCount { return &PageCount{Min: min, Max: max} }

func (r *PageCount) ID() string { return "PageCount" }

func (r *PageCount) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	n := len(run.Doc.Pages)
	if n >= r.Min && n <= r.Max {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewViolation(r.ID(), "page_count.must_be_between.%min%.%max%.%pages%",
		compliance.KV("min", r.Min), compliance.KV("max", r.Max), compliance.KV("pages", n))}, nil
}

// NoEncryption rejects documents with an /Encrypt trailer entry.
type NoEncryption struct{}

func (NoEncryption) ID() string { return "NoEncryption" }

func (r NoEncryption) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	if !run.Doc.Encrypted {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewViolation(r.ID(), "no_encryption.no_encryption_allowed")}, nil
}

// DocumentIdExists requires a trailer /ID.
type DocumentIdExists struct{}

func (DocumentIdExists) ID() string { return "DocumentIdExists" }

func (r DocumentIdExists) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	if run.Doc.HasID {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewViolation(r.ID(), "Document ID must be present in PDF trailer.")}, nil
}

// DocumentVersion caps the effective PDF version.
type DocumentVersion struct {
	Max string
}

func NewDocumentVersion(max string) *DocumentVersion { return &DocumentVersion{Max: max} }

func (r *DocumentVersion) ID() string { return "DocumentVersion" }

func (r *DocumentVersion) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	limit, err := strconv.ParseFloat(r.Max, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid maximum version %q: %w", r.Max, err)
	}
	got, err := strconv.ParseFloat(run.Doc.Version, 64)
	if err == nil && got <= limit {
		return nil, nil
	}
	return []compliance.Violation{compliance.NewViolation(r.ID(),
		fmt.Sprintf("PDF must be version %s or earlier", r.Max),
		compliance.KV("version", run.Doc.Version))}, nil
}

// InfoKeysExist requires each key in the info dictionary.
type InfoKeysExist struct {
	Keys []string
}

func NewInfoKeysExist(keys ...string) *InfoKeysExist { return &InfoKeysExist{Keys: keys} }

func (r *InfoKeysExist) ID() string { return "InfoKeysExist" }

func (r *InfoKeysExist) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for _, key := range r.Keys {
		if run.Doc.Info.Has(key) {
			continue
		}
		out = append(out, compliance.NewViolation(r.ID(),
			fmt.Sprintf("The key '%s' is required, but not found in the info dict.", key),
			compliance.KV("key", key)))
	}
	return out, nil
}

// KeyPattern pairs an info key with the pattern its whole value must match.
type KeyPattern struct {
	Key     string `yaml:"key"`
	Pattern string `yaml:"pattern"`
}

// InfoKeysMatch checks info values against patterns, in order. Patterns use
// the .NET/Java-like syntax of regexp2 and must match the whole value.
type InfoKeysMatch struct {
	Patterns []KeyPattern
	compiled []*regexp2.Regexp
}

func NewInfoKeysMatch(patterns ...KeyPattern) (*InfoKeysMatch, error) {
	r := &InfoKeysMatch{Patterns: patterns}
	for _, p := range patterns {
		re, err := regexp2.Compile(`\A(?:`+p.Pattern+`)\z`, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("info key %s: %w", p.Key, err)
		}
		r.compiled = append(r.compiled, re)
	}
	return r, nil
}

func (r *InfoKeysMatch) ID() string { return "InfoKeysMatch" }

func (r *InfoKeysMatch) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	var out []compliance.Violation
	for i, p := range r.Patterns {
		if !run.Doc.Info.Has(p.Key) {
			out = append(out, compliance.NewViolation(r.ID(), "info_key_match.missing.%key%", compliance.KV("key", p.Key)))
			continue
		}
		// values that are neither strings nor names never match
		var value any
		matched := false
		if text, ok := run.Doc.Info.Text(p.Key); ok {
			value = text
			var err error
			if matched, err = r.compiled[i].MatchString(text); err != nil {
				return nil, fmt.Errorf("info key %s: %w", p.Key, err)
			}
		}
		if !matched {
			out = append(out, compliance.NewViolation(r.ID(), "info_key_match.mismatch.%key%.%pattern%.%value%",
				compliance.KV("value", value), compliance.KV("key", p.Key), compliance.KV("pattern", p.Pattern)))
		}
	}
	return out, nil
}
