// Package config loads preflight profiles from YAML.
//
// A profile names an optional standard whose rule set comes first, followed
// by its own rules in order:
//
//	standard: PDF/X-1a
//	limits:
//	  pageTimeout: 2m
//	  workers: 4
//	rules:
//	  - rule: ImageMinDpi
//	    params: {min: 300}
//	  - rule: Script
//	    id: SinglePage
//	    source: |
//	      if (doc.pageCount != 1) report("Exactly one page expected.");
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/compliance/pdfx"
	"github.com/wudi/preflight/compliance/rules"
	"github.com/wudi/preflight/engine"
	"github.com/wudi/preflight/security"
)

var ErrEmptyProfile = errors.New("config: profile has no standard and no rules")

// Profile is a parsed preflight profile.
type Profile struct {
	Name     string     `yaml:"name"`
	Standard string     `yaml:"standard"`
	Limits   Limits     `yaml:"limits"`
	Rules    []RuleSpec `yaml:"rules"`
}

// Limits mirrors security.Limits. Zero values keep the defaults.
type Limits struct {
	MaxFormDepth        int           `yaml:"maxFormDepth"`
	PageTimeout         time.Duration `yaml:"pageTimeout"`
	MaxImagePixels      int64         `yaml:"maxImagePixels"`
	MaxDecompressedSize int64         `yaml:"maxDecompressedSize"`
	Workers             int           `yaml:"workers"`
}

// RuleSpec configures one rule. Params are decoded by the rule's factory.
type RuleSpec struct {
	Rule   string    `yaml:"rule"`
	Params yaml.Node `yaml:"params"`
	// ID and Source configure Script rules.
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
}

// Load parses a profile.
func Load(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Profile
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyProfile
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if p.Standard == "" && len(p.Rules) == 0 {
		return nil, ErrEmptyProfile
	}
	return &p, nil
}

// LoadFile parses the profile stored at path.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	p, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// BuildRules returns the standard's rules followed by the profile's own.
func (p *Profile) BuildRules() ([]compliance.Rule, error) {
	var out []compliance.Rule
	if p.Standard != "" {
		level, err := pdfx.ParseLevel(p.Standard)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		rs, err := pdfx.Rules(level)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		out = append(out, rs...)
	}
	for i, spec := range p.Rules {
		r, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("config: rules[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s RuleSpec) build() (compliance.Rule, error) {
	if s.Rule == "Script" {
		if s.ID == "" || s.Source == "" {
			return nil, errors.New("Script needs id and source")
		}
		return rules.NewScript(s.ID, s.Source), nil
	}
	var params rules.Params
	if !s.Params.IsZero() {
		params = &s.Params
	}
	return rules.Build(s.Rule, params)
}

// SecurityLimits returns the profile limits over the defaults.
func (p *Profile) SecurityLimits() security.Limits {
	l := security.Limits{
		MaxFormDepth:        p.Limits.MaxFormDepth,
		PageTimeout:         p.Limits.PageTimeout,
		MaxImagePixels:      p.Limits.MaxImagePixels,
		MaxDecompressedSize: p.Limits.MaxDecompressedSize,
		Workers:             p.Limits.Workers,
	}
	return l.Normalize()
}

// Engine builds an engine for the profile. opts are applied after the
// profile's limits.
func (p *Profile) Engine(opts ...engine.Option) (*engine.Engine, error) {
	rs, err := p.BuildRules()
	if err != nil {
		return nil, err
	}
	return engine.New(rs, append([]engine.Option{engine.WithLimits(p.SecurityLimits())}, opts...)...), nil
}
