package rules

import (
	"fmt"
	"sort"

	"github.com/wudi/preflight/compliance"
)

// Params decodes the parameters of a configured rule. *yaml.Node satisfies it.
type Params interface {
	Decode(v any) error
}

// Factory builds a rule from its parameters. params is nil when the
// configuration gives none.
type Factory func(params Params) (compliance.Rule, error)

type colorSpaceParams struct {
	Allowed    []string `yaml:"allowed"`
	Disallowed []string `yaml:"disallowed"`
}

type limitParams struct {
	Max int `yaml:"max"`
	Min int `yaml:"min"`
}

var registry = map[string]Factory{
	"PageCount": func(p Params) (compliance.Rule, error) {
		var v limitParams
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewPageCount(v.Min, v.Max), nil
	},
	"NoEncryption":     fixed(NoEncryption{}),
	"DocumentIdExists": fixed(DocumentIdExists{}),
	"DocumentVersion": func(p Params) (compliance.Rule, error) {
		var v struct {
			Max string `yaml:"max"`
		}
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		if v.Max == "" {
			return nil, fmt.Errorf("DocumentVersion: max is required")
		}
		return NewDocumentVersion(v.Max), nil
	},
	"BoxExists":  fixed(BoxExists{}),
	"BoxNesting": fixed(BoxNesting{}),
	"BoxSize": func(p Params) (compliance.Rule, error) {
		var v struct {
			Box      string  `yaml:"box"`
			Width    float64 `yaml:"width"`
			Height   float64 `yaml:"height"`
			Decimals int     `yaml:"decimals"`
		}
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewBoxSize(v.Box, v.Width, v.Height, v.Decimals), nil
	},
	"InfoKeysExist": func(p Params) (compliance.Rule, error) {
		var v struct {
			Keys []string `yaml:"keys"`
		}
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewInfoKeysExist(v.Keys...), nil
	},
	"InfoKeysMatch": func(p Params) (compliance.Rule, error) {
		var v struct {
			Patterns []KeyPattern `yaml:"patterns"`
		}
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewInfoKeysMatch(v.Patterns...)
	},
	"OutputIntent":     fixed(OutputIntent{}),
	"NoSeparation":     fixed(NoSeparation{}),
	"NoTransferCurves": fixed(NoTransferCurves{}),
	"AllowedHalftoneTypes": func(p Params) (compliance.Rule, error) {
		var v struct {
			Types []int `yaml:"types"`
		}
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewAllowedHalftoneTypes(v.Types...), nil
	},
	"NoActions":                   fixed(NoActions{}),
	"NoTransparency":              fixed(NoTransparency{}),
	"NoPostScripts":               fixed(NoPostScripts{}),
	"OnlyEmbeddedFonts":           fixed(OnlyEmbeddedFonts{}),
	"NoAnnotationsInsidePageArea": fixed(NoAnnotationsInsidePageArea{}),
	"MetadataConsistency":         fixed(MetadataConsistency{}),
	"ColorSpacePage": func(p Params) (compliance.Rule, error) {
		var v colorSpaceParams
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewColorSpacePage(v.Allowed, v.Disallowed), nil
	},
	"ColorSpaceImages": func(p Params) (compliance.Rule, error) {
		var v colorSpaceParams
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewColorSpaceImages(v.Allowed, v.Disallowed), nil
	},
	"ColorSpaceText": func(p Params) (compliance.Rule, error) {
		var v colorSpaceParams
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewColorSpaceText(v.Allowed, v.Disallowed), nil
	},
	"ImageMinDpi": func(p Params) (compliance.Rule, error) {
		var v limitParams
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewImageMinDpi(v.Min), nil
	},
	"MaxInkDensityImage": func(p Params) (compliance.Rule, error) {
		var v limitParams
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewMaxInkDensityImage(v.Max), nil
	},
	"MaxInkDensityText": func(p Params) (compliance.Rule, error) {
		var v limitParams
		if err := decode(p, &v); err != nil {
			return nil, err
		}
		return NewMaxInkDensityText(v.Max), nil
	},
	"NoFormsInsidePageArea": fixed(NoFormsInsidePageArea{}),
}

func fixed(r compliance.Rule) Factory {
	return func(Params) (compliance.Rule, error) { return r, nil }
}

func decode(p Params, v any) error {
	if p == nil {
		return nil
	}
	return p.Decode(v)
}

// Build returns the rule registered under name.
func Build(name string, params Params) (compliance.Rule, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule %q", name)
	}
	r, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}
	return r, nil
}

// Names lists the registered rule names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
