// Package rules implements the preflight checks. Document rules inspect the
// document model once; object and text rules are fed by the content walk.
package rules

import (
	"slices"
	"sort"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/ir/raw"
	"github.com/wudi/preflight/ir/semantic"
)

var (
	_ compliance.DocumentRule = (*PageCount)(nil)
	_ compliance.ObjectRule   = (*ImageMinDpi)(nil)
	_ compliance.TextRule     = (*ColorSpaceText)(nil)
)

// ColorSpaces is an allowed/disallowed pair of color space families.
type ColorSpaces struct {
	Allowed    []string
	Disallowed []string
}

// Valid reports whether name passes: the allowed list is empty or contains
// it, and the disallowed list does not.
func (c ColorSpaces) Valid(name string) bool {
	valid := len(c.Allowed) == 0 || slices.Contains(c.Allowed, name)
	if slices.Contains(c.Disallowed, name) {
		valid = false
	}
	return valid
}

// unresolved is the family reported for color spaces that cannot be classified.
const unresolved = "Unresolved"

// visitDicts calls fn for every dictionary reachable from the indirect
// objects of doc, in object number order. Stream dictionaries are included.
// Each dictionary is visited once.
func visitDicts(doc *semantic.Document, fn func(ref raw.ObjectRef, d *raw.DictObj)) {
	if doc == nil || doc.Raw == nil {
		return
	}
	refs := make([]raw.ObjectRef, 0, len(doc.Raw.Objects))
	for ref := range doc.Raw.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})

	seen := make(map[*raw.DictObj]bool)
	var walk func(ref raw.ObjectRef, o raw.Object)
	walk = func(ref raw.ObjectRef, o raw.Object) {
		switch v := o.(type) {
		case *raw.StreamObj:
			walk(ref, v.Dict)
		case *raw.DictObj:
			if v == nil || seen[v] {
				return
			}
			seen[v] = true
			fn(ref, v)
			for _, k := range v.Keys() {
				walk(ref, v.KV[k])
			}
		case *raw.ArrayObj:
			for _, it := range v.Items {
				walk(ref, it)
			}
		}
	}
	for _, ref := range refs {
		walk(ref, doc.Raw.Objects[ref])
	}
}

func nameIn(doc *semantic.Document, d *raw.DictObj, key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	return raw.NameOf(doc, v)
}
