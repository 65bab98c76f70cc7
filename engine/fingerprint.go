package engine

import (
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/preflight/ir/raw"
	"github.com/wudi/preflight/ir/semantic"
)

// Fingerprint returns a BLAKE2b-256 digest of the document's object graph,
// independent of map iteration order. Documents built without a raw graph
// are hashed by version and page content.
func Fingerprint(doc *semantic.Document) string {
	h, _ := blake2b.New256(nil)
	if doc == nil {
		return hex.EncodeToString(h.Sum(nil))
	}
	fmt.Fprint(h, "v", doc.Version, ";")
	if doc.Raw != nil {
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
		for _, ref := range refs {
			fmt.Fprint(h, ref.String(), "=")
			writeObject(h, doc.Raw.Objects[ref])
			fmt.Fprint(h, ";")
		}
		writeObject(h, doc.Raw.Trailer)
	} else {
		for _, p := range doc.Pages {
			fmt.Fprintf(h, "page%d:%d;", p.Index, len(p.Content))
			h.Write(p.Content)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeObject(h hash.Hash, obj raw.Object) {
	if obj == nil {
		fmt.Fprint(h, "nil")
		return
	}
	fmt.Fprint(h, obj.Type(), ":")
	switch t := obj.(type) {
	case raw.NameObj:
		fmt.Fprint(h, t.Val)
	case raw.NumberObj:
		if t.IsInt {
			fmt.Fprint(h, t.I)
		} else {
			fmt.Fprint(h, t.F)
		}
	case raw.BoolObj:
		fmt.Fprint(h, t.V)
	case raw.StringObj:
		fmt.Fprintf(h, "%d:", len(t.Bytes))
		h.Write(t.Bytes)
	case raw.RefObj:
		fmt.Fprint(h, t.R.String())
	case *raw.ArrayObj:
		fmt.Fprint(h, "[")
		for _, v := range t.Items {
			writeObject(h, v)
			fmt.Fprint(h, ",")
		}
		fmt.Fprint(h, "]")
	case *raw.DictObj:
		fmt.Fprint(h, "<<")
		for _, k := range t.Keys() {
			fmt.Fprint(h, "/", k, " ")
			writeObject(h, t.KV[k])
		}
		fmt.Fprint(h, ">>")
	case *raw.StreamObj:
		writeObject(h, t.Dict)
		fmt.Fprintf(h, "%d:", len(t.Data))
		h.Write(t.Data)
	}
}
