package scripting

import (
	"fmt"

	"github.com/wudi/preflight/ir/semantic"
)

type semanticDocument struct {
	doc *semantic.Document
}

// FromSemantic exposes a semantic document to scripts.
func FromSemantic(doc *semantic.Document) Document {
	return semanticDocument{doc: doc}
}

func (d semanticDocument) PageCount() int  { return len(d.doc.Pages) }
func (d semanticDocument) Version() string { return d.doc.Version }

func (d semanticDocument) Info(key string) (string, bool) {
	return d.doc.Info.Text(key)
}

func (d semanticDocument) Page(index int) (Page, error) {
	if index < 0 || index >= len(d.doc.Pages) {
		return nil, fmt.Errorf("scripting: page %d out of range", index)
	}
	return semanticPage{p: d.doc.Pages[index]}, nil
}

type semanticPage struct {
	p *semantic.Page
}

func (p semanticPage) Index() int { return p.p.Index }

func (p semanticPage) Box(name string) ([4]float64, bool) {
	r, ok := p.p.Box(name)
	return [4]float64{r.LLX, r.LLY, r.URX, r.URY}, ok
}

func (p semanticPage) Declared(name string) bool { return p.p.Declared[name] }
