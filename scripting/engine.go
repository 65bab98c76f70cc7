// Package scripting runs user supplied JavaScript checks against a document.
package scripting

import (
	"context"
)

// Engine represents a scripting engine (e.g., JavaScript).
type Engine interface {
	// Execute runs script against the registered document.
	Execute(ctx context.Context, script string) (interface{}, error)

	// RegisterDocument exposes doc to scripts as the global "doc".
	RegisterDocument(doc Document) error

	// Findings returns what scripts reported so far, in report order.
	Findings() []Finding
}

// Document is the read-only view scripts get of the document.
type Document interface {
	PageCount() int
	Version() string
	// Info returns the textual value of an info dictionary key.
	Info(key string) (string, bool)
	Page(index int) (Page, error)
}

// Page is the read-only view scripts get of a page.
type Page interface {
	Index() int
	// Box returns the effective box as [llx lly urx ury].
	Box(name string) ([4]float64, bool)
	// Declared reports whether the page states the box explicitly.
	Declared(name string) bool
}

// Finding is one call of report() made by a script.
type Finding struct {
	Message string
	Page    int // -1 for document-level findings
	Context map[string]interface{}
}
