package compliance

import (
	"sync"
	"time"

	"github.com/wudi/preflight/colorspace"
	"github.com/wudi/preflight/contentstream"
	"github.com/wudi/preflight/filters"
	"github.com/wudi/preflight/ir/semantic"
	"github.com/wudi/preflight/raster"
)

// Rule is a named check. Every rule implements at least one of
// DocumentRule, ObjectRule and TextRule.
type Rule interface {
	ID() string
}

// DocumentRule inspects the document model once per run.
type DocumentRule interface {
	Rule
	CheckDocument(ctx Context, run *Run) ([]Violation, error)
}

// ObjectRule is called for every drawn external object. Calls happen
// concurrently, so implementations must not keep per-call state.
type ObjectRule interface {
	Rule
	CheckObject(ctx Context, run *Run, obj *contentstream.DrawnObject) ([]Violation, error)
}

// TextRule is called once for every closed text run. Calls happen
// concurrently.
type TextRule interface {
	Rule
	CheckText(ctx Context, run *Run, text *contentstream.TextRun) ([]Violation, error)
}

// Run carries what rules share during one validation. Its caches are keyed
// by object identity and must not be reused for another document.
type Run struct {
	Doc         *semantic.Document
	ColorSpaces *colorspace.Resolver
	Images      *raster.Decoder
	Densities   *raster.Cache

	reported sync.Map
}

// Once reports whether key is seen for the first time in this run.
func (r *Run) Once(key any) bool {
	_, loaded := r.reported.LoadOrStore(key, struct{}{})
	return !loaded
}

// NewRun prepares the shared state for validating doc. A nil pipeline uses
// filters.Standard.
func NewRun(doc *semantic.Document, pipeline *filters.Pipeline) *Run {
	return &Run{
		Doc:         doc,
		ColorSpaces: colorspace.NewResolver(doc),
		Images:      raster.NewDecoder(doc, pipeline),
		Densities:   raster.NewCache(),
	}
}

// Page returns page i, or nil when out of range.
func (r *Run) Page(i int) *semantic.Page {
	if r == nil || r.Doc == nil || i < 0 || i >= len(r.Doc.Pages) {
		return nil
	}
	return r.Doc.Pages[i]
}

// Message keys of violations the engine synthesizes itself.
const (
	MessageInternalError = "internal_error.%rule%.%error%"
	MessagePageTimeout   = "page_timeout.exceeded.%timeout%"
	MessageDecodeFailure = "image_decode.failed.%image%.%error%"
)

// PageTimeoutRule is the rule id of timeout violations.
const PageTimeoutRule = "PageTimeout"

// InternalViolation reports a rule that failed instead of returning a
// verdict. page < 0 marks a document-level failure.
func InternalViolation(ruleID string, page int, err error) Violation {
	ctx := []Entry{KV("rule", ruleID), KV("error", err.Error())}
	if page < 0 {
		return NewViolation(ruleID, MessageInternalError, ctx...)
	}
	return NewPageViolation(ruleID, MessageInternalError, page, ctx...)
}

// TimeoutViolation records that page's validation tasks were abandoned.
func TimeoutViolation(page int, timeout time.Duration, pending int) Violation {
	return NewPageViolation(PageTimeoutRule, MessagePageTimeout, page,
		KV("timeout", timeout.String()), KV("pending", pending))
}

// DecodeViolation reports an image whose samples could not be read.
func DecodeViolation(ruleID string, page int, image string, err error) Violation {
	return NewPageViolation(ruleID, MessageDecodeFailure, page, KV("image", image), KV("error", err.Error()))
}
