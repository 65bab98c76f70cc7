package compliance

import (
	"context"
	"fmt"
	"strings"

	"github.com/wudi/preflight/ir/semantic"
)

// Context is an alias for context.Context to allow for future expansion.
type Context = context.Context

// Entry is one key of a violation's context.
type Entry struct {
	Key   string
	Value any
}

// KV builds a context entry.
func KV(key string, value any) Entry { return Entry{Key: key, Value: value} }

// Violation is a single non-conformance. Its fields are fixed at
// construction; accessors return copies.
type Violation struct {
	ruleID  string
	message string
	page    int
	hasPage bool
	context []Entry
}

// NewViolation builds a document-level violation. message may be a template
// key whose %name% placeholders refer to context entries.
func NewViolation(ruleID, message string, ctx ...Entry) Violation {
	return Violation{ruleID: ruleID, message: message, context: append([]Entry(nil), ctx...)}
}

// NewPageViolation builds a violation located on the zero-based page.
func NewPageViolation(ruleID, message string, page int, ctx ...Entry) Violation {
	v := NewViolation(ruleID, message, ctx...)
	v.page, v.hasPage = page, true
	return v
}

func (v Violation) RuleID() string  { return v.ruleID }
func (v Violation) Message() string { return v.message }

// Page returns the page index, if the violation has one.
func (v Violation) Page() (int, bool) { return v.page, v.hasPage }

// Context returns the context entries in insertion order.
func (v Violation) Context() []Entry { return append([]Entry(nil), v.context...) }

// Value returns the context value stored under key.
func (v Violation) Value(key string) (any, bool) {
	for _, e := range v.context {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func (v Violation) String() string {
	page := "-"
	if v.hasPage {
		page = fmt.Sprint(v.page)
	}
	if len(v.context) == 0 {
		return fmt.Sprintf("[%s](%s) %s", v.ruleID, page, v.message)
	}
	parts := make([]string, len(v.context))
	for i, e := range v.context {
		parts[i] = fmt.Sprintf("%s=%v", e.Key, e.Value)
	}
	return fmt.Sprintf("[%s](%s) %s -> {%s}", v.ruleID, page, v.message, strings.Join(parts, ", "))
}

// Report details compliance status.
type Report struct {
	Compliant  bool
	Standard   string // e.g. "PDF/X-1a"
	Violations []Violation
}

// Validator checks document compliance against a standard.
type Validator interface {
	Validate(ctx Context, doc *semantic.Document) (*Report, error)
}
