package recovery

import "context"

// Strategy decides how content-stream lexing and resource lookup react to a
// defect in the document.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location pins a defect to a page and, when known, a byte offset in the
// decoded content stream or the resource name involved.
type Location struct {
	Page       int
	ByteOffset int64
	Resource   string
	Component  string
}

type Action int

const (
	// ActionFail aborts the current page.
	ActionFail Action = iota
	// ActionSkip drops the offending token or draw and continues.
	ActionSkip
	// ActionFix continues with a repaired value where one exists.
	ActionFix
	// ActionWarn reports the error to the caller unchanged.
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return "unknown"
}

// Continues reports whether processing goes on after the action.
func (a Action) Continues() bool { return a == ActionSkip || a == ActionFix }
