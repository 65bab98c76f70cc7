package recovery

import (
	"context"
	"fmt"
	"sync"
)

// StrictStrategy fails the page on the first defect.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy repairs what it can and records every defect it saw.
// It is safe for concurrent use.
type LenientStrategy struct {
	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	where := location.Component
	if location.Resource != "" {
		where += " /" + location.Resource
	}
	s.errors = append(s.errors, fmt.Errorf("[%s] page %d offset %d: %w", where, location.Page, location.ByteOffset, err))
	return ActionFix
}

// Errors returns a copy of the recorded defects.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
