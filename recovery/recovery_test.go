package recovery_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/wudi/preflight/recovery"
)

func TestRecoveryStrategies(t *testing.T) {
	missing := errors.New("resource not found")
	loc := recovery.Location{Page: 2, Resource: "Im1", Component: "walker"}

	t.Run("StrictStrategy", func(t *testing.T) {
		if got := recovery.NewStrictStrategy().OnError(context.Background(), missing, loc); got != recovery.ActionFail {
			t.Fatalf("expected ActionFail, got %v", got)
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		rec := recovery.NewLenientStrategy()
		got := rec.OnError(context.Background(), missing, loc)
		if !got.Continues() {
			t.Fatalf("lenient strategy should continue, got %v", got)
		}
		errs := rec.Errors()
		if len(errs) != 1 || !errors.Is(errs[0], missing) {
			t.Fatalf("expected wrapped error to be recorded, got %v", errs)
		}
		if !strings.Contains(errs[0].Error(), "walker /Im1") || !strings.Contains(errs[0].Error(), "page 2") {
			t.Fatalf("location missing from %q", errs[0])
		}
	})
}

func TestLenientStrategyConcurrent(t *testing.T) {
	rec := recovery.NewLenientStrategy()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			rec.OnError(context.Background(), errors.New("x"), recovery.Location{Page: page})
		}(i)
	}
	wg.Wait()
	if n := len(rec.Errors()); n != 16 {
		t.Fatalf("expected 16 recorded errors, got %d", n)
	}
}

func TestActionContinues(t *testing.T) {
	for _, tc := range []struct {
		a    recovery.Action
		want bool
	}{
		{recovery.ActionFail, false},
		{recovery.ActionSkip, true},
		{recovery.ActionFix, true},
		{recovery.ActionWarn, false},
	} {
		if got := tc.a.Continues(); got != tc.want {
			t.Errorf("%v.Continues() = %v, want %v", tc.a, got, tc.want)
		}
	}
}
