package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/contentstream"
)

func draw(page, seq int) *contentstream.DrawnObject {
	return &contentstream.DrawnObject{Name: "Im0", Kind: contentstream.KindImage, Page: page, Seq: seq}
}

func flagging(rule string) Validator {
	return func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		return []compliance.Violation{compliance.NewPageViolation(rule, "flagged", obj.Page, compliance.KV("seq", obj.Seq))}, nil
	}
}

func passing(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
	return nil, nil
}

type key struct {
	Rule string
	Page int
	Seq  int
}

func keys(rs []Result) []key {
	out := make([]key, len(rs))
	for i, r := range rs {
		out[i] = key{Rule: r.Violation.RuleID(), Page: r.Page, Seq: r.Seq}
	}
	return out
}

func TestOnlyFailingValidatorReports(t *testing.T) {
	d := New(Config{Workers: 4})
	d.AddValidator("A", 0, passing)
	d.AddValidator("B", 1, flagging("B"))
	d.AddValidator("C", 2, passing)

	d.BeginPage(context.Background(), 0)
	d.Draw(draw(0, 0))
	d.Draw(draw(0, 1))
	if s := d.EndPage(); s.Tasks != 6 || s.TimedOut {
		t.Fatalf("unexpected summary %+v", s)
	}

	rs := d.Results()
	Sort(rs)
	want := []key{{"B", 0, 0}, {"B", 0, 1}}
	if diff := cmp.Diff(want, keys(rs)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestEndPageIsABarrier(t *testing.T) {
	d := New(Config{Workers: 2})
	var finished atomic.Int32
	d.AddValidator("slow", 0, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		time.Sleep(5 * time.Millisecond)
		finished.Add(1)
		return nil, nil
	})
	d.BeginPage(context.Background(), 0)
	for i := 0; i < 8; i++ {
		d.Draw(draw(0, i))
	}
	d.EndPage()
	if got := finished.Load(); got != 8 {
		t.Fatalf("EndPage returned with %d of 8 tasks finished", got)
	}
}

func TestPoolIsBounded(t *testing.T) {
	d := New(Config{Workers: 2})
	var running, peak atomic.Int32
	d.AddValidator("probe", 0, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})
	d.BeginPage(context.Background(), 0)
	for i := 0; i < 20; i++ {
		d.Draw(draw(0, i))
	}
	d.EndPage()
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds pool size 2", p)
	}
}

func TestDrawWaitsForAFreeWorker(t *testing.T) {
	d := New(Config{Workers: 2})
	release := make(chan struct{})
	d.AddValidator("Blocks", 0, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		<-release
		return nil, nil
	})

	base := runtime.NumGoroutine()
	var drawn atomic.Int32
	fed := make(chan struct{})
	d.BeginPage(context.Background(), 0)
	go func() {
		defer close(fed)
		for i := 0; i < 1000; i++ {
			d.Draw(draw(0, i))
			drawn.Add(1)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	if n := drawn.Load(); n > 2 {
		t.Errorf("%d draws accepted with 2 busy workers", n)
	}
	// The feeder plus one goroutine per worker.
	if extra := runtime.NumGoroutine() - base; extra > 3 {
		t.Errorf("%d goroutines alive with a pool of 2", extra)
	}
	close(release)
	<-fed
	if s := d.EndPage(); s.Tasks != 1000 || s.TimedOut {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestFailuresReportedOncePerRuleAndPage(t *testing.T) {
	d := New(Config{Workers: 4})
	d.AddValidator("Fails", 0, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		return nil, fmt.Errorf("broken at %d", obj.Seq)
	})
	d.AddValidator("Flags", 1, flagging("Flags"))

	d.BeginPage(context.Background(), 0)
	for i := 0; i < 3; i++ {
		d.Draw(draw(0, i))
	}
	d.EndPage()
	d.BeginPage(context.Background(), 1)
	d.Draw(draw(1, 0))
	d.EndPage()

	rs := d.Results()
	Sort(rs)
	want := []key{{"Fails", 0, 0}, {"Fails", 1, 0}, {"Flags", 0, 0}, {"Flags", 0, 1}, {"Flags", 0, 2}, {"Flags", 1, 0}}
	if diff := cmp.Diff(want, keys(rs)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
	if v, _ := rs[0].Violation.Value("error"); v != "broken at 0" {
		t.Fatalf("expected the earliest failure, got %v", v)
	}
}

func TestPanicAndErrorBecomeInternalViolations(t *testing.T) {
	d := New(Config{Workers: 3})
	d.AddValidator("Panics", 0, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		panic("index out of range")
	})
	d.AddValidator("Fails", 1, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		return nil, errors.New("broken")
	})
	d.AddValidator("Flags", 2, flagging("Flags"))

	d.BeginPage(context.Background(), 5)
	d.Draw(draw(5, 0))
	d.EndPage()

	rs := d.Results()
	Sort(rs)
	if len(rs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(rs))
	}
	for _, r := range rs[:2] {
		if r.Violation.Message() != compliance.MessageInternalError {
			t.Fatalf("expected internal violation, got %v", r.Violation)
		}
		if p, ok := r.Violation.Page(); !ok || p != 5 {
			t.Fatalf("internal violation not located on page 5: %v", r.Violation)
		}
	}
	if rs[2].Violation.RuleID() != "Flags" {
		t.Fatalf("sibling validator result lost: %v", rs[2].Violation)
	}
}

func TestTextValidators(t *testing.T) {
	d := New(Config{Workers: 1})
	var calls atomic.Int32
	d.AddTextValidator("text", 0, func(ctx context.Context, run *contentstream.TextRun) ([]compliance.Violation, error) {
		calls.Add(1)
		return nil, nil
	})
	d.BeginPage(context.Background(), 0)
	d.Text(&contentstream.TextRun{Page: 0, Seq: 0, Codes: []byte("a"), Glyphs: 1})
	d.Text(&contentstream.TextRun{Page: 0, Seq: 1, Codes: []byte("b"), Glyphs: 1})
	d.Draw(draw(0, 2))
	d.EndPage()
	if calls.Load() != 2 {
		t.Fatalf("expected each run once, got %d calls", calls.Load())
	}
	if objects, texts := d.Validators(); objects != 0 || texts != 1 {
		t.Fatalf("Validators() = %d, %d", objects, texts)
	}
}

func TestPageTimeoutDropsLateResults(t *testing.T) {
	d := New(Config{Workers: 1, PageTimeout: 20 * time.Millisecond})
	release := make(chan struct{})
	d.AddValidator("Hangs", 0, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		<-release
		return []compliance.Violation{compliance.NewPageViolation("Hangs", "late", obj.Page)}, nil
	})

	d.BeginPage(context.Background(), 1)
	d.Draw(draw(1, 0))
	d.Draw(draw(1, 1)) // waits for the single worker slot
	p := d.current
	s := d.EndPage()
	if !s.TimedOut || s.Pending != 2 {
		t.Fatalf("expected timeout with 2 pending tasks, got %+v", s)
	}

	close(release)
	p.wg.Wait()

	rs := d.Results()
	if len(rs) != 1 {
		t.Fatalf("late results were kept: %v", rs)
	}
	v := rs[0].Violation
	if v.RuleID() != compliance.PageTimeoutRule || rs[0].Rule != EngineRule {
		t.Fatalf("expected timeout violation, got %v", v)
	}
	if page, _ := v.Page(); page != 1 {
		t.Fatalf("timeout recorded for page %d", page)
	}
}

func TestNextPageRunsAfterTimeout(t *testing.T) {
	d := New(Config{Workers: 2, PageTimeout: 10 * time.Millisecond})
	block := make(chan struct{})
	defer close(block)
	d.AddValidator("V", 0, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
		if obj.Page == 0 {
			<-block
		}
		return []compliance.Violation{compliance.NewPageViolation("V", "seen", obj.Page)}, nil
	})
	d.BeginPage(context.Background(), 0)
	d.Draw(draw(0, 0))
	d.EndPage()

	d.BeginPage(context.Background(), 1)
	d.Draw(draw(1, 0))
	if s := d.EndPage(); s.TimedOut {
		t.Fatalf("page 1 should finish on the free worker: %+v", s)
	}
	rs := d.Results()
	Sort(rs)
	want := []key{{"V", 1, 0}, {compliance.PageTimeoutRule, 0, 0}}
	if diff := cmp.Diff(want, keys(rs)); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestSortOrder(t *testing.T) {
	rs := []Result{
		{Rule: 1, Page: 0, Seq: 0},
		{Rule: 0, Page: 2, Seq: 0},
		{Rule: 0, Page: 1, Seq: 3, Index: 1},
		{Rule: 0, Page: 1, Seq: 3, Index: 0},
		{Rule: 0, Page: -1, Seq: -1},
	}
	Sort(rs)
	got := make([][4]int, len(rs))
	for i, r := range rs {
		got[i] = [4]int{r.Rule, r.Page, r.Seq, r.Index}
	}
	want := [][4]int{{0, -1, -1, 0}, {0, 1, 3, 0}, {0, 1, 3, 1}, {0, 2, 0, 0}, {1, 0, 0, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
