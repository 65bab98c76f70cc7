// Package dispatch fans drawn objects and text runs out to validators on a
// bounded worker pool, with a completion barrier per page.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/contentstream"
	"github.com/wudi/preflight/observability"
)

// DefaultPageTimeout bounds how long EndPage waits for a page's tasks.
const DefaultPageTimeout = 10 * time.Minute

// EngineRule is the rule index of violations the dispatcher creates itself.
// It sorts after every registered rule.
const EngineRule = math.MaxInt32

// Validator checks one drawn object.
type Validator func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error)

// TextValidator checks one closed text run.
type TextValidator func(ctx context.Context, run *contentstream.TextRun) ([]compliance.Violation, error)

// Result is a violation plus the position it is ordered by.
type Result struct {
	Violation compliance.Violation
	Rule      int // registration index of the producing rule
	Page      int
	Seq       int // discovery sequence of the object within its page
	Index     int // position within the validator's output
}

// Less orders results by rule, page, discovery sequence and output position.
func (r Result) Less(o Result) bool {
	if r.Rule != o.Rule {
		return r.Rule < o.Rule
	}
	if r.Page != o.Page {
		return r.Page < o.Page
	}
	if r.Seq != o.Seq {
		return r.Seq < o.Seq
	}
	return r.Index < o.Index
}

// Sort orders rs in place.
func Sort(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Less(rs[j]) })
}

type Config struct {
	// Workers bounds concurrent validator calls. Zero means 1.
	Workers int
	// PageTimeout bounds EndPage. Zero means DefaultPageTimeout.
	PageTimeout time.Duration
	Logger      observability.Logger
}

type objectValidator struct {
	id   string
	rule int
	fn   Validator
}

type textValidator struct {
	id   string
	rule int
	fn   TextValidator
}

// page tracks the tasks submitted for one page.
type page struct {
	index  int
	ctx    context.Context // expires PageTimeout after BeginPage
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	pending   int
	submitted int
	dropped   int // tasks skipped or discarded after the deadline
	abandoned bool
	failures  map[int]failure
}

// failure is the first failing task of one rule on a page.
type failure struct {
	id  string
	seq int
	err error
}

// PageSummary describes how a page's tasks finished.
type PageSummary struct {
	Page     int
	Tasks    int
	TimedOut bool
	// Pending counts tasks abandoned by the timeout.
	Pending int
}

// Dispatcher implements contentstream.Sink. Pages are processed one at a
// time: BeginPage, then the walk feeds Draw and Text, then EndPage.
type Dispatcher struct {
	cfg     Config
	logger  observability.Logger
	objects []objectValidator
	texts   []textValidator
	sem     chan struct{}

	mu      sync.Mutex
	results []Result
	current *page
}

func New(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Dispatcher{cfg: cfg, logger: logger, sem: make(chan struct{}, cfg.Workers)}
}

// AddValidator registers fn for every drawn object. rule is the producing
// rule's registration index.
func (d *Dispatcher) AddValidator(id string, rule int, fn Validator) {
	d.objects = append(d.objects, objectValidator{id: id, rule: rule, fn: fn})
}

// AddTextValidator registers fn for every closed text run.
func (d *Dispatcher) AddTextValidator(id string, rule int, fn TextValidator) {
	d.texts = append(d.texts, textValidator{id: id, rule: rule, fn: fn})
}

// Validators reports how many object and text validators are registered.
func (d *Dispatcher) Validators() (objects, texts int) { return len(d.objects), len(d.texts) }

// BeginPage starts collecting tasks for page index. An unfinished previous
// page is ended first. The page timeout runs from here.
func (d *Dispatcher) BeginPage(ctx context.Context, index int) {
	if d.current != nil {
		d.EndPage()
	}
	pctx, cancel := context.WithTimeout(ctx, d.cfg.PageTimeout)
	d.current = &page{index: index, ctx: pctx, cancel: cancel, failures: map[int]failure{}}
}

// Draw submits obj to every object validator.
func (d *Dispatcher) Draw(obj *contentstream.DrawnObject) {
	for _, v := range d.objects {
		d.submit(v.id, v.rule, obj.Page, obj.Seq, func(ctx context.Context) ([]compliance.Violation, error) {
			return v.fn(ctx, obj)
		})
	}
}

// Text submits run to every text validator.
func (d *Dispatcher) Text(run *contentstream.TextRun) {
	for _, v := range d.texts {
		d.submit(v.id, v.rule, run.Page, run.Seq, func(ctx context.Context) ([]compliance.Violation, error) {
			return v.fn(ctx, run)
		})
	}
}

// submit blocks until a worker is free or the page expires.
func (d *Dispatcher) submit(id string, rule, pageIndex, seq int, task func(context.Context) ([]compliance.Violation, error)) {
	p := d.current
	if p == nil {
		d.BeginPage(context.Background(), pageIndex)
		p = d.current
	}
	p.mu.Lock()
	p.submitted++
	p.mu.Unlock()

	select {
	case d.sem <- struct{}{}:
	case <-p.ctx.Done():
		p.drop()
		return
	}

	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			<-d.sem
			p.mu.Lock()
			p.pending--
			p.mu.Unlock()
		}()

		vs, err := safeCall(p.ctx, task)
		if p.ctx.Err() != nil {
			p.drop()
			return
		}
		if err != nil {
			p.fail(rule, failure{id: id, seq: seq, err: err})
			return
		}
		if len(vs) == 0 {
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		p.mu.Lock()
		abandoned := p.abandoned
		p.mu.Unlock()
		if abandoned {
			return
		}
		for i, v := range vs {
			d.results = append(d.results, Result{Violation: v, Rule: rule, Page: pageIndex, Seq: seq, Index: i})
		}
	}()
}

func (p *page) drop() {
	p.mu.Lock()
	p.dropped++
	p.mu.Unlock()
}

// fail records a failing task. Only the earliest failure of each rule on
// the page is reported.
func (p *page) fail(rule int, f failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.abandoned {
		p.dropped++
		return
	}
	if prev, ok := p.failures[rule]; !ok || f.seq < prev.seq {
		p.failures[rule] = f
	}
}

// flush moves the page's failures into the results. Callers hold d.mu.
func (d *Dispatcher) flush(p *page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for rule, f := range p.failures {
		d.results = append(d.results, Result{
			Violation: compliance.InternalViolation(f.id, p.index, f.err),
			Rule:      rule,
			Page:      p.index,
			Seq:       f.seq,
		})
	}
	p.failures = nil
}

func safeCall(ctx context.Context, task func(context.Context) ([]compliance.Violation, error)) (vs []compliance.Violation, err error) {
	defer func() {
		if r := recover(); r != nil {
			vs, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}

// EndPage waits for the current page's tasks. When the page timeout
// elapses first, the remaining tasks are abandoned, their late results are
// dropped and one timeout violation is recorded.
func (d *Dispatcher) EndPage() PageSummary {
	p := d.current
	if p == nil {
		return PageSummary{Page: -1}
	}
	d.current = nil
	defer p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-p.ctx.Done():
		if !errors.Is(p.ctx.Err(), context.DeadlineExceeded) {
			// Cancelled by the caller: tasks see it and return.
			<-done
		}
	}

	// Hold d.mu while marking, so no task appends after the outcome is fixed.
	d.mu.Lock()
	p.mu.Lock()
	timedOut := errors.Is(p.ctx.Err(), context.DeadlineExceeded)
	p.abandoned = timedOut
	pending := p.pending + p.dropped
	p.mu.Unlock()
	d.flush(p)
	if !timedOut || pending == 0 {
		d.mu.Unlock()
		return PageSummary{Page: p.index, Tasks: p.submitted}
	}
	d.results = append(d.results, Result{
		Violation: compliance.TimeoutViolation(p.index, d.cfg.PageTimeout, pending),
		Rule:      EngineRule,
		Page:      p.index,
	})
	d.mu.Unlock()

	d.logger.Warn("page validation timed out",
		observability.Int("page", p.index),
		observability.Int("pending", pending),
		observability.Duration("timeout", d.cfg.PageTimeout))
	return PageSummary{Page: p.index, Tasks: p.submitted, TimedOut: true, Pending: pending}
}

// Results returns the collected results in completion order.
func (d *Dispatcher) Results() []Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Result(nil), d.results...)
}
