// Package engine runs a rule set over a document: document rules first, then
// one content walk per page feeding object and text rules through the
// dispatcher, then a deterministic merge of everything found.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/preflight/compliance"
	"github.com/wudi/preflight/contentstream"
	"github.com/wudi/preflight/dispatch"
	"github.com/wudi/preflight/filters"
	"github.com/wudi/preflight/ir/semantic"
	"github.com/wudi/preflight/observability"
	"github.com/wudi/preflight/recovery"
	"github.com/wudi/preflight/security"
)

var (
	ErrNilDocument = errors.New("engine: nil document")
	ErrNoRules     = errors.New("engine: no rules")
)

// Engine validates documents against an ordered rule list. It holds no
// per-document state and may be used for several documents, one at a time
// or concurrently.
type Engine struct {
	rules    []compliance.Rule
	logger   observability.Logger
	tracer   observability.Tracer
	limits   security.Limits
	recovery recovery.Strategy
	pipeline *filters.Pipeline
	// observed is set once a real logger or tracer is configured; the
	// document fingerprint is only computed then.
	observed bool
}

type Option func(*Engine)

func WithLogger(l observability.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
			_, nop := l.(observability.NopLogger)
			e.observed = e.observed || !nop
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
			e.observed = e.observed || t != observability.NopTracer()
		}
	}
}

// WithLimits replaces the limits. Zero fields take their defaults.
func WithLimits(l security.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithWorkers sets the size of the validator pool.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.limits.Workers = n }
}

// WithRecovery sets how the walker treats draws of missing resources. The
// default skips and counts them.
func WithRecovery(s recovery.Strategy) Option {
	return func(e *Engine) { e.recovery = s }
}

// WithFilters sets the pipeline used to decode image samples.
func WithFilters(p *filters.Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

func New(rules []compliance.Rule, opts ...Option) *Engine {
	e := &Engine{
		rules:  append([]compliance.Rule(nil), rules...),
		logger: observability.NopLogger{},
		tracer: observability.NopTracer(),
		limits: security.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.limits = e.limits.Normalize()
	if e.pipeline == nil {
		e.pipeline = filters.Standard(filters.Limits{MaxDecompressedSize: e.limits.MaxDecompressedSize})
	}
	return e
}

// Rules returns the registered rules in order.
func (e *Engine) Rules() []compliance.Rule { return append([]compliance.Rule(nil), e.rules...) }

// Limits returns the effective limits.
func (e *Engine) Limits() security.Limits { return e.limits }

// Validate runs every rule over doc. Violations are ordered by rule
// registration, then document-level before content findings, then page,
// then discovery order within the page. Rule failures become violations;
// the returned error is reserved for misuse and cancellation.
func (e *Engine) Validate(ctx context.Context, doc *semantic.Document) ([]compliance.Violation, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	if len(e.rules) == 0 {
		return nil, ErrNoRules
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := e.tracer.StartSpan(ctx, "preflight.validate")
	defer span.Finish()
	start := time.Now()
	span.SetTag("pages", len(doc.Pages))
	log := e.logger
	if e.observed {
		fingerprint := Fingerprint(doc)
		span.SetTag("fingerprint", fingerprint)
		log = log.With(observability.String("fingerprint", fingerprint))
	}
	log.Info("validation started",
		observability.Int("pages", len(doc.Pages)),
		observability.Int("rules", len(e.rules)))

	run := compliance.NewRun(doc, e.pipeline)
	results, err := e.documentRules(ctx, run, log)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	d := dispatch.New(dispatch.Config{
		Workers:     e.limits.WorkerCount(),
		PageTimeout: e.limits.PageTimeout,
		Logger:      log,
	})
	e.register(d, run)
	if objects, texts := d.Validators(); objects+texts > 0 {
		if err := e.walk(ctx, doc, d, log); err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	results = append(results, d.Results()...)
	dispatch.Sort(results)
	out := make([]compliance.Violation, len(results))
	for i, r := range results {
		out[i] = r.Violation
	}
	span.SetTag("violations", len(out))
	log.Info("validation finished",
		observability.Int("violations", len(out)),
		observability.Duration("elapsed", time.Since(start)))
	return out, nil
}

// documentRules runs the document rules in registration order. Their
// results sort before any content finding of the same rule.
func (e *Engine) documentRules(ctx context.Context, run *compliance.Run, log observability.Logger) ([]dispatch.Result, error) {
	var out []dispatch.Result
	for i, r := range e.rules {
		dr, ok := r.(compliance.DocumentRule)
		if !ok {
			continue
		}
		vs, err := checkDocument(ctx, dr, run)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn("rule failed", observability.String("rule", r.ID()), observability.Error("error", err))
			vs = []compliance.Violation{compliance.InternalViolation(r.ID(), -1, err)}
		}
		for j, v := range vs {
			out = append(out, dispatch.Result{Violation: v, Rule: i, Page: -1, Seq: -1, Index: j})
		}
	}
	return out, nil
}

func checkDocument(ctx context.Context, r compliance.DocumentRule, run *compliance.Run) (vs []compliance.Violation, err error) {
	defer func() {
		if p := recover(); p != nil {
			vs, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.CheckDocument(ctx, run)
}

func (e *Engine) register(d *dispatch.Dispatcher, run *compliance.Run) {
	for i, r := range e.rules {
		if or, ok := r.(compliance.ObjectRule); ok {
			d.AddValidator(r.ID(), i, func(ctx context.Context, obj *contentstream.DrawnObject) ([]compliance.Violation, error) {
				return or.CheckObject(ctx, run, obj)
			})
		}
		if tr, ok := r.(compliance.TextRule); ok {
			d.AddTextValidator(r.ID(), i, func(ctx context.Context, text *contentstream.TextRun) ([]compliance.Violation, error) {
				return tr.CheckText(ctx, run, text)
			})
		}
	}
}

// walk makes the content pass, one page at a time. A page whose content
// cannot be interpreted is abandoned; what it produced so far is kept.
func (e *Engine) walk(ctx context.Context, doc *semantic.Document, d *dispatch.Dispatcher, log observability.Logger) error {
	w := contentstream.NewWalker(doc, d, contentstream.Config{
		MaxDepth:       e.limits.MaxFormDepth,
		MaxImagePixels: e.limits.MaxImagePixels,
		Recovery:       e.recovery,
	})
	var total contentstream.Stats
	aborted := 0
	for _, page := range doc.Pages {
		pctx, span := e.tracer.StartSpan(ctx, "preflight.page")
		span.SetTag("page", page.Index)

		d.BeginPage(pctx, page.Index)
		stats, err := w.WalkPage(pctx, page)
		summary := d.EndPage()
		total.Add(stats)
		span.SetTag("draws", stats.Draws)
		span.SetTag("textRuns", stats.TextRuns)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				span.SetError(ctxErr)
				span.Finish()
				return ctxErr
			}
			aborted++
			span.SetError(err)
			log.Warn("page aborted",
				observability.Int("page", page.Index),
				observability.Int("operations", stats.Operations),
				observability.Error("error", err))
		}
		if stats.UnresolvedResources > 0 {
			log.Debug("unresolved resources skipped",
				observability.Int("page", page.Index),
				observability.Int("count", stats.UnresolvedResources))
		}
		if summary.TimedOut {
			span.SetTag("timedOut", true)
		}
		span.Finish()
	}
	log.Info("content pass finished",
		observability.Int("draws", total.Draws),
		observability.Int("textRuns", total.TextRuns),
		observability.Int("unresolved", total.UnresolvedResources),
		observability.Int("skippedImages", total.SkippedImages),
		observability.Int("abortedPages", aborted))
	return nil
}
