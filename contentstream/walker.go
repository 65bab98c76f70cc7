package contentstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/preflight/colorspace"
	"github.com/wudi/preflight/coords"
	"github.com/wudi/preflight/ir/raw"
	"github.com/wudi/preflight/ir/semantic"
	"github.com/wudi/preflight/recovery"
	"github.com/wudi/preflight/scanner"
)

var (
	// ErrStreamCorruption covers grammar violations in a content stream.
	ErrStreamCorruption = errors.New("contentstream: corrupt content stream")
	// ErrStackUnderflow is returned by Q without a matching q.
	ErrStackUnderflow = fmt.Errorf("%w: graphics state stack underflow", ErrStreamCorruption)
	// ErrDepthExceeded is returned when forms nest deeper than the walker allows.
	ErrDepthExceeded = errors.New("contentstream: form nesting too deep")
	// ErrResourceMissing is returned when the recovery strategy refuses to
	// skip a draw of an unknown resource.
	ErrResourceMissing = errors.New("contentstream: resource not found")
)

// DefaultMaxDepth bounds form recursion.
const DefaultMaxDepth = 64

type Kind int

const (
	KindImage Kind = iota
	KindForm
	KindTransparencyGroup
	KindPostScript
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "Image"
	case KindForm:
		return "Form"
	case KindTransparencyGroup:
		return "TransparencyGroup"
	case KindPostScript:
		return "PostScript"
	}
	return "Unknown"
}

// DrawnObject is one Do of an external object together with the state it
// was drawn with.
type DrawnObject struct {
	Name    string
	Kind    Kind
	XObject *semantic.XObject
	Page    int
	Seq     int
	State   GraphicsState
}

// Sink receives what the walker discovers, in content-stream order.
type Sink interface {
	Draw(obj *DrawnObject)
	Text(run *TextRun)
}

// Stats counts what a page walk saw and skipped.
type Stats struct {
	Operations          int
	Draws               int
	TextRuns            int
	UnresolvedResources int
	SkippedImages       int
	MaxDepth            int
}

func (s *Stats) Add(o Stats) {
	s.Operations += o.Operations
	s.Draws += o.Draws
	s.TextRuns += o.TextRuns
	s.UnresolvedResources += o.UnresolvedResources
	s.SkippedImages += o.SkippedImages
	if o.MaxDepth > s.MaxDepth {
		s.MaxDepth = o.MaxDepth
	}
}

type Config struct {
	// MaxDepth bounds form recursion; zero means DefaultMaxDepth.
	MaxDepth int
	// MaxImagePixels skips images with more pixels; zero means no limit.
	MaxImagePixels int64
	// Recovery decides whether a draw of an unknown resource is skipped.
	// Nil skips.
	Recovery recovery.Strategy
	// Scanner configures lexing of content bytes.
	Scanner scanner.Config
}

// TextState is the text object state the walker tracks.
type TextState struct {
	Font           *semantic.Font
	FontSize       float64
	Leading        float64
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

func newTextState() *TextState {
	return &TextState{TextMatrix: coords.Identity(), TextLineMatrix: coords.Identity()}
}

// ExecutionContext is the per-stream state operator handlers work on.
type ExecutionContext struct {
	Ctx       context.Context
	Page      int
	State     *StateTracker
	Text      *TextState
	Resources *semantic.Resources
	Runs      *TextAccumulator
	Stats     *Stats

	depth int
	seq   *int
}

// NextSeq returns the next per-page discovery sequence number.
func (ec *ExecutionContext) NextSeq() int {
	n := *ec.seq
	*ec.seq++
	return n
}

type OperatorHandler func(ec *ExecutionContext, operands []raw.Object) error

// Walker interprets page content streams.
type Walker struct {
	doc      raw.Resolver
	sink     Sink
	cfg      Config
	handlers map[string]OperatorHandler
}

func NewWalker(doc raw.Resolver, sink Sink, cfg Config) *Walker {
	if doc == nil {
		doc = raw.Direct{}
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	w := &Walker{doc: doc, sink: sink, cfg: cfg, handlers: make(map[string]OperatorHandler)}
	w.registerDefaults()
	return w
}

// RegisterHandler installs h for op, replacing any existing handler.
func (w *Walker) RegisterHandler(op string, h OperatorHandler) { w.handlers[op] = h }

func (w *Walker) registerDefaults() {
	w.RegisterHandler("q", func(ec *ExecutionContext, _ []raw.Object) error {
		ec.State.Save()
		return nil
	})
	w.RegisterHandler("Q", func(ec *ExecutionContext, _ []raw.Object) error {
		return ec.State.Restore()
	})
	w.RegisterHandler("cm", func(ec *ExecutionContext, ops []raw.Object) error {
		if m, ok := matrixOf(ops); ok {
			ec.State.Concat(m)
		}
		return nil
	})

	w.RegisterHandler("CS", func(ec *ExecutionContext, ops []raw.Object) error {
		if cs, ok := w.colorSpaceOperand(ec, ops); ok {
			ec.State.SetStrokeColorSpace(cs, colorspace.InitialColor(w.doc, cs.Object))
		}
		return nil
	})
	w.RegisterHandler("cs", func(ec *ExecutionContext, ops []raw.Object) error {
		if cs, ok := w.colorSpaceOperand(ec, ops); ok {
			ec.State.SetFillColorSpace(cs, colorspace.InitialColor(w.doc, cs.Object))
		}
		return nil
	})
	stroke := func(ec *ExecutionContext, ops []raw.Object) error {
		ec.State.SetStrokeColor(numbers(ops))
		return nil
	}
	fill := func(ec *ExecutionContext, ops []raw.Object) error {
		ec.State.SetFillColor(numbers(ops))
		return nil
	}
	w.RegisterHandler("SC", stroke)
	w.RegisterHandler("SCN", stroke)
	w.RegisterHandler("sc", fill)
	w.RegisterHandler("scn", fill)
	for _, dev := range []struct {
		stroke, fill string
		family       string
	}{
		{"G", "g", colorspace.DeviceGray},
		{"RG", "rg", colorspace.DeviceRGB},
		{"K", "k", colorspace.DeviceCMYK},
	} {
		family := dev.family
		w.RegisterHandler(dev.stroke, func(ec *ExecutionContext, ops []raw.Object) error {
			ec.State.SetStrokeColorSpace(DeviceSpace(family), numbers(ops))
			return nil
		})
		w.RegisterHandler(dev.fill, func(ec *ExecutionContext, ops []raw.Object) error {
			ec.State.SetFillColorSpace(DeviceSpace(family), numbers(ops))
			return nil
		})
	}

	w.RegisterHandler("BT", func(ec *ExecutionContext, _ []raw.Object) error {
		ec.Text.TextMatrix = coords.Identity()
		ec.Text.TextLineMatrix = coords.Identity()
		return nil
	})
	w.RegisterHandler("ET", func(ec *ExecutionContext, _ []raw.Object) error { return nil })
	w.RegisterHandler("Tf", func(ec *ExecutionContext, ops []raw.Object) error {
		if len(ops) != 2 {
			return nil
		}
		if name, ok := ops[0].(raw.NameObj); ok {
			// an unknown font keeps the glyphs countable as simple-font codes
			ec.Text.Font = nil
			if ec.Resources != nil {
				ec.Text.Font = ec.Resources.Fonts[name.Val]
			}
		}
		if size, ok := ops[1].(raw.NumberObj); ok {
			ec.Text.FontSize = size.Float()
		}
		return nil
	})
	w.RegisterHandler("TL", func(ec *ExecutionContext, ops []raw.Object) error {
		if n := numbers(ops); len(n) == 1 {
			ec.Text.Leading = n[0]
		}
		return nil
	})
	w.RegisterHandler("Td", func(ec *ExecutionContext, ops []raw.Object) error {
		if n := numbers(ops); len(n) == 2 {
			moveText(ec.Text, n[0], n[1])
		}
		return nil
	})
	w.RegisterHandler("TD", func(ec *ExecutionContext, ops []raw.Object) error {
		if n := numbers(ops); len(n) == 2 {
			ec.Text.Leading = -n[1]
			moveText(ec.Text, n[0], n[1])
		}
		return nil
	})
	w.RegisterHandler("Tm", func(ec *ExecutionContext, ops []raw.Object) error {
		if m, ok := matrixOf(ops); ok {
			ec.Text.TextLineMatrix = m
			ec.Text.TextMatrix = m
		}
		return nil
	})
	w.RegisterHandler("T*", func(ec *ExecutionContext, _ []raw.Object) error {
		moveText(ec.Text, 0, -ec.Text.Leading)
		return nil
	})
	w.RegisterHandler("Tj", func(ec *ExecutionContext, ops []raw.Object) error {
		if len(ops) == 1 {
			w.show(ec, ops[0])
		}
		return nil
	})
	w.RegisterHandler("TJ", func(ec *ExecutionContext, ops []raw.Object) error {
		if len(ops) != 1 {
			return nil
		}
		if arr, ok := ops[0].(*raw.ArrayObj); ok {
			for _, it := range arr.Items {
				w.show(ec, it)
			}
		}
		return nil
	})
	w.RegisterHandler("'", func(ec *ExecutionContext, ops []raw.Object) error {
		moveText(ec.Text, 0, -ec.Text.Leading)
		if len(ops) == 1 {
			w.show(ec, ops[0])
		}
		return nil
	})
	w.RegisterHandler("\"", func(ec *ExecutionContext, ops []raw.Object) error {
		moveText(ec.Text, 0, -ec.Text.Leading)
		if len(ops) == 3 {
			w.show(ec, ops[2])
		}
		return nil
	})

	w.RegisterHandler("Do", w.do)
}

func moveText(ts *TextState, tx, ty float64) {
	ts.TextLineMatrix = coords.Translate(tx, ty).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}

func (w *Walker) show(ec *ExecutionContext, operand raw.Object) {
	s, ok := operand.(raw.StringObj)
	if !ok {
		return
	}
	ec.Runs.Show(s.Bytes, ec.Text.Font, ec.State.Current(), func() (int, int) {
		return ec.Page, ec.NextSeq()
	})
}

// colorSpaceOperand maps the CS/cs operand to a color space. Device family
// names and Pattern need no resource entry.
func (w *Walker) colorSpaceOperand(ec *ExecutionContext, ops []raw.Object) (ColorSpace, bool) {
	if len(ops) != 1 {
		return ColorSpace{}, false
	}
	name, ok := ops[0].(raw.NameObj)
	if !ok {
		return ColorSpace{}, false
	}
	if ec.Resources != nil {
		if obj, ok := ec.Resources.ColorSpaces[name.Val]; ok {
			return ColorSpace{Name: name.Val, Object: obj}, true
		}
	}
	switch name.Val {
	case colorspace.DeviceGray, colorspace.DeviceRGB, colorspace.DeviceCMYK, colorspace.Pattern:
		return DeviceSpace(name.Val), true
	}
	ec.Stats.UnresolvedResources++
	return ColorSpace{Name: name.Val}, true
}

func (w *Walker) do(ec *ExecutionContext, ops []raw.Object) error {
	if len(ops) != 1 {
		return nil
	}
	name, ok := ops[0].(raw.NameObj)
	if !ok {
		return nil
	}
	var x *semantic.XObject
	if ec.Resources != nil {
		x = ec.Resources.XObjects[name.Val]
	}
	if x == nil || x.Kind == semantic.XObjectUnknown {
		return w.unresolved(ec, name.Val)
	}

	obj := &DrawnObject{Name: name.Val, XObject: x, Page: ec.Page}
	switch x.Kind {
	case semantic.XObjectImage:
		obj.Kind = KindImage
		if img := x.Image; img != nil && w.cfg.MaxImagePixels > 0 &&
			int64(img.Width)*int64(img.Height) > w.cfg.MaxImagePixels {
			ec.Stats.SkippedImages++
			return nil
		}
	case semantic.XObjectPostScript:
		obj.Kind = KindPostScript
	case semantic.XObjectForm:
		obj.Kind = KindForm
		if x.IsTransparencyGroup() {
			obj.Kind = KindTransparencyGroup
		}
	}
	obj.Seq = ec.NextSeq()
	obj.State = ec.State.Snapshot()
	ec.Stats.Draws++
	if w.sink != nil {
		w.sink.Draw(obj)
	}
	if x.Kind == semantic.XObjectForm && x.Form != nil {
		return w.form(ec, x.Form)
	}
	return nil
}

func (w *Walker) unresolved(ec *ExecutionContext, name string) error {
	ec.Stats.UnresolvedResources++
	if w.cfg.Recovery == nil {
		return nil
	}
	err := fmt.Errorf("%w: /%s", ErrResourceMissing, name)
	action := w.cfg.Recovery.OnError(ec.Ctx, err, recovery.Location{Page: ec.Page, Resource: name, Component: "walker"})
	if action.Continues() {
		return nil
	}
	return err
}

func (w *Walker) form(ec *ExecutionContext, form *semantic.Form) error {
	if ec.depth+1 > w.cfg.MaxDepth {
		return ErrDepthExceeded
	}
	ops, err := w.operations(ec.Page, form.Operations, form.Content, form.ContentErr)
	if err != nil {
		return err
	}
	ec.Runs.Close()

	mark := ec.State.Enter()
	defer ec.State.Leave(mark)
	ec.State.Concat(form.Matrix)

	child := *ec
	child.depth = ec.depth + 1
	child.Text = newTextState()
	if form.Resources != nil {
		child.Resources = form.Resources
	}
	if child.depth > ec.Stats.MaxDepth {
		ec.Stats.MaxDepth = child.depth
	}
	return w.run(&child, ops)
}

func (w *Walker) operations(page int, ops []semantic.Operation, content []byte, contentErr error) ([]semantic.Operation, error) {
	if contentErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamCorruption, contentErr)
	}
	if ops != nil || content == nil {
		return ops, nil
	}
	cfg := w.cfg.Scanner
	cfg.Location.Page = page
	if cfg.Location.Component == "" {
		cfg.Location.Component = "content"
	}
	return Parse(content, cfg)
}

func (w *Walker) run(ec *ExecutionContext, ops []semantic.Operation) error {
	for _, op := range ops {
		if err := ec.Ctx.Err(); err != nil {
			return err
		}
		ec.Stats.Operations++
		h, ok := w.handlers[op.Operator]
		if !ok {
			continue
		}
		if err := h(ec, op.Operands); err != nil {
			return err
		}
	}
	return nil
}

// WalkPage makes one pass over the page. A returned error means the page was
// aborted part way; everything discovered before that point has already
// reached the sink, and the open text run is closed either way.
func (w *Walker) WalkPage(ctx context.Context, page *semantic.Page) (Stats, error) {
	var stats Stats
	seq := 0
	ec := &ExecutionContext{
		Ctx:       ctx,
		Page:      page.Index,
		State:     NewStateTracker(DefaultState()),
		Text:      newTextState(),
		Resources: page.Resources,
		Stats:     &stats,
		seq:       &seq,
	}
	ec.Runs = NewTextAccumulator(func(run *TextRun) {
		stats.TextRuns++
		if w.sink != nil {
			w.sink.Text(run)
		}
	})

	ops, err := w.operations(page.Index, page.Operations, page.Content, page.ContentErr)
	if err != nil {
		return stats, err
	}
	err = w.run(ec, ops)
	ec.Runs.Close()
	return stats, err
}

func numbers(ops []raw.Object) []float64 {
	out := make([]float64, 0, len(ops))
	for _, o := range ops {
		if n, ok := o.(raw.NumberObj); ok {
			out = append(out, n.Float())
		}
	}
	return out
}

func matrixOf(ops []raw.Object) (coords.Matrix, bool) {
	n := numbers(ops)
	if len(n) != 6 || len(ops) != 6 {
		return coords.Matrix{}, false
	}
	return coords.Matrix{n[0], n[1], n[2], n[3], n[4], n[5]}, true
}
