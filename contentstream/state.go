package contentstream

import (
	"slices"

	"github.com/wudi/preflight/colorspace"
	"github.com/wudi/preflight/coords"
	"github.com/wudi/preflight/ir/raw"
)

// ColorSpace is a color space as selected by the content stream: the operand
// name and the object it denotes. Object is nil when the name matched no
// resource, which makes every later classification fail.
type ColorSpace struct {
	Name   string
	Object raw.Object
}

// DeviceSpace returns the color space a device family name denotes.
func DeviceSpace(family string) ColorSpace {
	return ColorSpace{Name: family, Object: raw.Name(family)}
}

func (c ColorSpace) identity() any {
	if key := raw.IdentityOf(c.Object); key != nil {
		return key
	}
	return c.Name
}

// GraphicsState is the subset of the PDF graphics state validators look at.
// Snapshots handed out by StateTracker own their slices.
type GraphicsState struct {
	CTM              coords.Matrix
	StrokeColorSpace ColorSpace
	StrokeColor      []float64
	FillColorSpace   ColorSpace
	FillColor        []float64
}

// DefaultState is the state at the start of every page.
func DefaultState() GraphicsState {
	return GraphicsState{
		CTM:              coords.Identity(),
		StrokeColorSpace: DeviceSpace(colorspace.DeviceGray),
		StrokeColor:      []float64{0},
		FillColorSpace:   DeviceSpace(colorspace.DeviceGray),
		FillColor:        []float64{0},
	}
}

// Clone returns a deep copy.
func (gs GraphicsState) Clone() GraphicsState {
	gs.StrokeColor = slices.Clone(gs.StrokeColor)
	gs.FillColor = slices.Clone(gs.FillColor)
	return gs
}

// SameColor reports whether both states use the same color space objects
// and color components for stroking and filling.
func (gs GraphicsState) SameColor(o GraphicsState) bool {
	return gs.StrokeColorSpace.identity() == o.StrokeColorSpace.identity() &&
		gs.FillColorSpace.identity() == o.FillColorSpace.identity() &&
		slices.Equal(gs.StrokeColor, o.StrokeColor) &&
		slices.Equal(gs.FillColor, o.FillColor)
}

// StateTracker maintains the q/Q stack for one page.
type StateTracker struct {
	current GraphicsState
	stack   []GraphicsState
	base    int
}

func NewStateTracker(initial GraphicsState) *StateTracker {
	return &StateTracker{current: initial.Clone()}
}

func (t *StateTracker) Save() {
	t.stack = append(t.stack, t.current.Clone())
}

// Restore pops the last saved state. Popping below the current base level
// (the page start, or the entry of the form being walked) fails with
// ErrStackUnderflow and leaves the state unchanged.
func (t *StateTracker) Restore() error {
	n := len(t.stack)
	if n <= t.base {
		return ErrStackUnderflow
	}
	t.current = t.stack[n-1]
	t.stack = t.stack[:n-1]
	return nil
}

// Depth returns the number of saved states.
func (t *StateTracker) Depth() int { return len(t.stack) }

// Enter saves the state and starts a new base level for a nested form.
// The returned mark must be handed to Leave.
func (t *StateTracker) Enter() int {
	mark := t.base
	t.Save()
	t.base = len(t.stack)
	return mark
}

// Leave discards whatever the nested form left on the stack and restores
// the state saved by Enter.
func (t *StateTracker) Leave(mark int) {
	top := t.base - 1
	t.current = t.stack[top]
	t.stack = t.stack[:top]
	t.base = mark
}

// Concat left-multiplies the CTM by m.
func (t *StateTracker) Concat(m coords.Matrix) {
	t.current.CTM = m.Multiply(t.current.CTM)
}

// Current returns the live state. Its slices must not be modified or retained.
func (t *StateTracker) Current() GraphicsState { return t.current }

// Snapshot returns an independent copy of the live state.
func (t *StateTracker) Snapshot() GraphicsState { return t.current.Clone() }

func (t *StateTracker) SetStrokeColorSpace(cs ColorSpace, initial []float64) {
	t.current.StrokeColorSpace = cs
	t.current.StrokeColor = slices.Clone(initial)
}

func (t *StateTracker) SetFillColorSpace(cs ColorSpace, initial []float64) {
	t.current.FillColorSpace = cs
	t.current.FillColor = slices.Clone(initial)
}

func (t *StateTracker) SetStrokeColor(c []float64) {
	t.current.StrokeColor = slices.Clone(c)
}

func (t *StateTracker) SetFillColor(c []float64) {
	t.current.FillColor = slices.Clone(c)
}
