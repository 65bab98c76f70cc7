package contentstream

import "github.com/wudi/preflight/ir/semantic"

// TextRun is a span of consecutive glyphs drawn with one color state.
type TextRun struct {
	Page   int
	Seq    int
	Font   *semantic.Font // font of the first glyph
	Codes  []byte         // shown character codes
	Glyphs int
	State  GraphicsState // reference state, owned by the run
}

// TextAccumulator groups shown glyphs into runs. A run closes when a glyph
// arrives with a different color state, or on Close.
type TextAccumulator struct {
	open *TextRun
	emit func(*TextRun)
}

func NewTextAccumulator(emit func(*TextRun)) *TextAccumulator {
	return &TextAccumulator{emit: emit}
}

// glyphWidth returns the code length of one glyph: two bytes for composite
// fonts, one otherwise.
func glyphWidth(font *semantic.Font) int {
	if font != nil && font.Composite {
		return 2
	}
	return 1
}

// Show feeds the glyphs of one shown string. newRun supplies page and
// sequence number for any run it opens.
func (a *TextAccumulator) Show(codes []byte, font *semantic.Font, state GraphicsState, newRun func() (page, seq int)) {
	width := glyphWidth(font)
	for i := 0; i+width <= len(codes); i += width {
		if a.open != nil && !a.open.State.SameColor(state) {
			a.Close()
		}
		if a.open == nil {
			page, seq := newRun()
			a.open = &TextRun{Page: page, Seq: seq, Font: font, State: state.Clone()}
		}
		a.open.Codes = append(a.open.Codes, codes[i:i+width]...)
		a.open.Glyphs++
	}
}

// Close emits the open run, if any.
func (a *TextAccumulator) Close() {
	if a.open == nil {
		return
	}
	run := a.open
	a.open = nil
	if a.emit != nil {
		a.emit(run)
	}
}

// Open reports whether a run is being accumulated.
func (a *TextAccumulator) Open() bool { return a.open != nil }
