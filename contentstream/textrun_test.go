package contentstream

import (
	"testing"

	"github.com/wudi/preflight/ir/semantic"
)

func collectRuns() (*TextAccumulator, *[]*TextRun, func() (int, int)) {
	var runs []*TextRun
	seq := 0
	acc := NewTextAccumulator(func(r *TextRun) { runs = append(runs, r) })
	next := func() (int, int) {
		seq++
		return 0, seq
	}
	return acc, &runs, next
}

func TestTextRunsCloseOnColorChange(t *testing.T) {
	acc, runs, next := collectRuns()
	black := DefaultState()
	red := DefaultState()
	red.FillColorSpace = DeviceSpace("DeviceRGB")
	red.FillColor = []float64{1, 0, 0}

	acc.Show([]byte("abc"), nil, black, next)
	acc.Show([]byte("de"), nil, black, next)
	acc.Show([]byte("fg"), nil, red, next)
	acc.Close()

	if len(*runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(*runs))
	}
	first, second := (*runs)[0], (*runs)[1]
	if string(first.Codes) != "abcde" || first.Glyphs != 5 {
		t.Fatalf("unexpected first run %q/%d", first.Codes, first.Glyphs)
	}
	if string(second.Codes) != "fg" || second.State.FillColor[0] != 1 {
		t.Fatalf("unexpected second run %+v", second)
	}
	if first.Seq >= second.Seq {
		t.Fatalf("runs out of order: %d, %d", first.Seq, second.Seq)
	}
}

func TestTextRunCompositeFontCountsTwoBytes(t *testing.T) {
	acc, runs, next := collectRuns()
	font := &semantic.Font{Subtype: "Type0", Composite: true}
	acc.Show([]byte{0, 1, 0, 2, 0}, font, DefaultState(), next)
	acc.Close()
	if len(*runs) != 1 || (*runs)[0].Glyphs != 2 {
		t.Fatalf("expected one run of two glyphs, got %+v", *runs)
	}
}

func TestTextRunEmptyStringOpensNothing(t *testing.T) {
	acc, runs, next := collectRuns()
	acc.Show(nil, nil, DefaultState(), next)
	if acc.Open() {
		t.Fatalf("empty string opened a run")
	}
	acc.Close()
	if len(*runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(*runs))
	}
}

func TestTextRunReferenceStateIsCopied(t *testing.T) {
	acc, runs, next := collectRuns()
	st := DefaultState()
	acc.Show([]byte("x"), nil, st, next)
	st.FillColor[0] = 0.7
	acc.Close()
	if (*runs)[0].State.FillColor[0] != 0 {
		t.Fatalf("run kept a reference to the live color slice")
	}
}
