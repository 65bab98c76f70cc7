package coords

import (
	"math"
	"testing"
)

func TestMultiplyOrder(t *testing.T) {
	// scale first, then translate
	m := Scale(2, 3).Multiply(Translate(10, 20))
	p := m.Transform(Point{X: 1, Y: 1})
	if p.X != 12 || p.Y != 23 {
		t.Fatalf("unexpected point %+v", p)
	}
}

func TestScaleOfRotatedMatrix(t *testing.T) {
	m := Scale(100, 50).Multiply(Rotate(math.Pi / 2))
	if got := math.Round(math.Abs(m.ScaleX())); got != 100 {
		t.Fatalf("ScaleX = %v", got)
	}
	if got := math.Round(math.Abs(m.ScaleY())); got != 50 {
		t.Fatalf("ScaleY = %v", got)
	}
}
