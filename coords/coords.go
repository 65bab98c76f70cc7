package coords

import "math"

// Matrix is a PDF affine transform [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m × o, i.e. m applied first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

const epsilon = 1e-9

// ScaleX returns the horizontal scale of the transform. A rotated transform
// with a (near) zero a entry reports the length of the (a, b) vector instead.
func (m Matrix) ScaleX() float64 {
	if math.Abs(m[0]) < epsilon && m[1] != 0 {
		return math.Hypot(m[0], m[1])
	}
	return m[0]
}

// ScaleY is the vertical counterpart of ScaleX.
func (m Matrix) ScaleY() float64 {
	if math.Abs(m[3]) < epsilon && m[2] != 0 {
		return math.Hypot(m[2], m[3])
	}
	return m[3]
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}
