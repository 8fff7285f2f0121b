package geom

import "fmt"

// Point is a location in page space.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle in page space. The origin is the top-left
// corner of the page and y grows downwards, matching rendered bitmaps.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// R is shorthand for Rect{x0, y0, x1, y1}.
func R(x0, y0, x1, y1 float64) Rect {
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Center returns the centroid of r.
func (r Rect) Center() Point {
	return Point{X: (r.X0 + r.X1) / 2, Y: (r.Y0 + r.Y1) / 2}
}

// Contains reports whether p lies in r. The right and bottom edges are
// exclusive so that a point on a shared edge belongs to one rectangle only.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X0 && p.X < r.X1 && p.Y >= r.Y0 && p.Y < r.Y1
}

// ContainsRect reports whether o lies entirely inside r, edges included.
func (r Rect) ContainsRect(o Rect) bool {
	return o.X0 >= r.X0 && o.Y0 >= r.Y0 && o.X1 <= r.X1 && o.Y1 <= r.Y1
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X0: r.X0 + dx, Y0: r.Y0 + dy, X1: r.X1 + dx, Y1: r.Y1 + dy}
}

// Scale multiplies every coordinate by s.
func (r Rect) Scale(s float64) Rect {
	return Rect{X0: r.X0 * s, Y0: r.Y0 * s, X1: r.X1 * s, Y1: r.Y1 * s}
}

// Expand grows r outward by independent margins on each side.
func (r Rect) Expand(left, top, right, bottom float64) Rect {
	return Rect{X0: r.X0 - left, Y0: r.Y0 - top, X1: r.X1 + right, Y1: r.Y1 + bottom}
}

// Intersect returns the overlap of r and o, or the zero Rect when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: max(r.X0, o.X0),
		Y0: max(r.Y0, o.Y0),
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g,%g,%g)", r.X0, r.Y0, r.X1, r.Y1)
}
