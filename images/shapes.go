// Package images - geometry primitives shared by detection, gating and tracking.
package images

import "math"

// Point is a position in pixel space.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(o Point) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

// Rect is a lightweight bounding box in pixel space.
//
// Corners are inclusive: a Rect{0, 0, 0, 0} covers exactly one pixel.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Canon returns the rectangle with its corners ordered so that X1<=X2 and Y1<=Y2.
func (r Rect) Canon() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Width is the inclusive pixel width, never negative.
func (r Rect) Width() int {
	return max(0, r.X2-r.X1+1)
}

// Height is the inclusive pixel height, never negative.
func (r Rect) Height() int {
	return max(0, r.Y2-r.Y1+1)
}

// Area counts the pixels covered by the rectangle.
//
// Arguments:
//   - r (receiver Rect): The rectangle.
//
// Returns:
//   - int: max(0, x2-x1+1) * max(0, y2-y1+1). Degenerate rectangles yield 0.
func (r Rect) Area() int {
	return r.Width() * r.Height()
}

// Intersect returns the overlap of two rectangles. The result may be degenerate
// (zero Area) when the rectangles do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{
		X: float64(r.X1+r.X2) / 2,
		Y: float64(r.Y1+r.Y2) / 2,
	}
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Area() == 0
}

// CalculateIoU measures the overlap of two rectangles as
// Area(Intersection) / Area(Union), a value in [0, 1].
//
//   - 1.0 means the rectangles are identical.
//   - 0.0 means they do not overlap at all.
//
// Union is computed by inclusion-exclusion: Area(A) + Area(B) - Area(A∩B).
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: The IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 9, Y2: 9}
//	b := Rect{X1: 5, Y1: 5, X2: 14, Y2: 14}
//	iou := CalculateIoU(a, b) // 25 / (100 + 100 - 25) = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0.0
	}
	union := r.Area() + o.Area() - inter
	return float32(inter) / float32(union)
}
