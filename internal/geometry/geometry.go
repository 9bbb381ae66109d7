// Package geometry implements the axis-aligned rectangle math used to clean up
// detector output and to hit-test player taps.
//
// All coordinates are pixels with the origin at the top-left corner of the
// image; X grows rightward and Y grows downward.
package geometry

import "math"

// Rect is an axis-aligned rectangle. A usable Rect has positive Width and Height.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Area() float64   { return r.Width * r.Height }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the midpoint of r.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Valid reports whether r has a non-negative origin and positive size.
func (r Rect) Valid() bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0
}

// ContainsPoint reports whether (x, y) lies inside r. All four edges are inclusive.
func (r Rect) ContainsPoint(x, y float64) bool {
	return x >= r.X && x <= r.Right() && y >= r.Y && y <= r.Bottom()
}

// IntersectionArea returns the area shared by a and b. Rectangles that only
// touch along an edge or corner share zero area.
func IntersectionArea(a, b Rect) float64 {
	w := math.Min(a.Right(), b.Right()) - math.Max(a.X, b.X)
	h := math.Min(a.Bottom(), b.Bottom()) - math.Max(a.Y, b.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// ContainmentRatio is the fraction of child's area covered by parent.
// A degenerate child yields 0.
func ContainmentRatio(child, parent Rect) float64 {
	area := child.Area()
	if area <= 0 {
		return 0
	}
	return IntersectionArea(child, parent) / area
}

// OverlapRatio is the fraction of a's own area covered by b. It is
// deliberately asymmetric: OverlapRatio(a, b) != OverlapRatio(b, a) in general.
func OverlapRatio(a, b Rect) float64 {
	return ContainmentRatio(a, b)
}

// ShrinkCentered returns r scaled by (1 - ratio) in both dimensions around its center.
func ShrinkCentered(r Rect, ratio float64) Rect {
	cx, cy := r.Center()
	w := r.Width * (1 - ratio)
	h := r.Height * (1 - ratio)
	return Rect{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}
}

// FromNormalizedBox converts a detector box in [ymin, xmin, ymax, xmax] order
// into pixel space. scale is the value the detector uses for the full image
// edge, such as 1 or 1000; a non-positive scale means 1. The result is
// clamped to the image.
func FromNormalizedBox(box [4]float64, scale float64, width, height int) Rect {
	if scale <= 0 {
		scale = 1
	}
	ymin := clamp(box[0]/scale, 0, 1) * float64(height)
	xmin := clamp(box[1]/scale, 0, 1) * float64(width)
	ymax := clamp(box[2]/scale, 0, 1) * float64(height)
	xmax := clamp(box[3]/scale, 0, 1) * float64(width)
	if xmax < xmin {
		xmin, xmax = xmax, xmin
	}
	if ymax < ymin {
		ymin, ymax = ymax, ymin
	}
	return Rect{
		X:      math.Round(xmin),
		Y:      math.Round(ymin),
		Width:  math.Round(xmax) - math.Round(xmin),
		Height: math.Round(ymax) - math.Round(ymin),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
