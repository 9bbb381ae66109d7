package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestIntersectionArea(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want float64
	}{
		{"disjoint", Rect{0, 0, 10, 10}, Rect{20, 20, 5, 5}, 0},
		{"touching edge", Rect{0, 0, 10, 10}, Rect{10, 0, 10, 10}, 0},
		{"touching corner", Rect{0, 0, 10, 10}, Rect{10, 10, 10, 10}, 0},
		{"partial", Rect{0, 0, 10, 10}, Rect{5, 5, 10, 10}, 25},
		{"nested", Rect{0, 0, 100, 100}, Rect{10, 10, 20, 20}, 400},
		{"identical", Rect{3, 4, 5, 6}, Rect{3, 4, 5, 6}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IntersectionArea(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("IntersectionArea = %v, want %v", got, tt.want)
			}
			if got := IntersectionArea(tt.b, tt.a); !almostEqual(got, tt.want) {
				t.Errorf("IntersectionArea (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNoOverlapMeansZeroRatios(t *testing.T) {
	pairs := [][2]Rect{
		{{0, 0, 10, 10}, {10, 0, 10, 10}},
		{{0, 0, 10, 10}, {50, 50, 1, 1}},
		{{5, 5, 1, 1}, {0, 0, 5, 5}},
	}
	for _, p := range pairs {
		if got := IntersectionArea(p[0], p[1]); got != 0 {
			t.Errorf("IntersectionArea(%v, %v) = %v, want 0", p[0], p[1], got)
		}
		if got := OverlapRatio(p[0], p[1]); got != 0 {
			t.Errorf("OverlapRatio(%v, %v) = %v, want 0", p[0], p[1], got)
		}
	}
}

func TestContainmentRatio(t *testing.T) {
	parent := Rect{0, 0, 500, 500}
	child := Rect{10, 10, 480, 480}
	if got := ContainmentRatio(child, parent); !almostEqual(got, 1) {
		t.Errorf("child fully inside: got %v, want 1", got)
	}
	// The parent is only partly covered by the child.
	want := (480.0 * 480.0) / (500.0 * 500.0)
	if got := ContainmentRatio(parent, child); !almostEqual(got, want) {
		t.Errorf("parent in child: got %v, want %v", got, want)
	}
	if got := ContainmentRatio(Rect{0, 0, 0, 10}, parent); got != 0 {
		t.Errorf("degenerate child: got %v, want 0", got)
	}
}

func TestOverlapRatioAsymmetric(t *testing.T) {
	small := Rect{0, 0, 10, 10}
	big := Rect{5, 0, 100, 100}
	if got := OverlapRatio(small, big); !almostEqual(got, 0.5) {
		t.Errorf("OverlapRatio(small, big) = %v, want 0.5", got)
	}
	if got := OverlapRatio(big, small); !almostEqual(got, 50.0/10000.0) {
		t.Errorf("OverlapRatio(big, small) = %v, want 0.005", got)
	}
}

func TestShrinkCentered(t *testing.T) {
	r := Rect{100, 200, 50, 20}
	got := ShrinkCentered(r, 0.1)
	cx, cy := r.Center()
	gx, gy := got.Center()
	if !almostEqual(cx, gx) || !almostEqual(cy, gy) {
		t.Errorf("center moved: (%v,%v) -> (%v,%v)", cx, cy, gx, gy)
	}
	if !almostEqual(got.Width, 45) || !almostEqual(got.Height, 18) {
		t.Errorf("size = %vx%v, want 45x18", got.Width, got.Height)
	}
}

func TestContainsPointInclusive(t *testing.T) {
	r := Rect{10, 10, 20, 20}
	tests := []struct {
		x, y float64
		want bool
	}{
		{10, 10, true},
		{30, 30, true},
		{30, 10, true},
		{20, 20, true},
		{9.99, 20, false},
		{20, 30.01, false},
	}
	for _, tt := range tests {
		if got := r.ContainsPoint(tt.x, tt.y); got != tt.want {
			t.Errorf("ContainsPoint(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestFromNormalizedBox(t *testing.T) {
	tests := []struct {
		name  string
		box   [4]float64
		scale float64
		want  Rect
	}{
		{"unit scale", [4]float64{0.1, 0.2, 0.5, 0.6}, 1, Rect{X: 200, Y: 50, Width: 400, Height: 200}},
		{"thousand scale", [4]float64{100, 200, 500, 600}, 1000, Rect{X: 200, Y: 50, Width: 400, Height: 200}},
		{"thousand scale near origin", [4]float64{0, 0, 1, 1}, 1000, Rect{X: 0, Y: 0, Width: 1, Height: 1}},
		{"zero scale means unit", [4]float64{0.1, 0.2, 0.5, 0.6}, 0, Rect{X: 200, Y: 50, Width: 400, Height: 200}},
		{"clamped", [4]float64{-10, 500, 1200, 1000}, 1000, Rect{X: 500, Y: 0, Width: 500, Height: 500}},
		{"swapped corners", [4]float64{0.5, 0.6, 0.1, 0.2}, 1, Rect{X: 200, Y: 50, Width: 400, Height: 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromNormalizedBox(tt.box, tt.scale, 1000, 500)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
