package diffset

import "github.com/playperu/hiddencatch/internal/geometry"

const (
	// MaxAreaFraction is the largest share of the image a single detection may
	// cover before it is discarded as background.
	MaxAreaFraction = 0.4

	// DropOverlap and ShrinkOverlap classify a rectangle by the largest
	// fraction of its own area covered by any other surviving rectangle.
	DropOverlap   = 0.5
	ShrinkOverlap = 0.1

	// ShrinkRatio is how much a moderately overlapping rectangle loses in
	// each dimension.
	ShrinkRatio = 0.1
)

// maxPasses bounds Resolve. Each pass either drops a rectangle or shrinks
// the overlapping ones, so real inputs settle within a few passes.
const maxPasses = 64

// Resolve applies the size filter, parent elision and overlap pass to objects
// for an image of the given size. The returned slice keeps input order.
//
// Passes repeat until one changes nothing, so the result is a fixed point:
// resolving it again returns it unchanged.
func Resolve(objects []Object, width, height int) []Object {
	imageArea := float64(width) * float64(height)
	cur := objects
	for range maxPasses {
		next, changed := resolvePass(cur, imageArea)
		cur = next
		if !changed {
			break
		}
	}
	return cur
}

// resolvePass runs one round and reports whether it dropped or shrank
// anything.
func resolvePass(objects []Object, imageArea float64) ([]Object, bool) {
	sized := filterBySize(objects, imageArea)
	leaves := Leaves(BuildForest(sized))
	changed := len(leaves) != len(objects)

	kept := make([]Object, 0, len(leaves))
	for i, leaf := range leaves {
		ratio := 0.0
		for j, other := range leaves {
			if i == j {
				continue
			}
			if r := geometry.OverlapRatio(leaf.Rect, other.Rect); r > ratio {
				ratio = r
			}
		}

		switch {
		case ratio >= DropOverlap:
			changed = true
		case ratio >= ShrinkOverlap:
			o := leaf.Object
			o.Rect = geometry.ShrinkCentered(o.Rect, ShrinkRatio)
			kept = append(kept, o)
			changed = true
		default:
			kept = append(kept, leaf.Object)
		}
	}
	return kept, changed
}

func filterBySize(objects []Object, imageArea float64) []Object {
	limit := imageArea * MaxAreaFraction
	out := make([]Object, 0, len(objects))
	for _, o := range objects {
		if !o.Rect.Valid() || o.Rect.Area() > limit {
			continue
		}
		out = append(out, o)
	}
	return out
}
