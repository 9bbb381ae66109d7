package diffset

import (
	"sort"

	"github.com/playperu/hiddencatch/internal/geometry"
)

// ContainmentThreshold is the minimum fraction of a rectangle's area that must
// lie inside a larger rectangle for the larger one to count as its parent.
const ContainmentThreshold = 0.9

// Object is a labelled rectangle as reported by the detector, converted to
// pixel space.
type Object struct {
	Rect   geometry.Rect `json:"rect"`
	Label  string        `json:"label"`
	Prompt string        `json:"prompt,omitempty"`
}

// Node is one rectangle in the containment forest.
type Node struct {
	Object
	Index    int // position in the input slice
	Parent   *Node
	Children []*Node
}

// IsLeaf reports whether no other rectangle nests inside n.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// BuildForest arranges objects by the "mostly contains" relation and returns
// the roots in processing order (largest area first).
//
// Each rectangle's parent is the smallest strictly larger rectangle that
// covers at least ContainmentThreshold of it. Rectangles of equal area never
// parent each other; among equally tight candidates the one processed first
// wins, which makes the result depend on input order for exact ties.
func BuildForest(objects []Object) []*Node {
	nodes := make([]*Node, len(objects))
	for i, o := range objects {
		nodes[i] = &Node{Object: o, Index: i}
	}

	order := make([]*Node, len(nodes))
	copy(order, nodes)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Rect.Area() > order[j].Rect.Area()
	})

	var roots []*Node
	for i, n := range order {
		area := n.Rect.Area()
		var parent *Node
		for _, cand := range order[:i] {
			candArea := cand.Rect.Area()
			if candArea <= area {
				continue
			}
			if geometry.ContainmentRatio(n.Rect, cand.Rect) < ContainmentThreshold {
				continue
			}
			if parent == nil || candArea < parent.Rect.Area() {
				parent = cand
			}
		}
		if parent == nil {
			roots = append(roots, n)
			continue
		}
		n.Parent = parent
		parent.Children = append(parent.Children, n)
	}
	return roots
}

// Leaves returns the leaf nodes of the forest ordered by their input index.
func Leaves(roots []*Node) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			out = append(out, n)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
