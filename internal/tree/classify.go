package tree

import (
	"errors"
	"fmt"
)

// FeatureVector maps feature names to values. Keys the tree never tests are
// ignored.
type FeatureVector map[string]float64

// MissingFeatureError is returned when a decision node needs a feature that
// is absent from the vector or not a finite number.
type MissingFeatureError struct {
	Feature string
	// NodeID is the decision node that asked for the feature.
	NodeID NodeID
	// Present is true when the key existed but held NaN or ±Inf.
	Present bool
}

func (e *MissingFeatureError) Error() string {
	if e.Present {
		return fmt.Sprintf("feature %q is not a finite number", e.Feature)
	}
	return fmt.Sprintf("feature %q is missing", e.Feature)
}

// Edge links a parent to one of its children.
type Edge struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// Path is the ordered sequence of node ids visited by one classification,
// root first and leaf last, tagged with the generation of the Tree it
// belongs to.
type Path struct {
	Generation uint64   `json:"generation"`
	IDs        []NodeID `json:"ids"`
}

// Len returns the number of visited nodes, which is the leaf depth plus one.
func (p Path) Len() int { return len(p.IDs) }

// Leaf returns the id of the terminal node, or 0 for an empty path.
func (p Path) Leaf() NodeID {
	if len(p.IDs) == 0 {
		return 0
	}
	return p.IDs[len(p.IDs)-1]
}

// Parent returns the node visited just before id on this path.
func (p Path) Parent(id NodeID) (NodeID, bool) {
	for i := 1; i < len(p.IDs); i++ {
		if p.IDs[i] == id {
			return p.IDs[i-1], true
		}
	}
	return 0, false
}

// Edges returns the edge between every consecutive pair of ids.
func (p Path) Edges() []Edge {
	if len(p.IDs) < 2 {
		return nil
	}
	edges := make([]Edge, 0, len(p.IDs)-1)
	for i := 0; i+1 < len(p.IDs); i++ {
		edges = append(edges, Edge{From: p.IDs[i], To: p.IDs[i+1]})
	}
	return edges
}

// Result is the outcome of one classification.
type Result struct {
	Label Label `json:"label"`
	Path  Path  `json:"path"`
}

// Classify walks t from the root, descending left when the tested value is
// <= the node threshold and right otherwise, until a leaf is reached.
// A missing or non-finite value stops the walk with *MissingFeatureError;
// it is never treated as a routing decision.
func Classify(t *Tree, features FeatureVector) (Result, error) {
	if t == nil || t.Len() == 0 {
		return Result{}, errors.New("classify: no tree loaded")
	}

	ids := make([]NodeID, 0, t.MaxDepth()+1)
	id := t.RootID()
	for {
		ids = append(ids, id)
		n := t.nodes[id-1]
		if n.IsLeaf() {
			return Result{
				Label: n.label,
				Path:  Path{Generation: t.generation, IDs: ids},
			}, nil
		}

		value, ok := features[n.feature]
		if !ok || !isFinite(value) {
			return Result{}, &MissingFeatureError{Feature: n.feature, NodeID: id, Present: ok}
		}
		if value <= n.threshold {
			id = t.children[id-1][0]
		} else {
			id = t.children[id-1][1]
		}
	}
}
