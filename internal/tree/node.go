package tree

import (
	"errors"
	"math"
)

// Kind discriminates the two node variants. It is resolved once when a node
// is constructed and never re-inferred from field presence.
type Kind uint8

const (
	KindLeaf Kind = iota + 1
	KindDecision
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindDecision:
		return "decision"
	default:
		return "unknown"
	}
}

// Label is a classification outcome. Only LabelNoRain and LabelRain are valid.
type Label int

const (
	LabelNoRain Label = 0
	LabelRain   Label = 1
)

// Valid reports whether l belongs to the closed label set.
func (l Label) Valid() bool {
	return l == LabelNoRain || l == LabelRain
}

func (l Label) String() string {
	switch l {
	case LabelNoRain:
		return "no-rain"
	case LabelRain:
		return "rain"
	default:
		return "invalid"
	}
}

// Node is an immutable decision-tree node. Fields are unexported so a parsed
// tree cannot be mutated after construction; use the accessors.
//
// Nodes carry no parent pointer. Ancestry is answered from a classification
// Path or from the Tree arena.
type Node struct {
	kind      Kind
	feature   string
	threshold float64
	gainRatio float64
	left      *Node
	right     *Node
	label     Label
}

var (
	errEmptyFeature   = errors.New("feature must be a non-empty string")
	errNonFinite      = errors.New("threshold is not a finite number")
	errMissingChild   = errors.New("decision node requires both left and right children")
	errInvalidLabel   = errors.New("label must be 0 or 1")
	errNonFiniteRatio = errors.New("gain_ratio is not a finite number")
)

// NewLeaf returns a leaf carrying label.
func NewLeaf(label Label) (*Node, error) {
	if !label.Valid() {
		return nil, errInvalidLabel
	}
	return &Node{kind: KindLeaf, label: label}, nil
}

// NewDecision returns a decision node testing feature against threshold.
// Samples with value <= threshold descend left.
func NewDecision(feature string, threshold float64, left, right *Node) (*Node, error) {
	return newDecision(feature, threshold, 0, left, right)
}

func newDecision(feature string, threshold, gainRatio float64, left, right *Node) (*Node, error) {
	switch {
	case feature == "":
		return nil, errEmptyFeature
	case !isFinite(threshold):
		return nil, errNonFinite
	case !isFinite(gainRatio):
		return nil, errNonFiniteRatio
	case left == nil || right == nil:
		return nil, errMissingChild
	}
	return &Node{
		kind:      KindDecision,
		feature:   feature,
		threshold: threshold,
		gainRatio: gainRatio,
		left:      left,
		right:     right,
	}, nil
}

func (n *Node) Kind() Kind { return n.kind }
func (n *Node) IsLeaf() bool { return n.kind == KindLeaf }
func (n *Node) Feature() string { return n.feature }
func (n *Node) Threshold() float64 { return n.threshold }

// GainRatio is the split quality recorded by the training run, or 0 when the
// document did not carry one.
func (n *Node) GainRatio() float64 { return n.gainRatio }
func (n *Node) Left() *Node { return n.left }
func (n *Node) Right() *Node { return n.right }
func (n *Node) Label() Label { return n.label }

// Size returns the number of nodes in the subtree rooted at n.
func (n *Node) Size() int {
	if n == nil {
		return 0
	}
	if n.IsLeaf() {
		return 1
	}
	return 1 + n.left.Size() + n.right.Size()
}

// Depth returns the depth of the deepest leaf below n, counting n as depth 0.
func (n *Node) Depth() int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	return 1 + max(n.left.Depth(), n.right.Depth())
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
