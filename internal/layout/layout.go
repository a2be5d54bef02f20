// Package layout computes deterministic tidy-tree geometry for a loaded
// decision tree.
//
// Nodes advance away from the root along the depth axis one LevelSpacing per
// level. Along the breadth axis every parent sits midway between its two
// children, and the children's subtrees are pushed apart until
//
//   - the two subtrees' extents do not overlap, leaving at least the sibling
//     separation between them, and
//   - at every shared level below the children, neighbouring nodes (which
//     are cousins, not siblings) are at least the cousin separation apart.
//
// Separations are expressed in units of NodeBreadth. The result is a pure
// function of the tree shape and Params.
package layout

import (
	"math"

	"github.com/couchcryptid/raintree-service/internal/tree"
)

// Orientation selects which screen axis the depth axis maps to.
type Orientation uint8

const (
	// Horizontal places the root on the left and grows rightwards.
	Horizontal Orientation = iota
	// Vertical places the root at the top and grows downwards.
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// MarshalText encodes the orientation by name.
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Params tunes the geometry. Zero or negative spacing and separation fields
// fall back to the DefaultParams value. Padding is taken as given: zero
// means no padding and negative values are treated as zero.
type Params struct {
	NodeBreadth       float64
	LevelSpacing      float64
	SiblingSeparation float64
	CousinSeparation  float64
	PaddingX          float64
	PaddingY          float64
	Orientation       Orientation
}

// DefaultParams spaces neighbours 90 units apart and levels 260 apart.
// Siblings are separated by 1.6 breadths and cousins by 2.4.
func DefaultParams() Params {
	return Params{
		NodeBreadth:       90,
		LevelSpacing:      260,
		SiblingSeparation: 1.6,
		CousinSeparation:  2.4,
		PaddingX:          140,
		PaddingY:          100,
		Orientation:       Horizontal,
	}
}

func (p Params) normalized() Params {
	d := DefaultParams()
	if p.NodeBreadth <= 0 {
		p.NodeBreadth = d.NodeBreadth
	}
	if p.LevelSpacing <= 0 {
		p.LevelSpacing = d.LevelSpacing
	}
	if p.SiblingSeparation <= 0 {
		p.SiblingSeparation = d.SiblingSeparation
	}
	if p.CousinSeparation <= 0 {
		p.CousinSeparation = d.CousinSeparation
	}
	if p.PaddingX < 0 {
		p.PaddingX = 0
	}
	if p.PaddingY < 0 {
		p.PaddingY = 0
	}
	return p
}

// Branch tells which child a link leads to.
type Branch string

const (
	BranchLeft  Branch = "left"
	BranchRight Branch = "right"
)

// NodePosition is the placement of one node.
type NodePosition struct {
	ID          tree.NodeID `json:"id"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Depth       int         `json:"depth"`
	HasChildren bool        `json:"has_children"`
}

// Link is a drawable parent-child connection.
type Link struct {
	From   tree.NodeID `json:"from"`
	To     tree.NodeID `json:"to"`
	Branch Branch      `json:"branch"`
}

// Rect is an axis-aligned box.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Layout is the full geometry of one tree. Nodes are ordered by id, so
// Nodes[id-1] is the position of id. Bounds covers every node plus padding;
// nothing is ever placed outside it.
type Layout struct {
	Generation  uint64         `json:"generation"`
	Orientation Orientation    `json:"orientation"`
	Nodes       []NodePosition `json:"nodes"`
	Links       []Link         `json:"links"`
	Bounds      Rect           `json:"bounds"`
}

// Empty reports whether the layout has no nodes. An empty layout has
// zero-area bounds.
func (l Layout) Empty() bool { return len(l.Nodes) == 0 }

// Position returns the placement of id.
func (l Layout) Position(id tree.NodeID) (NodePosition, bool) {
	if id < 1 || int(id) > len(l.Nodes) {
		return NodePosition{}, false
	}
	return l.Nodes[id-1], true
}

// contour holds, per level below a subtree root (index 0 is the root
// itself), the leftmost and rightmost breadth offsets relative to the root.
type contour struct {
	left, right []float64
}

func (c contour) extent() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := range c.left {
		lo = math.Min(lo, c.left[i])
		hi = math.Max(hi, c.right[i])
	}
	return lo, hi
}

type engine struct {
	t      *tree.Tree
	p      Params
	offset []float64 // breadth offset of each node from its parent, by id-1
}

// Compute lays out t. A nil or empty tree yields the empty layout, not an error.
func Compute(t *tree.Tree, p Params) Layout {
	if t == nil || t.Len() == 0 {
		return Layout{}
	}
	p = p.normalized()
	e := &engine{t: t, p: p, offset: make([]float64, t.Len())}
	e.place(t.RootID())

	// Parents precede children in id order, so one forward pass resolves
	// absolute breadths.
	breadth := make([]float64, t.Len())
	nodes := make([]NodePosition, t.Len())
	links := make([]Link, 0, t.Len()-1)
	for i := range nodes {
		id := tree.NodeID(i + 1)
		depth := t.DepthOf(id)
		left, right, hasChildren := t.Children(id)
		if hasChildren {
			breadth[left-1] = breadth[i] + e.offset[left-1]
			breadth[right-1] = breadth[i] + e.offset[right-1]
			links = append(links,
				Link{From: id, To: left, Branch: BranchLeft},
				Link{From: id, To: right, Branch: BranchRight},
			)
		}
		x, y := float64(depth)*p.LevelSpacing, breadth[i]
		if p.Orientation == Vertical {
			x, y = y, x
		}
		nodes[i] = NodePosition{ID: id, X: x, Y: y, Depth: depth, HasChildren: hasChildren}
	}

	return Layout{
		Generation:  t.Generation(),
		Orientation: p.Orientation,
		Nodes:       nodes,
		Links:       links,
		Bounds:      bounds(nodes, p.PaddingX, p.PaddingY),
	}
}

func (e *engine) place(id tree.NodeID) contour {
	left, right, ok := e.t.Children(id)
	if !ok {
		return contour{left: []float64{0}, right: []float64{0}}
	}
	lc := e.place(left)
	rc := e.place(right)

	sibling := e.p.SiblingSeparation * e.p.NodeBreadth
	cousin := e.p.CousinSeparation * e.p.NodeBreadth

	// d is the breadth distance between the two child roots.
	d := sibling
	for k := 0; k < len(lc.right) && k < len(rc.left); k++ {
		sep := cousin
		if k == 0 {
			sep = sibling
		}
		d = math.Max(d, lc.right[k]-rc.left[k]+sep)
	}
	_, leftHi := lc.extent()
	rightLo, _ := rc.extent()
	d = math.Max(d, leftHi-rightLo+sibling)

	half := d / 2
	e.offset[left-1] = -half
	e.offset[right-1] = half

	levels := max(len(lc.left), len(rc.left))
	merged := contour{
		left:  make([]float64, levels+1),
		right: make([]float64, levels+1),
	}
	for k := 0; k < levels; k++ {
		if k < len(lc.left) {
			merged.left[k+1] = lc.left[k] - half
		} else {
			merged.left[k+1] = rc.left[k] + half
		}
		if k < len(rc.right) {
			merged.right[k+1] = rc.right[k] + half
		} else {
			merged.right[k+1] = lc.right[k] - half
		}
	}
	return merged
}

func bounds(nodes []NodePosition, padX, padY float64) Rect {
	r := Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, n := range nodes {
		r.MinX = math.Min(r.MinX, n.X)
		r.MinY = math.Min(r.MinY, n.Y)
		r.MaxX = math.Max(r.MaxX, n.X)
		r.MaxY = math.Max(r.MaxY, n.Y)
	}
	r.MinX -= padX
	r.MaxX += padX
	r.MinY -= padY
	r.MaxY += padY
	return r
}
