package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NodeID identifies a node within one loaded Tree. IDs run from 1 to Len()
// in pre-order and mean nothing outside the Tree that issued them.
type NodeID int

// ErrSharedNode is returned by Build when a node instance appears in more
// than one position.
var ErrSharedNode = errors.New("node instance is used in more than one position")

// ErrTooDeep is returned by Build when a node lies deeper than the
// registry's maximum depth.
var ErrTooDeep = errors.New("tree exceeds maximum depth")

// Tree is a parsed tree together with its identity map. Nodes live in an
// arena indexed by id-1; child links and depths are co-indexed with it.
// A Tree is immutable and safe for concurrent readers.
type Tree struct {
	generation uint64
	root       *Node
	nodes      []*Node
	children   [][2]NodeID
	depths     []int
	ids        map[*Node]NodeID
}

// Registry hands out identity maps. Every Build call gets the next
// generation number so ids from different loads can be told apart.
type Registry struct {
	// MaxDepth is the deepest node Build accepts, with the root at depth 0.
	// Zero means DefaultMaxDepth. It bounds trees assembled with
	// NewDecision the same way Parser bounds documents.
	MaxDepth int

	generation uint64
}

// NewRegistry returns a Registry whose first Build is generation 1.
func NewRegistry() *Registry {
	return &Registry{}
}

// Build assigns ids to every node under root in one pre-order pass.
// The returned Tree replaces any earlier one; ids never carry across builds.
func (r *Registry) Build(root *Node) (*Tree, error) {
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	t, err := build(root, maxDepth)
	if err != nil {
		return nil, err
	}
	r.generation++
	t.generation = r.generation
	return t, nil
}

// Build is a convenience for a one-off identity map at generation 1.
func Build(root *Node) (*Tree, error) {
	return NewRegistry().Build(root)
}

func build(root *Node, maxDepth int) (*Tree, error) {
	if root == nil {
		return nil, errors.New("build tree: nil root")
	}
	t := &Tree{
		root: root,
		ids:  make(map[*Node]NodeID),
	}

	type frame struct {
		node   *Node
		depth  int
		parent NodeID
		side   int
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := t.ids[f.node]; seen {
			return nil, fmt.Errorf("build tree: %w", ErrSharedNode)
		}
		if f.depth > maxDepth {
			return nil, fmt.Errorf("build tree: %w (%d)", ErrTooDeep, maxDepth)
		}
		id := NodeID(len(t.nodes) + 1)
		t.ids[f.node] = id
		t.nodes = append(t.nodes, f.node)
		t.children = append(t.children, [2]NodeID{})
		t.depths = append(t.depths, f.depth)
		if f.parent != 0 {
			t.children[f.parent-1][f.side] = id
		}

		if f.node.IsLeaf() {
			continue
		}
		// Right is pushed first so left is visited first.
		stack = append(stack,
			frame{node: f.node.right, depth: f.depth + 1, parent: id, side: 1},
			frame{node: f.node.left, depth: f.depth + 1, parent: id, side: 0},
		)
	}
	return t, nil
}

// Generation identifies the load that produced t.
func (t *Tree) Generation() uint64 { return t.generation }

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// RootID is always 1 for a non-empty tree.
func (t *Tree) RootID() NodeID { return 1 }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// IDOf resolves a node of this tree to its id in O(1).
func (t *Tree) IDOf(n *Node) (NodeID, bool) {
	id, ok := t.ids[n]
	return id, ok
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) (*Node, bool) {
	if !t.Contains(id) {
		return nil, false
	}
	return t.nodes[id-1], true
}

// Contains reports whether id was issued by t.
func (t *Tree) Contains(id NodeID) bool {
	return id >= 1 && int(id) <= len(t.nodes)
}

// Children returns the left and right child ids of a decision node.
// ok is false for leaves and unknown ids.
func (t *Tree) Children(id NodeID) (left, right NodeID, ok bool) {
	if !t.Contains(id) || t.nodes[id-1].IsLeaf() {
		return 0, 0, false
	}
	c := t.children[id-1]
	return c[0], c[1], true
}

// DepthOf returns the depth of id, with the root at 0.
func (t *Tree) DepthOf(id NodeID) int {
	if !t.Contains(id) {
		return -1
	}
	return t.depths[id-1]
}

// MaxDepth returns the depth of the deepest node.
func (t *Tree) MaxDepth() int {
	deepest := 0
	for _, d := range t.depths {
		deepest = max(deepest, d)
	}
	return deepest
}

// Edges lists every parent-child link in pre-order of the parent, left first.
func (t *Tree) Edges() []Edge {
	edges := make([]Edge, 0, max(len(t.nodes)-1, 0))
	for i, c := range t.children {
		if c[0] == 0 {
			continue
		}
		from := NodeID(i + 1)
		edges = append(edges, Edge{From: from, To: c[0]}, Edge{From: from, To: c[1]})
	}
	return edges
}

// Features returns the sorted, de-duplicated feature names tested anywhere in t.
func (t *Tree) Features() []string {
	seen := make(map[string]struct{})
	for _, n := range t.nodes {
		if !n.IsLeaf() {
			seen[n.feature] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Walk calls fn for every node in id order, which is pre-order. It stops at
// the first error.
func (t *Tree) Walk(fn func(id NodeID, n *Node) error) error {
	for i, n := range t.nodes {
		if err := fn(NodeID(i+1), n); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) String() string {
	var b strings.Builder
	t.writeSubtree(&b, t.RootID(), "", "")
	return b.String()
}

func (t *Tree) writeSubtree(b *strings.Builder, id NodeID, first, rest string) {
	n := t.nodes[id-1]
	if n.IsLeaf() {
		fmt.Fprintf(b, "%s[%d] label=%d (%s)\n", first, id, n.label, n.label)
		return
	}
	fmt.Fprintf(b, "%s[%d] %s <= %g\n", first, id, n.feature, n.threshold)
	left, right, _ := t.Children(id)
	t.writeSubtree(b, left, rest+"|__", rest+"|  ")
	t.writeSubtree(b, right, rest+"|__", rest+"   ")
}
