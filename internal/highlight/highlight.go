// Package highlight tracks which nodes and edges of a loaded tree are
// visually active and describes every change as a DiffSet.
//
// A Controller is bound to one tree generation. Highlights are never
// additive: applying a path first deactivates everything a previous call
// activated. The Controller is not safe for concurrent use; callers that
// share one serialize access themselves.
package highlight

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/raintree-service/internal/tree"
)

var (
	// ErrForeignPath is returned for a path produced against a different
	// tree generation than the one the controller is bound to.
	ErrForeignPath = errors.New("path belongs to a different tree generation")
	// ErrInvalidPath is returned for a path that is not a root-to-node walk
	// through the bound tree.
	ErrInvalidPath = errors.New("path is not a walk from the root")
)

// DiffSet describes one highlight transition. Renderers apply the
// deactivations before the activations.
type DiffSet struct {
	Generation        uint64        `json:"generation"`
	NodesToActivate   []tree.NodeID `json:"nodes_to_activate"`
	EdgesToActivate   []tree.Edge   `json:"edges_to_activate"`
	NodesToDeactivate []tree.NodeID `json:"nodes_to_deactivate"`
	EdgesToDeactivate []tree.Edge   `json:"edges_to_deactivate"`
}

// Empty reports whether the diff changes nothing.
func (d DiffSet) Empty() bool {
	return len(d.NodesToActivate) == 0 && len(d.EdgesToActivate) == 0 &&
		len(d.NodesToDeactivate) == 0 && len(d.EdgesToDeactivate) == 0
}

// State is the set of currently active nodes and edges.
type State struct {
	Generation uint64        `json:"generation"`
	Nodes      []tree.NodeID `json:"nodes"`
	Edges      []tree.Edge   `json:"edges"`
}

// IsActive reports whether id is highlighted.
func (s State) IsActive(id tree.NodeID) bool {
	for _, n := range s.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// IsEdgeActive reports whether the edge from -> to is highlighted.
func (s State) IsEdgeActive(from, to tree.NodeID) bool {
	for _, e := range s.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// Controller owns the highlight state for one loaded tree.
type Controller struct {
	t     *tree.Tree
	nodes []tree.NodeID
	edges []tree.Edge
}

// NewController binds a controller to t with nothing highlighted.
func NewController(t *tree.Tree) *Controller {
	return &Controller{t: t}
}

// Generation returns the generation of the bound tree, or 0 without one.
func (c *Controller) Generation() uint64 {
	if c.t == nil {
		return 0
	}
	return c.t.Generation()
}

// ApplyPath clears the current highlight and activates every node of p
// together with the edge between each consecutive pair. On error the
// current highlight is left untouched. An empty path behaves like Clear.
func (c *Controller) ApplyPath(p tree.Path) (DiffSet, error) {
	if err := c.validate(p); err != nil {
		return DiffSet{}, err
	}
	diff := c.Clear()
	if p.Len() == 0 {
		return diff, nil
	}
	c.nodes = append([]tree.NodeID(nil), p.IDs...)
	c.edges = p.Edges()
	diff.NodesToActivate = append([]tree.NodeID(nil), c.nodes...)
	diff.EdgesToActivate = append([]tree.Edge(nil), c.edges...)
	return diff, nil
}

// Clear deactivates everything and returns the diff that does so.
func (c *Controller) Clear() DiffSet {
	diff := DiffSet{
		Generation:        c.Generation(),
		NodesToDeactivate: c.nodes,
		EdgesToDeactivate: c.edges,
	}
	c.nodes, c.edges = nil, nil
	return diff
}

// Active returns a copy of the current highlight.
func (c *Controller) Active() State {
	return State{
		Generation: c.Generation(),
		Nodes:      append([]tree.NodeID(nil), c.nodes...),
		Edges:      append([]tree.Edge(nil), c.edges...),
	}
}

func (c *Controller) validate(p tree.Path) error {
	if c.t == nil {
		return fmt.Errorf("%w: no tree bound", ErrForeignPath)
	}
	if p.Generation != c.t.Generation() {
		return fmt.Errorf("%w: got %d, want %d", ErrForeignPath, p.Generation, c.t.Generation())
	}
	for i, id := range p.IDs {
		if !c.t.Contains(id) {
			return fmt.Errorf("%w: unknown node %d", ErrInvalidPath, id)
		}
		if i == 0 {
			if id != c.t.RootID() {
				return fmt.Errorf("%w: starts at node %d", ErrInvalidPath, id)
			}
			continue
		}
		left, right, _ := c.t.Children(p.IDs[i-1])
		if id != left && id != right {
			return fmt.Errorf("%w: %d is not a child of %d", ErrInvalidPath, id, p.IDs[i-1])
		}
	}
	return nil
}
