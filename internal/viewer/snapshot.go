package viewer

import (
	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/highlight"
	"github.com/couchcryptid/raintree-service/internal/layout"
	"github.com/couchcryptid/raintree-service/internal/tree"
)

// RenderNode is one drawable node. Leaves carry Label and ClassName,
// decision nodes carry Feature, Threshold and FeatureSummary.
type RenderNode struct {
	ID             tree.NodeID `json:"id"`
	X              float64     `json:"x"`
	Y              float64     `json:"y"`
	Depth          int         `json:"depth"`
	IsLeaf         bool        `json:"is_leaf"`
	HasChildren    bool        `json:"has_children"`
	Label          *tree.Label `json:"label,omitempty"`
	ClassName      string      `json:"class_name,omitempty"`
	Feature        string      `json:"feature,omitempty"`
	Threshold      *float64    `json:"threshold,omitempty"`
	GainRatio      float64     `json:"gain_ratio,omitempty"`
	FeatureSummary string      `json:"feature_summary,omitempty"`
	Active         bool        `json:"active"`
}

// RenderEdge is one drawable parent-child link.
type RenderEdge struct {
	From        tree.NodeID   `json:"from"`
	To          tree.NodeID   `json:"to"`
	Branch      layout.Branch `json:"branch"`
	BranchLabel string        `json:"branch_label"`
	Active      bool          `json:"active"`
}

// Snapshot is everything a render target needs to draw the current tree
// with its highlight.
type Snapshot struct {
	Generation  uint64             `json:"generation"`
	Source      string             `json:"source"`
	Orientation layout.Orientation `json:"orientation"`
	Nodes       []RenderNode       `json:"nodes"`
	Edges       []RenderEdge       `json:"edges"`
	Bounds      layout.Rect        `json:"bounds"`
	Viewport    layout.Transform   `json:"viewport"`
	Active      highlight.State    `json:"active"`
}

// Snapshot captures the current session and highlight. The viewport
// transform fits the last size passed to Resize, or is the identity when no
// size was given.
func (v *Viewer) Snapshot() (Snapshot, error) {
	v.mu.Lock()
	s := v.session
	active := v.highlight.Active()
	width, height := v.width, v.height
	v.mu.Unlock()

	if s == nil {
		return Snapshot{}, ErrNotLoaded
	}
	snap := BuildSnapshot(s.Tree, s.Layout, active)
	snap.Source = s.Source
	snap.Viewport = s.Layout.Fit(width, height)
	return snap, nil
}

// BuildSnapshot combines a tree, its layout and a highlight state into
// render data. It is exported for callers that do not run a Viewer.
func BuildSnapshot(t *tree.Tree, l layout.Layout, active highlight.State) Snapshot {
	snap := Snapshot{
		Generation:  t.Generation(),
		Orientation: l.Orientation,
		Nodes:       make([]RenderNode, 0, len(l.Nodes)),
		Edges:       make([]RenderEdge, 0, len(l.Links)),
		Bounds:      l.Bounds,
		Viewport:    layout.Identity,
		Active:      active,
	}

	for _, pos := range l.Nodes {
		n, ok := t.Node(pos.ID)
		if !ok {
			continue
		}
		rn := RenderNode{
			ID:          pos.ID,
			X:           pos.X,
			Y:           pos.Y,
			Depth:       pos.Depth,
			IsLeaf:      n.IsLeaf(),
			HasChildren: pos.HasChildren,
			Active:      active.IsActive(pos.ID),
		}
		if n.IsLeaf() {
			label := n.Label()
			rn.Label = &label
			rn.ClassName = domain.ClassName(label)
		} else {
			threshold := n.Threshold()
			rn.Feature = n.Feature()
			rn.Threshold = &threshold
			rn.GainRatio = n.GainRatio()
			rn.FeatureSummary = domain.FeatureSummary(n)
		}
		snap.Nodes = append(snap.Nodes, rn)
	}

	for _, link := range l.Links {
		snap.Edges = append(snap.Edges, RenderEdge{
			From:        link.From,
			To:          link.To,
			Branch:      link.Branch,
			BranchLabel: domain.BranchLabel(link.Branch == layout.BranchLeft),
			Active:      active.IsEdgeActive(link.From, link.To),
		})
	}
	return snap
}
