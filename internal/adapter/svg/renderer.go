// Package svg draws a viewer snapshot as a standalone SVG document.
package svg

import (
	"fmt"
	"io"
	"math"
	"strings"

	svgo "github.com/ajstarks/svgo"

	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/layout"
	"github.com/couchcryptid/raintree-service/internal/tree"
	"github.com/couchcryptid/raintree-service/internal/viewer"
)

// Node box geometry, in layout units.
const (
	boxWidth  = 170
	boxHeight = 60
	boxRadius = 12
)

const (
	colorDecision = "#6366f1"
	colorRain     = "#16a34a"
	colorNoRain   = "#dc2626"
	colorLink     = "#c7d2fe"
	colorActive   = "#f59e0b"
	colorBranch   = "#4338ca"
)

// Options sizes the output. Zero values use the snapshot bounds, so one
// layout unit maps to one pixel.
type Options struct {
	Width  int
	Height int
	Title  string
}

// Render writes snap as SVG. The viewBox always covers every node box, so
// nothing is clipped; a Width x Height differing from the bounds scales the
// drawing uniformly and centres it.
func Render(w io.Writer, snap viewer.Snapshot, opts Options) error {
	ew := &errWriter{w: w}
	canvas := svgo.New(ew)

	view := viewBox(snap)
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = view.w, view.h
	}

	canvas.Startview(width, height, view.x, view.y, view.w, view.h)
	title := opts.Title
	if title == "" {
		title = fmt.Sprintf("Decision tree (generation %d)", snap.Generation)
	}
	canvas.Title(title)

	canvas.Gid("links")
	for _, e := range snap.Edges {
		drawEdge(canvas, snap, e)
	}
	canvas.Gend()

	canvas.Gstyle("font-family:sans-serif;font-size:12px;font-weight:600")
	for _, n := range snap.Nodes {
		drawNode(canvas, n)
	}
	canvas.Gend()

	canvas.End()
	return ew.err
}

type rect struct{ x, y, w, h int }

// viewBox grows the layout bounds until every node box fits, then rounds
// outwards to whole units.
func viewBox(snap viewer.Snapshot) rect {
	if len(snap.Nodes) == 0 {
		return rect{w: 1, h: 1}
	}
	b := snap.Bounds
	for _, n := range snap.Nodes {
		b.MinX = math.Min(b.MinX, n.X-boxWidth/2)
		b.MaxX = math.Max(b.MaxX, n.X+boxWidth/2)
		b.MinY = math.Min(b.MinY, n.Y-boxHeight/2)
		b.MaxY = math.Max(b.MaxY, n.Y+boxHeight/2)
	}
	x, y := int(math.Floor(b.MinX)), int(math.Floor(b.MinY))
	return rect{
		x: x,
		y: y,
		w: int(math.Ceil(b.MaxX)) - x,
		h: int(math.Ceil(b.MaxY)) - y,
	}
}

func drawEdge(canvas *svgo.SVG, snap viewer.Snapshot, e viewer.RenderEdge) {
	from, okFrom := findNode(snap.Nodes, e.From)
	to, okTo := findNode(snap.Nodes, e.To)
	if !okFrom || !okTo {
		return
	}

	stroke, width := colorLink, 2.2
	if e.Active {
		stroke, width = colorActive, 4
	}
	canvas.Path(linkPath(snap.Orientation, from, to),
		fmt.Sprintf(`class="link" data-from="%d" data-to="%d"`, e.From, e.To),
		fmt.Sprintf(`fill="none" stroke="%s" stroke-width="%g"`, stroke, width))

	mx, my := (from.X+to.X)/2, (from.Y+to.Y)/2-6
	canvas.Text(round(mx), round(my), e.BranchLabel,
		fmt.Sprintf("text-anchor:middle;font-size:11px;font-weight:600;fill:%s", colorBranch))
}

// linkPath is a cubic curve that leaves the parent and enters the child
// along the depth axis.
func linkPath(o layout.Orientation, from, to viewer.RenderNode) string {
	if o == layout.Vertical {
		my := (from.Y + to.Y) / 2
		return fmt.Sprintf("M%g,%g C%g,%g %g,%g %g,%g", from.X, from.Y, from.X, my, to.X, my, to.X, to.Y)
	}
	mx := (from.X + to.X) / 2
	return fmt.Sprintf("M%g,%g C%g,%g %g,%g %g,%g", from.X, from.Y, mx, from.Y, mx, to.Y, to.X, to.Y)
}

func drawNode(canvas *svgo.SVG, n viewer.RenderNode) {
	fill := colorDecision
	if n.IsLeaf && n.Label != nil {
		fill = colorNoRain
		if *n.Label == tree.LabelRain {
			fill = colorRain
		}
	}
	style := "fill:" + fill
	if n.Active {
		style += ";stroke:" + colorActive + ";stroke-width:4"
	}

	x, y := round(n.X), round(n.Y)
	canvas.Roundrect(x-boxWidth/2, y-boxHeight/2, boxWidth, boxHeight, boxRadius, boxRadius,
		fmt.Sprintf(`id="node-%d"`, n.ID), style)

	text := "text-anchor:middle;fill:white"
	if n.IsLeaf {
		canvas.Text(x, y+4, strings.ToUpper(n.ClassName), text)
		return
	}
	canvas.Text(x, y-3, domain.FeatureDisplayName(n.Feature), text)
	if n.Threshold != nil {
		canvas.Text(x, y+14, fmt.Sprintf("≤ %.2f", *n.Threshold), text+";font-weight:400")
	}
}

func findNode(nodes []viewer.RenderNode, id tree.NodeID) (viewer.RenderNode, bool) {
	// Snapshot nodes are ordered by id.
	if i := int(id) - 1; i >= 0 && i < len(nodes) && nodes[i].ID == id {
		return nodes[i], true
	}
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return viewer.RenderNode{}, false
}

func round(f float64) int { return int(math.Round(f)) }

// errWriter keeps the first write error; svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return len(p), nil
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
