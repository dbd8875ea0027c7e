package render

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/lucaspons9/TelBot/network"
	"github.com/samber/lo"
)

// Graph is the read-only view of the routing graph needed to draw a path.
type Graph interface {
	Node(id network.NodeID) (network.Node, bool)
	Edge(a, b network.NodeID) (network.Edge, bool)
}

// Overview is a graph that can be drawn entirely.
type Overview interface {
	Graph
	Nodes() []network.Node
	Edges() []network.Edge
}

// Renderer draws paths and graphs as PNG images. It keeps no state between
// calls.
type Renderer struct {
	Width        int
	Height       int
	Padding      float64
	LineWidth    float64
	MarkerRadius float64
}

func NewRenderer() *Renderer {
	return &Renderer{
		Width:        PATH_WIDTH,
		Height:       PATH_HEIGHT,
		Padding:      PATH_PADDING,
		LineWidth:    LINE_WIDTH,
		MarkerRadius: MARKER_RADIUS,
	}
}

// NewGraphRenderer returns a renderer sized for a whole city overview.
func NewGraphRenderer() *Renderer {
	return &Renderer{
		Width:        GRAPH_WIDTH,
		Height:       GRAPH_HEIGHT,
		Padding:      GRAPH_PADDING,
		LineWidth:    LINE_WIDTH,
		MarkerRadius: MARKER_RADIUS,
	}
}

type segment struct {
	from, to network.Coord
	color    color.RGBA
}

// Render draws src -> path -> dst. The segments joining the raw coordinates
// to the path are walking segments; inside the path Street edges are black
// and every other edge uses its own color.
func (r *Renderer) Render(g Graph, path []network.NodeID, src, dst network.Coord) ([]byte, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrRenderFailure)
	}
	nodes := make([]network.Node, 0, len(path))
	for _, id := range path {
		n, ok := g.Node(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown node %s", ErrRenderFailure, id)
		}
		nodes = append(nodes, n)
	}
	walk, err := ParseColor(network.WALK_COLOR)
	if err != nil {
		return nil, err
	}
	segments := make([]segment, 0, len(path)+1)
	segments = append(segments, segment{src, nodes[0].Pos, walk})
	for i := 1; i < len(nodes); i++ {
		e, ok := g.Edge(nodes[i-1].ID, nodes[i].ID)
		if !ok {
			return nil, fmt.Errorf("%w: no edge %s-%s", ErrRenderFailure, nodes[i-1].ID, nodes[i].ID)
		}
		c := STREET_SEGMENT
		if e.Kind != network.EDGE_STREET {
			c = e.Color
		}
		rgba, err := ParseColor(c)
		if err != nil {
			return nil, fmt.Errorf("edge %s-%s: %w", e.From, e.To, err)
		}
		segments = append(segments, segment{nodes[i-1].Pos, nodes[i].Pos, rgba})
	}
	segments = append(segments, segment{nodes[len(nodes)-1].Pos, dst, walk})

	coords := []network.Coord{src, dst}
	for _, n := range nodes {
		coords = append(coords, n.Pos)
	}
	dc, v, err := r.canvas(coords)
	if err != nil {
		return nil, err
	}
	for _, s := range segments {
		r.line(dc, v, s)
	}
	marker, _ := ParseColor(MARKER_COLOR)
	for _, c := range []network.Coord{src, nodes[0].Pos, nodes[len(nodes)-1].Pos, dst} {
		r.marker(dc, v, c, marker)
	}
	return encode(dc)
}

// RenderGraph draws every edge in its color and every node colored by kind.
func (r *Renderer) RenderGraph(g Overview) ([]byte, error) {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: empty graph", ErrRenderFailure)
	}
	dc, v, err := r.canvas(lo.Map(nodes, func(n network.Node, _ int) network.Coord { return n.Pos }))
	if err != nil {
		return nil, err
	}
	for _, e := range g.Edges() {
		a, okA := g.Node(e.From)
		b, okB := g.Node(e.To)
		if !okA || !okB {
			return nil, fmt.Errorf("%w: dangling edge %s-%s", ErrRenderFailure, e.From, e.To)
		}
		c, err := ParseColor(e.Color)
		if err != nil {
			return nil, fmt.Errorf("edge %s-%s: %w", e.From, e.To, err)
		}
		r.line(dc, v, segment{a.Pos, b.Pos, c})
	}
	for _, n := range nodes {
		c, _ := ParseColor(nodeColor(n.Kind))
		r.marker(dc, v, n.Pos, c)
	}
	return encode(dc)
}

func nodeColor(kind network.NodeKind) string {
	switch kind {
	case network.NODE_STATION:
		return STATION_NODE_COLOR
	case network.NODE_ACCESS:
		return ACCESS_NODE_COLOR
	default:
		return STREET_NODE_COLOR
	}
}

func (r *Renderer) canvas(coords []network.Coord) (*gg.Context, viewport, error) {
	for _, c := range coords {
		if err := c.Validate(); err != nil {
			return nil, viewport{}, fmt.Errorf("%w: %v", ErrRenderFailure, err)
		}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return nil, viewport{}, fmt.Errorf("%w: invalid image size %dx%d", ErrRenderFailure, r.Width, r.Height)
	}
	dc := gg.NewContext(r.Width, r.Height)
	bg, _ := ParseColor(BACKGROUND)
	dc.SetColor(bg)
	dc.Clear()
	dc.SetLineCapRound()
	return dc, newViewport(coords, r.Width, r.Height, r.Padding), nil
}

func (r *Renderer) line(dc *gg.Context, v viewport, s segment) {
	x1, y1 := v.pixel(s.from)
	x2, y2 := v.pixel(s.to)
	dc.SetColor(s.color)
	dc.SetLineWidth(r.LineWidth)
	dc.DrawLine(x1, y1, x2, y2)
	dc.Stroke()
}

func (r *Renderer) marker(dc *gg.Context, v viewport, c network.Coord, col color.RGBA) {
	x, y := v.pixel(c)
	dc.SetColor(col)
	dc.DrawCircle(x, y, r.MarkerRadius)
	dc.Fill()
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailure, err)
	}
	return buf.Bytes(), nil
}
