package transit

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/lucaspons9/TelBot/network"
	"github.com/samber/lo"
)

// Builder builds the transit network from a GTFS archive.
type Builder struct {
	Source string
}

func NewBuilder(source string) *Builder {
	return &Builder{Source: source}
}

func (b *Builder) Build(ctx context.Context) (*network.TransitGraph, error) {
	feed, err := LoadFeed(ctx, b.Source)
	if err != nil {
		return nil, err
	}
	return BuildGraph(feed), nil
}

type graphBuilder struct {
	nodes   []network.Node
	byStop  map[string]network.Node
	edges   []network.Edge
	pairs   map[[2]network.NodeID]bool
	skipped int
}

func (b *graphBuilder) addEdge(from, to network.Node, kind network.EdgeKind, color string) {
	if from.ID == to.ID {
		return
	}
	key := [2]network.NodeID{from.ID, to.ID}
	if key[0] > key[1] {
		key[0], key[1] = key[1], key[0]
	}
	if b.pairs[key] {
		b.skipped++
		return
	}
	b.pairs[key] = true
	b.edges = append(b.edges, network.Edge{
		From:     from.ID,
		To:       to.ID,
		Kind:     kind,
		Distance: network.ClampDistance(network.Distance(from.Pos, to.Pos)),
		Color:    color,
	})
}

// BuildGraph converts feed into a transit graph:
//   - stops (location_type 0) become Station nodes, entrances (2) Access nodes;
//     parent stations (1) only group them;
//   - consecutive stops of a trip are joined by Tram edges in the route color;
//   - stations sharing a parent, and pairs in transfers.txt, by Transfer edges;
//   - every entrance by Boarding edges to the stations of its parent.
//
// The first edge between a pair of nodes wins. Nodes without edges are dropped.
func BuildGraph(feed *Feed) *network.TransitGraph {
	b := &graphBuilder{
		nodes:  make([]network.Node, 0),
		byStop: make(map[string]network.Node),
		edges:  make([]network.Edge, 0),
		pairs:  make(map[[2]network.NodeID]bool),
	}
	stationsByParent := make(map[string][]network.Node)
	parents := make([]string, 0)
	for _, s := range feed.Stops {
		var n network.Node
		switch s.LocationType {
		case LOCATION_STOP:
			n = network.Node{ID: network.StationNodeID(s.ID), Kind: network.NODE_STATION, Pos: s.Pos, Name: s.Name}
			if s.Parent != "" {
				if _, ok := stationsByParent[s.Parent]; !ok {
					parents = append(parents, s.Parent)
				}
				stationsByParent[s.Parent] = append(stationsByParent[s.Parent], n)
			}
		case LOCATION_ENTRANCE:
			n = network.Node{ID: network.AccessNodeID(s.ID), Kind: network.NODE_ACCESS, Pos: s.Pos, Name: s.Name}
		default:
			continue
		}
		b.nodes = append(b.nodes, n)
		b.byStop[s.ID] = n
	}

	// 1. 乘车边：同一行程的相邻站点
	for _, trip := range tripStops(feed) {
		color := DEFAULT_ROUTE_COLOR
		if t, ok := feed.Trips[trip.id]; ok {
			color = RouteColor(feed.Routes[t.RouteID].Color)
		}
		for i := 1; i < len(trip.stops); i++ {
			from, ok1 := b.byStop[trip.stops[i-1]]
			to, ok2 := b.byStop[trip.stops[i]]
			if !ok1 || !ok2 || from.Kind != network.NODE_STATION || to.Kind != network.NODE_STATION {
				continue
			}
			b.addEdge(from, to, network.EDGE_TRAM, color)
		}
	}

	// 2. 换乘边：同一父站内的站台，以及transfers.txt
	for _, p := range parents {
		stations := stationsByParent[p]
		for i := range stations {
			for j := i + 1; j < len(stations); j++ {
				b.addEdge(stations[i], stations[j], network.EDGE_TRANSFER, network.TRANSFER_COLOR)
			}
		}
	}
	for _, t := range feed.Transfers {
		from, ok1 := b.byStop[t.From]
		to, ok2 := b.byStop[t.To]
		if !ok1 || !ok2 || from.Kind != network.NODE_STATION || to.Kind != network.NODE_STATION {
			continue
		}
		b.addEdge(from, to, network.EDGE_TRANSFER, network.TRANSFER_COLOR)
	}

	// 3. 上车边：出入口与其父站的所有站台
	for _, s := range feed.Stops {
		if s.LocationType != LOCATION_ENTRANCE || s.Parent == "" {
			continue
		}
		access := b.byStop[s.ID]
		for _, station := range stationsByParent[s.Parent] {
			b.addEdge(access, station, network.EDGE_BOARDING, network.BOARDING_COLOR)
		}
	}

	// 4. 删除孤立节点
	touched := make(map[network.NodeID]bool, len(b.nodes))
	for _, e := range b.edges {
		touched[e.From] = true
		touched[e.To] = true
	}
	nodes := lo.Filter(b.nodes, func(n network.Node, _ int) bool {
		return touched[n.ID]
	})
	if dropped := len(b.nodes) - len(nodes); dropped > 0 {
		log.Warnf("%d isolated transit nodes dropped", dropped)
	}
	if b.skipped > 0 {
		log.Debugf("%d duplicate transit edges skipped", b.skipped)
	}
	log.Infof("transit network: %d nodes (%d accesses), %d edges",
		len(nodes), lo.CountBy(nodes, func(n network.Node) bool { return n.Kind == network.NODE_ACCESS }), len(b.edges))
	return &network.TransitGraph{Nodes: nodes, Edges: b.edges}
}

type tripSequence struct {
	id    string
	stops []string
}

// tripStops groups stop_times by trip in order of first appearance and sorts
// each trip by stop_sequence.
func tripStops(feed *Feed) []tripSequence {
	byTrip := make(map[string][]StopTime)
	order := make([]string, 0)
	for _, st := range feed.StopTimes {
		if _, ok := byTrip[st.TripID]; !ok {
			order = append(order, st.TripID)
		}
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}
	return lo.Map(order, func(id string, _ int) tripSequence {
		sts := byTrip[id]
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].Sequence < sts[j].Sequence })
		return tripSequence{id: id, stops: lo.Map(sts, func(st StopTime, _ int) string { return st.StopID })}
	})
}

// RouteColor normalizes a GTFS route_color ("RRGGBB") to "#RRGGBB".
// Missing or malformed colors fall back to DEFAULT_ROUTE_COLOR.
func RouteColor(c string) string {
	c = strings.TrimPrefix(strings.TrimSpace(c), "#")
	if len(c) != 6 {
		return DEFAULT_ROUTE_COLOR
	}
	if _, err := strconv.ParseUint(c, 16, 32); err != nil {
		return DEFAULT_ROUTE_COLOR
	}
	return "#" + strings.ToUpper(c)
}
