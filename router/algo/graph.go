package algo

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/lucaspons9/TelBot/network"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

// CityGraph is the fused street + transit graph used for routing.
// Edges are undirected and weighted by travel time in seconds.
// After construction the graph is read-only and safe for concurrent readers.
type CityGraph struct {
	// 节点，下标即内部编号，顺序为插入顺序
	nodes []network.Node
	index map[network.NodeID]int
	// 边，权值由边类型的速度决定
	edges []network.Edge
	// 邻接表，node -> []halfEdge，顺序为插入顺序
	adj [][]halfEdge
	// 无向端点对 -> edge下标，用于去重和查找
	pairs map[pairKey]int
}

func NewCityGraph() *CityGraph {
	return &CityGraph{
		nodes: make([]network.Node, 0),
		index: make(map[network.NodeID]int),
		edges: make([]network.Edge, 0),
		adj:   make([][]halfEdge, 0),
		pairs: make(map[pairKey]int),
	}
}

func (g *CityGraph) InitNode(n network.Node) (int, error) {
	if _, ok := g.index[n.ID]; ok {
		return -1, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	g.nodes = append(g.nodes, n)
	g.adj = append(g.adj, make([]halfEdge, 0, 2))
	g.index[n.ID] = len(g.nodes) - 1
	return len(g.nodes) - 1, nil
}

// InitEdge adds an undirected edge. If the unordered pair is already
// connected the existing edge is kept and false is returned.
func (g *CityGraph) InitEdge(e network.Edge) (bool, error) {
	u, ok := g.index[e.From]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, e.From)
	}
	v, ok := g.index[e.To]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, e.To)
	}
	if u == v {
		return false, fmt.Errorf("%w: %s", ErrSelfLoop, e.From)
	}
	if w := e.Weight(); !(w > 0) || math.IsInf(w, 0) {
		return false, fmt.Errorf("%w: %s-%s weight %v", ErrNonPositiveWeight, e.From, e.To, w)
	}
	key := newPairKey(u, v)
	if _, ok := g.pairs[key]; ok {
		return false, nil
	}
	id := len(g.edges)
	g.edges = append(g.edges, e)
	g.pairs[key] = id
	g.adj[u] = append(g.adj[u], halfEdge{to: v, edge: id})
	g.adj[v] = append(g.adj[v], halfEdge{to: u, edge: id})
	return true, nil
}

// getter

func (g *CityGraph) NodeCount() int {
	return len(g.nodes)
}

func (g *CityGraph) EdgeCount() int {
	return len(g.edges)
}

func (g *CityGraph) Nodes() []network.Node {
	return g.nodes
}

func (g *CityGraph) Edges() []network.Edge {
	return g.edges
}

func (g *CityGraph) Node(id network.NodeID) (network.Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return network.Node{}, false
	}
	return g.nodes[i], true
}

// Edge returns the edge joining a and b in either direction.
func (g *CityGraph) Edge(a, b network.NodeID) (network.Edge, bool) {
	u, ok := g.index[a]
	if !ok {
		return network.Edge{}, false
	}
	v, ok := g.index[b]
	if !ok {
		return network.Edge{}, false
	}
	e, ok := g.pairs[newPairKey(u, v)]
	if !ok {
		return network.Edge{}, false
	}
	return g.edges[e], true
}

func (g *CityGraph) Neighbors(id network.NodeID) []network.NodeID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return lo.Map(g.adj[i], func(h halfEdge, _ int) network.NodeID {
		return g.nodes[h.to].ID
	})
}

// NearestNode returns the node closest to c (haversine). When kinds is not
// empty only nodes of those kinds are considered. Nodes are scanned in
// insertion order and only a strictly smaller distance replaces the current
// best, so among equidistant nodes the first inserted one wins.
func (g *CityGraph) NearestNode(c network.Coord, kinds ...network.NodeKind) (network.NodeID, float64, error) {
	best, bestDistance := -1, math.Inf(0)
	for i, n := range g.nodes {
		if len(kinds) > 0 && !lo.Contains(kinds, n.Kind) {
			continue
		}
		if d := network.Distance(c, n.Pos); d < bestDistance {
			best, bestDistance = i, d
		}
	}
	if best < 0 {
		return "", math.Inf(0), ErrEmptyGraph
	}
	return g.nodes[best].ID, bestDistance, nil
}

func (g *CityGraph) reconstructPath(cameFrom []int, cur int) []network.NodeID {
	pathBeforeReversed := []network.NodeID{g.nodes[cur].ID}
	for cameFrom[cur] >= 0 {
		cur = cameFrom[cur]
		pathBeforeReversed = append(pathBeforeReversed, g.nodes[cur].ID)
	}
	return lo.Reverse(pathBeforeReversed)
}

// ShortestPath runs Dijkstra from start to end and returns the node sequence
// and its cost in seconds.
// 松弛时仅在严格更优时更新前驱，邻接表按插入顺序遍历，因此等价路径的选择是确定的
func (g *CityGraph) ShortestPath(start, end network.NodeID) ([]network.NodeID, float64, error) {
	s, ok := g.index[start]
	if !ok {
		return nil, math.Inf(0), fmt.Errorf("%w: %s", ErrUnknownNode, start)
	}
	t, ok := g.index[end]
	if !ok {
		return nil, math.Inf(0), fmt.Errorf("%w: %s", ErrUnknownNode, end)
	}
	if s == t {
		return []network.NodeID{start}, 0, nil
	}
	n := len(g.nodes)
	gScore := make([]float64, n)
	cameFrom := make([]int, n)
	closed := make([]bool, n)
	openSetMap := make([]*Item, n) // node -> openSet item
	for i := range gScore {
		gScore[i] = math.Inf(0)
		cameFrom[i] = -1
	}
	gScore[s] = 0
	openSet := PriorityQueue{&Item{Value: s, Priority: 0, Index: 0}}
	openSetMap[s] = openSet[0]
	heap.Init(&openSet)
	for openSet.Len() > 0 {
		cur := heap.Pop(&openSet).(*Item).Value
		openSetMap[cur] = nil
		if cur == t {
			return g.reconstructPath(cameFrom, cur), gScore[cur], nil
		}
		closed[cur] = true
		for _, h := range g.adj[cur] {
			if closed[h.to] {
				continue
			}
			gScoreTentative := gScore[cur] + g.edges[h.edge].Weight()
			if gScoreTentative < gScore[h.to] {
				cameFrom[h.to] = cur
				gScore[h.to] = gScoreTentative
				if item := openSetMap[h.to]; item != nil {
					// 已在堆中的节点，修改其优先级
					item.Priority = gScoreTentative
					heap.Fix(&openSet, item.Index)
				} else {
					item := &Item{Value: h.to, Priority: gScoreTentative}
					heap.Push(&openSet, item)
					openSetMap[h.to] = item
				}
			}
		}
	}
	return nil, math.Inf(0), fmt.Errorf("%w: %s -> %s", ErrNoPathFound, start, end)
}

// PathCost sums edge weights (seconds) along consecutive nodes of path.
func (g *CityGraph) PathCost(path []network.NodeID) (float64, error) {
	if len(path) == 0 {
		return 0, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if _, ok := g.index[path[0]]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, path[0])
	}
	cost := 0.0
	for i := 0; i < len(path)-1; i++ {
		e, ok := g.Edge(path[i], path[i+1])
		if !ok {
			return 0, fmt.Errorf("%w: no edge %s-%s at position %d", ErrInvalidPath, path[i], path[i+1], i)
		}
		cost += e.Weight()
	}
	return cost, nil
}

// snapshot is the persisted form; adjacency is rebuilt on load.
type snapshot struct {
	Nodes []network.Node `bson:"nodes"`
	Edges []network.Edge `bson:"edges"`
}

func (g *CityGraph) MarshalBSON() ([]byte, error) {
	return bson.Marshal(snapshot{Nodes: g.nodes, Edges: g.edges})
}

func (g *CityGraph) UnmarshalBSON(data []byte) error {
	var s snapshot
	if err := bson.Unmarshal(data, &s); err != nil {
		return err
	}
	rebuilt, err := FromParts(s.Nodes, s.Edges)
	if err != nil {
		return err
	}
	*g = *rebuilt
	return nil
}

// FromParts builds a graph from node and edge lists. Duplicate pairs keep
// the first edge; self loops and dangling edges are errors.
func FromParts(nodes []network.Node, edges []network.Edge) (*CityGraph, error) {
	g := NewCityGraph()
	for _, n := range nodes {
		if _, err := g.InitNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if _, err := g.InitEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Bound returns the south-west and north-east corners of all nodes.
func (g *CityGraph) Bound() (sw, ne network.Coord) {
	if len(g.nodes) == 0 {
		return
	}
	sw, ne = g.nodes[0].Pos, g.nodes[0].Pos
	for _, n := range g.nodes[1:] {
		sw.Lon = math.Min(sw.Lon, n.Pos.Lon)
		sw.Lat = math.Min(sw.Lat, n.Pos.Lat)
		ne.Lon = math.Max(ne.Lon, n.Pos.Lon)
		ne.Lat = math.Max(ne.Lat, n.Pos.Lat)
	}
	return
}
