package router

import (
	"fmt"

	"github.com/lucaspons9/TelBot/network"
	"github.com/lucaspons9/TelBot/router/algo"
)

// Router answers routing queries over a fused city graph. The graph is never
// modified, so a Router can be shared by concurrent callers.
type Router struct {
	graph *algo.CityGraph
}

func New(graph *algo.CityGraph) *Router {
	return &Router{graph: graph}
}

// getter

func (r *Router) Graph() *algo.CityGraph {
	return r.graph
}

// NearestNode resolves c to the closest Street node, the node a route
// between coordinates starts or ends at. Stations and accesses are only
// reached through NearestNodeOfKind.
func (r *Router) NearestNode(c network.Coord) (network.NodeID, float64, error) {
	return r.NearestNodeOfKind(c, network.NODE_STREET)
}

func (r *Router) NearestNodeOfKind(c network.Coord, kind network.NodeKind) (network.NodeID, float64, error) {
	if err := c.Validate(); err != nil {
		return "", 0, err
	}
	return r.graph.NearestNode(c, kind)
}

func (r *Router) ShortestPath(src, dst network.NodeID) ([]network.NodeID, error) {
	path, _, err := r.graph.ShortestPath(src, dst)
	return path, err
}

// TravelTime returns the whole minutes needed to follow path.
func (r *Router) TravelTime(path []network.NodeID) (int, error) {
	seconds, err := r.graph.PathCost(path)
	if err != nil {
		return 0, err
	}
	return algo.SecondsToMinutes(seconds), nil
}

// Route resolves src and dst to their nearest street nodes and returns the
// shortest path between them.
func (r *Router) Route(src, dst network.Coord) (*Route, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	from, _, err := r.NearestNode(src)
	if err != nil {
		return nil, err
	}
	to, _, err := r.NearestNode(dst)
	if err != nil {
		return nil, err
	}
	path, seconds, err := r.graph.ShortestPath(from, to)
	if err != nil {
		return nil, err
	}
	log.Debugf("route %v -> %v: %d nodes, %.0fs", src, dst, len(path), seconds)
	return &Route{
		Src:     src,
		Dst:     dst,
		Path:    path,
		Seconds: seconds,
		Minutes: algo.SecondsToMinutes(seconds),
	}, nil
}
