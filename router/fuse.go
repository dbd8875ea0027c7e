package router

import (
	"fmt"

	"github.com/lucaspons9/TelBot/network"
	"github.com/lucaspons9/TelBot/router/algo"
)

type fuseStats struct {
	selfLoops  int
	duplicates int
}

func (s *fuseStats) addEdge(g *algo.CityGraph, e network.Edge) error {
	if e.IsSelfLoop() {
		s.selfLoops++
		return nil
	}
	added, err := g.InitEdge(e)
	if err != nil {
		return err
	}
	if !added {
		s.duplicates++
	}
	return nil
}

// Fuse merges the street and transit networks into one routing graph:
//  1. street nodes and edges (walking speed);
//  2. transit nodes and edges (speed by edge kind);
//  3. every access linked to its nearest street node by a Street edge;
//  4. self loops dropped.
//
// When two edges join the same pair of nodes the first one, in the order
// above, is kept. Node ids must not collide between the two sources.
func Fuse(street *network.StreetGraph, transit *network.TransitGraph) (*algo.CityGraph, error) {
	g := algo.NewCityGraph()
	stats := &fuseStats{}

	// 1. 步行路网
	streetNodes := make([]network.Node, 0, len(street.Nodes))
	for _, n := range street.Nodes {
		n.Kind = network.NODE_STREET
		if _, err := g.InitNode(n); err != nil {
			return nil, fmt.Errorf("fuse street node: %w", err)
		}
		streetNodes = append(streetNodes, n)
	}
	for _, e := range street.Edges {
		e.Kind = network.EDGE_STREET
		if err := stats.addEdge(g, e); err != nil {
			return nil, fmt.Errorf("fuse street edge: %w", err)
		}
	}

	// 2. 公共交通网
	for _, n := range transit.Nodes {
		if _, err := g.InitNode(n); err != nil {
			return nil, fmt.Errorf("fuse transit node: %w", err)
		}
	}
	for _, e := range transit.Edges {
		if err := stats.addEdge(g, e); err != nil {
			return nil, fmt.Errorf("fuse transit edge: %w", err)
		}
	}

	// 3. 出入口连接到最近的路口
	accesses := transit.Accesses()
	if len(accesses) > 0 && len(streetNodes) == 0 {
		return nil, fmt.Errorf("fuse: %w: no street node to link %d accesses", algo.ErrEmptyGraph, len(accesses))
	}
	for _, access := range accesses {
		nearest, d := nearestOf(streetNodes, access.Pos)
		link := network.Edge{
			From:     access.ID,
			To:       nearest.ID,
			Kind:     network.EDGE_STREET,
			Distance: network.ClampDistance(d),
			Color:    network.ACCESS_LINK_COLOR,
		}
		if err := stats.addEdge(g, link); err != nil {
			return nil, fmt.Errorf("fuse access link: %w", err)
		}
	}

	// 4. 自环在加边时已被丢弃
	if stats.selfLoops > 0 {
		log.Infof("%d self loops removed", stats.selfLoops)
	}
	if stats.duplicates > 0 {
		log.Debugf("%d duplicate edges skipped", stats.duplicates)
	}
	log.Infof("city graph %s: %d nodes, %d edges, %d accesses linked",
		street.Region, g.NodeCount(), g.EdgeCount(), len(accesses))
	return g, nil
}

// nearestOf scans nodes in order; the first of several equidistant nodes wins.
func nearestOf(nodes []network.Node, c network.Coord) (network.Node, float64) {
	best, bestDistance := nodes[0], network.Distance(c, nodes[0].Pos)
	for _, n := range nodes[1:] {
		if d := network.Distance(c, n.Pos); d < bestDistance {
			best, bestDistance = n, d
		}
	}
	return best, bestDistance
}
