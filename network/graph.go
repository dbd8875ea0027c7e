package network

import (
	"fmt"

	"github.com/samber/lo"
)

// 步行路网：节点为路口，边为街道段
type StreetGraph struct {
	Region string `bson:"region"`
	Nodes  []Node `bson:"nodes"`
	Edges  []Edge `bson:"edges"`
}

// 公共交通网：车站、出入口以及上车/换乘/乘车边
type TransitGraph struct {
	Nodes []Node `bson:"nodes"`
	Edges []Edge `bson:"edges"`
}

// Accesses returns the entrance nodes in graph order.
func (g *TransitGraph) Accesses() []Node {
	return lo.Filter(g.Nodes, func(n Node, _ int) bool {
		return n.Kind == NODE_ACCESS
	})
}

// Validate checks that every edge references known nodes and has a positive
// length, and that no node is isolated. A node whose only edges are self
// loops counts as isolated.
func Validate(nodes []Node, edges []Edge) error {
	degree := make(map[NodeID]int, len(nodes))
	for _, n := range nodes {
		if _, ok := degree[n.ID]; ok {
			return fmt.Errorf("duplicate node %s", n.ID)
		}
		degree[n.ID] = 0
	}
	for i, e := range edges {
		if _, ok := degree[e.From]; !ok {
			return fmt.Errorf("edge %d: unknown node %s", i, e.From)
		}
		if _, ok := degree[e.To]; !ok {
			return fmt.Errorf("edge %d: unknown node %s", i, e.To)
		}
		if !(e.Distance > 0) {
			return fmt.Errorf("edge %d (%s-%s): distance %v is not positive", i, e.From, e.To, e.Distance)
		}
		// 自环不计入度数
		if e.IsSelfLoop() {
			continue
		}
		degree[e.From]++
		degree[e.To]++
	}
	for _, n := range nodes {
		if degree[n.ID] == 0 {
			return fmt.Errorf("node %s is isolated", n.ID)
		}
	}
	return nil
}

func (g *StreetGraph) Validate() error {
	return Validate(g.Nodes, g.Edges)
}

func (g *TransitGraph) Validate() error {
	return Validate(g.Nodes, g.Edges)
}
