package street

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lucaspons9/TelBot/network"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
)

// Region is a named OSM extract.
type Region struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// Provider loads the pedestrian street network of a region from an OSM
// extract (.pbf or .osm/.xml).
type Provider struct {
	// pbf解码并发数
	Procs int
}

func NewProvider() *Provider {
	return &Provider{Procs: runtime.GOMAXPROCS(-1)}
}

// 第一遍扫描时记录的可步行道路
type wayRefs struct {
	id   osm.WayID
	refs []osm.NodeID
}

// 被引用的节点：坐标与引用计数，计数>1的节点为路口
type tempNode struct {
	pos   network.Coord
	count int
	found bool
}

type pairKey struct{ a, b osm.NodeID }

func newPairKey(a, b osm.NodeID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Load builds the street graph of region. Ways are split at intersections
// (nodes shared by several ways) and at way endpoints, edge length is the
// haversine length of the segment geometry. Of several parallel segments
// between the same pair of intersections only the first one is kept.
// Closed ways are also split at two interior nodes, so a ring never reduces
// to a self loop.
func (p *Provider) Load(ctx context.Context, region Region) (*network.StreetGraph, error) {
	log.Infof("loading street network %s from %s", region.Name, region.File)
	ways := make([]wayRefs, 0)
	osmNodes := make(map[osm.NodeID]*tempNode)

	// 1. 扫描道路，统计节点引用次数
	err := p.scan(ctx, region.File, false, func(o osm.Object) {
		way, ok := o.(*osm.Way)
		if !ok || len(way.Nodes) < 2 || !IsWalkable(way.Tags) {
			return
		}
		refs := way.Nodes.NodeIDs()
		for _, ref := range refs {
			if n, ok := osmNodes[ref]; ok {
				n.count++
			} else {
				osmNodes[ref] = &tempNode{count: 1}
			}
		}
		osmNodes[refs[0]].count++
		osmNodes[refs[len(refs)-1]].count++
		// 闭合道路另在两个内部点处切分，环路至少形成三角形
		if len(refs) > 3 && refs[0] == refs[len(refs)-1] {
			osmNodes[refs[len(refs)/3]].count++
			osmNodes[refs[2*len(refs)/3]].count++
		}
		ways = append(ways, wayRefs{id: way.ID, refs: refs})
	})
	if err != nil {
		return nil, err
	}

	// 2. 扫描节点，记录坐标
	err = p.scan(ctx, region.File, true, func(o osm.Object) {
		node, ok := o.(*osm.Node)
		if !ok {
			return
		}
		if n, ok := osmNodes[node.ID]; ok {
			n.pos = network.Coord{Lon: node.Lon, Lat: node.Lat}
			n.found = true
		}
	})
	if err != nil {
		return nil, err
	}

	// 3. 在路口处切分道路
	g := &network.StreetGraph{
		Region: region.Name,
		Nodes:  make([]network.Node, 0),
		Edges:  make([]network.Edge, 0),
	}
	emitted := make(map[osm.NodeID]bool)
	pairs := make(map[pairKey]bool)
	addNode := func(id osm.NodeID) {
		if emitted[id] {
			return
		}
		emitted[id] = true
		g.Nodes = append(g.Nodes, network.Node{
			ID:   network.StreetNodeID(int64(id)),
			Kind: network.NODE_STREET,
			Pos:  osmNodes[id].pos,
		})
	}
	skippedWays, parallel, selfLoops := 0, 0, 0
	for _, w := range ways {
		if miss := firstMissing(w.refs, osmNodes); miss >= 0 {
			log.Debugf("way %d references node %d without coordinates, skipped", w.id, w.refs[miss])
			skippedWays++
			continue
		}
		start := w.refs[0]
		line := orb.LineString{osmNodes[start].pos.Point()}
		for i := 1; i < len(w.refs); i++ {
			cur := w.refs[i]
			n := osmNodes[cur]
			line = append(line, n.pos.Point())
			if n.count <= 1 {
				continue
			}
			key := newPairKey(start, cur)
			if start == cur {
				selfLoops++
			} else if pairs[key] {
				parallel++
			} else {
				pairs[key] = true
				addNode(start)
				addNode(cur)
				g.Edges = append(g.Edges, network.Edge{
					From:     network.StreetNodeID(int64(start)),
					To:       network.StreetNodeID(int64(cur)),
					Kind:     network.EDGE_STREET,
					Distance: network.ClampDistance(geo.LengthHaversine(line)),
					Color:    network.STREET_COLOR,
				})
			}
			start = cur
			line = orb.LineString{n.pos.Point()}
		}
	}
	if skippedWays > 0 {
		log.Warnf("%d ways skipped because of missing nodes", skippedWays)
	}
	if parallel > 0 {
		log.Debugf("%d parallel street segments dropped", parallel)
	}
	if selfLoops > 0 {
		log.Debugf("%d closed street segments dropped", selfLoops)
	}
	log.Infof("street network %s: %d nodes, %d edges", region.Name, len(g.Nodes), len(g.Edges))
	return g, nil
}

func firstMissing(refs []osm.NodeID, nodes map[osm.NodeID]*tempNode) int {
	for i, ref := range refs {
		if !nodes[ref].found {
			return i
		}
	}
	return -1
}

// scan runs one pass over the extract and calls handle for every object.
func (p *Provider) scan(ctx context.Context, file string, nodes bool, handle func(osm.Object)) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: %v", network.ErrSourceUnavailable, err)
	}
	defer f.Close()

	var scanner osm.Scanner
	switch strings.ToLower(filepath.Ext(file)) {
	case ".pbf":
		s := osmpbf.New(ctx, f, max(p.Procs, 1))
		s.SkipNodes = !nodes
		s.SkipWays = nodes
		s.SkipRelations = true
		scanner = s
	case ".osm", ".xml":
		scanner = osmxml.New(ctx, f)
	default:
		return fmt.Errorf("%w: unsupported extract format %q", network.ErrSourceUnavailable, file)
	}
	defer scanner.Close()
	for scanner.Scan() {
		handle(scanner.Object())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: scan %s: %v", network.ErrSourceUnavailable, file, err)
	}
	return nil
}
