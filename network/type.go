package network

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

type NodeID string

type NodeKind int

const (
	NODE_STREET NodeKind = iota
	NODE_STATION
	NODE_ACCESS
)

func (k NodeKind) String() string {
	switch k {
	case NODE_STREET:
		return "street"
	case NODE_STATION:
		return "station"
	case NODE_ACCESS:
		return "access"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

type EdgeKind int

const (
	EDGE_STREET EdgeKind = iota
	EDGE_BOARDING
	EDGE_TRANSFER
	EDGE_TRAM
)

func (k EdgeKind) String() string {
	switch k {
	case EDGE_STREET:
		return "street"
	case EDGE_BOARDING:
		return "boarding"
	case EDGE_TRANSFER:
		return "transfer"
	case EDGE_TRAM:
		return "tram"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

// 该类型边的速度 (m/s)
func (k EdgeKind) Speed() float64 {
	if k == EDGE_TRAM {
		return VEHICLE_SPEED
	}
	return WALK_SPEED
}

// 经纬度坐标 (lon, lat)
type Coord struct {
	Lon float64 `json:"lon" bson:"lon"`
	Lat float64 `json:"lat" bson:"lat"`
}

func (c Coord) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func (c Coord) Validate() error {
	if math.IsNaN(c.Lon) || math.IsNaN(c.Lat) || math.IsInf(c.Lon, 0) || math.IsInf(c.Lat, 0) {
		return fmt.Errorf("%w: (%v, %v) is not finite", ErrInvalidCoordinate, c.Lon, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of [-180, 180]", ErrInvalidCoordinate, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	return nil
}

func (c Coord) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lon, c.Lat)
}

// ParseCoord parses "lon,lat".
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coord{}, fmt.Errorf("%w: %q is not \"lon,lat\"", ErrInvalidCoordinate, s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: bad longitude %q", ErrInvalidCoordinate, parts[0])
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: bad latitude %q", ErrInvalidCoordinate, parts[1])
	}
	c := Coord{Lon: lon, Lat: lat}
	return c, c.Validate()
}

// 两点间的球面距离（米）
func Distance(a, b Coord) float64 {
	return geo.DistanceHaversine(a.Point(), b.Point())
}

type Node struct {
	ID   NodeID   `bson:"id"`
	Kind NodeKind `bson:"kind"`
	Pos  Coord    `bson:"pos"`
	Name string   `bson:"name,omitempty"`
}

type Edge struct {
	From     NodeID   `bson:"from"`
	To       NodeID   `bson:"to"`
	Kind     EdgeKind `bson:"kind"`
	Distance float64  `bson:"distance"`
	Color    string   `bson:"color,omitempty"`
}

func (e Edge) Speed() float64 {
	return e.Kind.Speed()
}

// 边权：通行时间（秒）
func (e Edge) Weight() float64 {
	return e.Distance / e.Kind.Speed()
}

func (e Edge) IsSelfLoop() bool {
	return e.From == e.To
}

// 重合点的距离截断为 MIN_EDGE_DISTANCE，保证边权严格为正
func ClampDistance(d float64) float64 {
	if d < MIN_EDGE_DISTANCE {
		return MIN_EDGE_DISTANCE
	}
	return d
}

func StreetNodeID(osmID int64) NodeID {
	return NodeID(fmt.Sprintf("street:%d", osmID))
}

func StationNodeID(stopID string) NodeID {
	return NodeID("station:" + stopID)
}

func AccessNodeID(stopID string) NodeID {
	return NodeID("access:" + stopID)
}
