package router

import "github.com/lucaspons9/TelBot/network"

// Route is the answer to a routing request between two coordinates.
type Route struct {
	Src  network.Coord
	Dst  network.Coord
	Path []network.NodeID
	// 通行时间
	Seconds float64
	// floor(Seconds / 60)
	Minutes int
}
