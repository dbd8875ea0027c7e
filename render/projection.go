package render

import (
	"math"

	"github.com/lucaspons9/TelBot/network"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Web Mercator在两极发散，纬度截断到其有效范围
const MAX_MERCATOR_LAT = 85.05112878

func mercator(c network.Coord) orb.Point {
	lat := math.Max(-MAX_MERCATOR_LAT, math.Min(MAX_MERCATOR_LAT, c.Lat))
	return project.WGS84.ToMercator(orb.Point{c.Lon, lat})
}

// viewport maps geographic coordinates to pixels with a Web Mercator
// projection fitted to a bounding box.
type viewport struct {
	bound  orb.Bound
	scale  float64
	offset orb.Point
	height float64
}

func newViewport(coords []network.Coord, width, height int, padding float64) viewport {
	bound := orb.Bound{Min: mercator(coords[0]), Max: mercator(coords[0])}
	for _, c := range coords[1:] {
		bound = bound.Extend(mercator(c))
	}
	w, h := float64(width)-2*padding, float64(height)-2*padding
	dx, dy := bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1]
	scale := 1.0
	if dx > 0 || dy > 0 {
		scale = math.Min(w/math.Max(dx, 1e-9), h/math.Max(dy, 1e-9))
	}
	// 居中
	offset := orb.Point{
		padding + (w-dx*scale)/2,
		padding + (h-dy*scale)/2,
	}
	return viewport{bound: bound, scale: scale, offset: offset, height: float64(height)}
}

func (v viewport) pixel(c network.Coord) (float64, float64) {
	p := mercator(c)
	x := v.offset[0] + (p[0]-v.bound.Min[0])*v.scale
	y := v.offset[1] + (p[1]-v.bound.Min[1])*v.scale
	// 图像y轴向下
	return x, v.height - y
}
