package street

import "github.com/paulmach/osm"

// 步行可通行的道路类型
var WALKABLE_HIGHWAYS = map[string]bool{
	"footway": true, "pedestrian": true, "path": true, "steps": true, "living_street": true,
	"residential": true, "service": true, "unclassified": true, "track": true, "road": true,
	"tertiary": true, "tertiary_link": true, "secondary": true, "secondary_link": true,
	"primary": true, "primary_link": true, "cycleway": true, "corridor": true, "bridleway": true,
}

// IsWalkable reports whether a way with these tags can be used on foot.
func IsWalkable(tags osm.Tags) bool {
	if !WALKABLE_HIGHWAYS[tags.Find("highway")] {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}
	switch tags.Find("foot") {
	case "no", "private":
		return false
	case "yes", "designated", "permissive":
		return true
	}
	switch tags.Find("access") {
	case "no", "private":
		return false
	}
	return true
}
