package transit

import "github.com/lucaspons9/TelBot/network"

// GTFS location_type
const (
	LOCATION_STOP     = 0
	LOCATION_STATION  = 1
	LOCATION_ENTRANCE = 2
	// 站内通道节点与上车区，坐标可为空，不参与建图
	LOCATION_GENERIC_NODE  = 3
	LOCATION_BOARDING_AREA = 4
)

const DEFAULT_ROUTE_COLOR = network.DEFAULT_LINE_COLOR
