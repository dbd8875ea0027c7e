package render

import "errors"

const (
	PATH_WIDTH     = 500
	PATH_HEIGHT    = 500
	PATH_PADDING   = 20
	GRAPH_WIDTH    = 3000
	GRAPH_HEIGHT   = 4000
	GRAPH_PADDING  = 80
	LINE_WIDTH     = 5
	MARKER_RADIUS  = 4
	BACKGROUND     = "#ffffff"
	MARKER_COLOR   = "#000000"
	STREET_SEGMENT = "#000000"
	// 全图中节点颜色
	STATION_NODE_COLOR = "#ff0000"
	ACCESS_NODE_COLOR  = "#000000"
	STREET_NODE_COLOR  = "#0f7f13"
)

var ErrRenderFailure = errors.New("render failure")
