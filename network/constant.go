package network

import "errors"

const (
	// 步行速度 m/s
	WALK_SPEED = 1.5
	// 车内速度 m/s
	VEHICLE_SPEED = 8.0

	// 最短边长，避免重合点产生零权重
	MIN_EDGE_DISTANCE = 0.1

	WALK_COLOR         = "#000000"
	STREET_COLOR       = "#fffc38"
	ACCESS_LINK_COLOR  = "#fbac2c"
	BOARDING_COLOR     = "#7a7a7a"
	TRANSFER_COLOR     = "#3a3a3a"
	DEFAULT_LINE_COLOR = "#000000"
)

var (
	// 数据源不可用（首次构建失败）
	ErrSourceUnavailable = errors.New("network source unavailable")
	// 坐标格式错误
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)
