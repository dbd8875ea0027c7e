package algo

import "errors"

var (
	// 错误：起终点不连通
	ErrNoPathFound = errors.New("no path found")
	// 错误：节点不存在
	ErrUnknownNode = errors.New("unknown node")
	// 错误：路径中相邻节点之间没有边
	ErrInvalidPath = errors.New("invalid path")
	// 错误：节点ID重复
	ErrDuplicateNode = errors.New("duplicate node")
	// 错误：自环边
	ErrSelfLoop = errors.New("self loop edge")
	// 错误：边长非正
	ErrNonPositiveWeight = errors.New("non-positive edge weight")
	// 错误：图中没有可用节点
	ErrEmptyGraph = errors.New("empty graph")
)
