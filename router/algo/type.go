package algo

// 邻接表中的一条出边
type halfEdge struct {
	to   int
	edge int
}

// 无向边的端点对，u < v
type pairKey struct {
	u, v int
}

func newPairKey(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{u: a, v: b}
}
