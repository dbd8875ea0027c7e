package algo

import "math"

// 秒转分钟，向下取整（不足一分钟的部分舍去）
func SecondsToMinutes(seconds float64) int {
	return int(math.Floor(seconds / 60))
}
