package catalog

import "errors"

// 每次搜索最多返回的结果数
const DEFAULT_LIMIT = 12

var ErrIndexOutOfRange = errors.New("index out of range")
