package cache

import "errors"

// 持久化文件后缀：zstd压缩的BSON文档
const FILE_SUFFIX = ".bson.zst"

var ErrCacheMiss = errors.New("cache miss")
