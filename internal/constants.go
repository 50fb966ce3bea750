package internal

import "time"

const (
	// 历史记录默认路径
	DefaultHistoryPath = "~/.file-transfer/history.json"

	// 配置文件默认路径
	DefaultConfigPath = "~/.file-transfer/config.yaml"

	// 同时执行的操作数
	DefaultMaxConcurrentOperations = 2

	// 操作内部批量并发数
	DefaultBatchConcurrency = 4

	// 事件通道缓冲区大小
	DefaultBufferSize = 1000

	DefaultHashAlgorithm = AlgoXXHash
)

// 自适应缓冲区
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// 关闭自适应时使用的固定大小
	FixedBufferSize = 1 * MB

	// 同卷复制的放大倍数，上限 MaxBufferSize
	DefaultSameVolumeMultiplier = 4
	MaxBufferSize               = 64 * MB
)

// 重试
const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 1 * time.Second
)

// 冲突处理
const (
	DefaultRenamePattern     = "{stem} ({counter}){suffix}"
	DefaultMaxRenameAttempts = 10000
)

// 校验
const (
	// 超过该大小的文件在复制后使用抽样校验
	DefaultSampledVerifyThreshold = 1 * GB
	DefaultSampleCount            = 16
	DefaultSampleSize             = 1 * MB
)

// 进度速度采样
const (
	SpeedSampleWindow   = 10
	SpeedSampleInterval = 100 * time.Millisecond
)
