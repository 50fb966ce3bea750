package tui

import (
	"time"

	"github.com/moyu-x/file-transfer/internal"
)

type tickMsg time.Time

// row 一个操作在某次轮询时的快照
type row struct {
	op   *internal.FileOperation
	prog *internal.OperationProgress
}

type snapshotMsg struct {
	rows []row
}
