package operations

import (
	"time"

	"github.com/moyu-x/file-transfer/internal"
)

type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event 状态变化或进度事件
type Event struct {
	Type        EventType                `json:"type"`
	OperationID string                   `json:"operation_id"`
	Status      internal.OperationStatus `json:"status,omitempty"`
	Progress    *internal.ProgressUpdate `json:"progress,omitempty"`
	Time        time.Time                `json:"time"`
}

func terminalEvent(status internal.OperationStatus) EventType {
	switch status {
	case internal.StatusCompleted:
		return EventCompleted
	case internal.StatusCancelled:
		return EventCancelled
	default:
		return EventFailed
	}
}

// Subscribe 返回事件通道和取消订阅函数；消费过慢时事件会被丢弃
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, internal.DefaultBufferSize)

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	return ch, func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}

func (m *Manager) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = m.now()
	}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
