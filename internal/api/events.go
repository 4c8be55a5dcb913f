package api

import (
	"sync"

	"zombiefactory/pkg/models"
)

// DefaultBufferSize 默认保留的事件条数
const DefaultBufferSize = 100

// EventBuffer 最近事件环形缓冲
// 实现sink.Sink，监听器写入的事件同时对API可见
type EventBuffer struct {
	mu     sync.RWMutex
	events []*models.NewZombieEvent
	limit  int
}

// NewEventBuffer 创建事件缓冲
func NewEventBuffer(limit int) *EventBuffer {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	return &EventBuffer{limit: limit}
}

// WriteEvent 追加事件，超出容量时淘汰最旧的
func (b *EventBuffer) WriteEvent(event *models.NewZombieEvent) error {
	if event == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.limit {
		b.events = b.events[len(b.events)-b.limit:]
	}
	return nil
}

// Recent 返回最近的事件，新的在前
func (b *EventBuffer) Recent() []*models.NewZombieEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*models.NewZombieEvent, 0, len(b.events))
	for i := len(b.events) - 1; i >= 0; i-- {
		result = append(result, b.events[i])
	}
	return result
}

// Close 实现Sink接口
func (b *EventBuffer) Close() error {
	return nil
}
