package oplog

import (
	"context"
	"sync"
)

// Sink 操作记录的持久化出口。Append 返回即视为持久，返回分配的记录 id。
type Sink interface {
	Append(ctx context.Context, rec Record) (int64, error)
}

// SinkFunc 函数适配
type SinkFunc func(ctx context.Context, rec Record) (int64, error)

// Append 实现 Sink
func (f SinkFunc) Append(ctx context.Context, rec Record) (int64, error) { return f(ctx, rec) }

// MemorySink 进程内 Sink，记录按追加顺序保存
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
}

// NewMemorySink 创建内存 Sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append 实现 Sink
func (m *MemorySink) Append(_ context.Context, rec Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, rec)
	return rec.ID, nil
}

// Records 返回全部记录的副本
func (m *MemorySink) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

// ByTemplate 返回某模板下的记录
func (m *MemorySink) ByTemplate(templateID int64) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if r.TemplateID == templateID {
			out = append(out, r)
		}
	}
	return out
}

// Len 记录数
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Reset 清空，id 重新从 1 开始
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.nextID = 0
}
