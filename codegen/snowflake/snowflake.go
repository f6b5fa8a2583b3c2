// Package snowflake 提供操作记录使用的有序 ID 生成器（雪花算法）
package snowflake

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"prodlog/errors"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	nodeBits     = 10
	sequenceBits = 12

	maxNode     = -1 ^ (-1 << nodeBits)     // 1023
	maxSequence = -1 ^ (-1 << sequenceBits) // 4095

	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits

	// 时钟回拨容忍度，超过则报错
	maxBackwardDrift = 5 * time.Millisecond
)

// Generator 在单个节点内生成严格递增的 ID
type Generator struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	lastMs   int64
	now      func() time.Time
}

// Option 生成器选项
type Option func(*Generator)

// WithClock 替换时间来源（测试用）
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator 创建节点号为 node 的生成器
func NewGenerator(node int64, opts ...Option) (*Generator, error) {
	if node < 0 || node > maxNode {
		return nil, errors.NewError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("snowflake node %d out of range [0,%d]", node, maxNode))
	}
	g := &Generator{node: node, lastMs: -1, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Node 返回节点号
func (g *Generator) Node() int64 { return g.node }

// NextID 生成下一个 ID。
//
// 小幅度的时钟回拨沿用上一个毫秒继续分配序列号，保证单调；
// 回拨超过 maxBackwardDrift 时返回错误。
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	if now < g.lastMs {
		if time.Duration(g.lastMs-now)*time.Millisecond > maxBackwardDrift {
			return 0, errors.NewError(errors.ErrCodeInternal,
				fmt.Sprintf("clock moved backwards by %dms", g.lastMs-now))
		}
		now = g.lastMs
	}

	if now == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 序列号用完，借用下一毫秒
			now = g.lastMs + 1
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = now

	return ((now - epoch) << timestampShift) | (g.node << nodeShift) | g.sequence, nil
}

// Parts ID 的组成部分
type Parts struct {
	Time     time.Time
	Node     int64
	Sequence int64
}

// Parse 解析 ID
func Parse(id int64) Parts {
	return Parts{
		Time:     time.UnixMilli((id >> timestampShift) + epoch).UTC(),
		Node:     (id >> nodeShift) & maxNode,
		Sequence: id & maxSequence,
	}
}

var defaultGenerator atomic.Pointer[Generator]

func init() {
	gen, _ := NewGenerator(1)
	defaultGenerator.Store(gen)
}

// NextID 使用默认生成器生成 ID
func NextID() (int64, error) {
	return defaultGenerator.Load().NextID()
}

// SetDefaultNode 以指定节点号替换默认生成器
func SetDefaultNode(node int64) error {
	gen, err := NewGenerator(node)
	if err != nil {
		return err
	}
	defaultGenerator.Store(gen)
	return nil
}
