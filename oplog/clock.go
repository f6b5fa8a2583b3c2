package oplog

import (
	"sync"
	"time"
)

// Clock 产生单调不减的 UTC 时间戳，精度为微秒（与 postgres TIMESTAMPTZ 一致）。
// 系统时钟回拨时沿用上一次的时间。
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock 使用系统时钟
func NewClock() *Clock {
	return NewClockFunc(time.Now)
}

// NewClockFunc 使用给定时间源，测试用
func NewClockFunc(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now 返回下一个时间戳
func (c *Clock) Now() time.Time {
	t := c.now().UTC().Truncate(time.Microsecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
