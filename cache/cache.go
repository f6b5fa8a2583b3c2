// Package cache 提供带 LRU 驱逐与 TTL 过期的泛型缓存
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache 通用泛型缓存，并发安全
//
//	templates := cache.New[int64, int64](cache.Config{Name: "variant_template", MaxSize: 4096})
//	templateID, err := templates.GetOrLoad(ctx, variantID, loadTemplateID)
type Cache[K comparable, V any] struct {
	config Config

	mu      sync.Mutex
	items   map[K]*entry[K, V]
	lruList *list.List // 最近使用的在前
	stats   Stats

	loads singleflight.Group
	now   func() time.Time
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	accessedAt time.Time
	elem       *list.Element
}

// Config 缓存配置
type Config struct {
	// Name 缓存名称（用于日志和统计）
	Name string

	// MaxSize 最大条目数，0 表示不限制
	MaxSize int

	// TTL 基于访问时间的过期时长，0 表示永不过期
	TTL time.Duration
}

// Stats 缓存统计信息
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expires   int64
	Size      int
}

// New 创建缓存
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	return &Cache[K, V]{
		config:  config,
		items:   make(map[K]*entry[K, V]),
		lruList: list.New(),
		now:     time.Now,
	}
}

// Name 返回缓存名称
func (c *Cache[K, V]) Name() string { return c.config.Name }

// Get 获取未过期的缓存值
func (c *Cache[K, V]) Get(key K) (value V, found bool) {
	// Get 会更新 LRU 位置与统计，需要写锁
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return value, false
	}
	if c.expiredUnsafe(e) {
		c.removeUnsafe(e)
		c.stats.Misses++
		c.stats.Expires++
		return value, false
	}

	e.accessedAt = c.now()
	c.lruList.MoveToFront(e.elem)
	c.stats.Hits++
	return e.value, true
}

// Set 设置缓存值，超过容量时驱逐最久未使用的条目
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[key]; ok {
		e.value = value
		e.accessedAt = now
		c.lruList.MoveToFront(e.elem)
		return
	}

	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.removeUnsafe(oldest.Value.(*entry[K, V]))
			c.stats.Evictions++
		}
	}

	e := &entry[K, V]{key: key, value: value, accessedAt: now}
	e.elem = c.lruList.PushFront(e)
	c.items[key] = e
}

// GetOrLoad 命中时直接返回；未命中时调用 load 并写入缓存。
//
// 同一个 key 的并发加载只会执行一次 load。load 返回错误时不缓存。
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load func(ctx context.Context, key K) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.loads.Do(fmt.Sprint(key), func() (any, error) {
		v, err := load(ctx, key)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Delete 删除缓存条目，返回条目是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeUnsafe(e)
	return true
}

// Clear 清空缓存
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[K, V])
	c.lruList.Init()
}

// CleanExpired 清理过期条目，返回清理数量
func (c *Cache[K, V]) CleanExpired() int {
	if c.config.TTL <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	for _, e := range c.items {
		if c.expiredUnsafe(e) {
			c.removeUnsafe(e)
			cleaned++
		}
	}
	c.stats.Expires += int64(cleaned)
	return cleaned
}

// Stats 返回统计信息副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.items)
	return stats
}

// Size 当前条目数
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// HitRate 命中率
func (c *Cache[K, V]) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *Cache[K, V]) expiredUnsafe(e *entry[K, V]) bool {
	return c.config.TTL > 0 && c.now().Sub(e.accessedAt) >= c.config.TTL
}

func (c *Cache[K, V]) removeUnsafe(e *entry[K, V]) {
	c.lruList.Remove(e.elem)
	delete(c.items, e.key)
}

// String 返回缓存概况
func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d, hits=%d, misses=%d, hit_rate=%.2f%%, evictions=%d, expires=%d",
		c.config.Name, s.Size, c.config.MaxSize, s.Hits, s.Misses, c.HitRate()*100, s.Evictions, s.Expires)
}
