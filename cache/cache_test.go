package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newWithClock[K comparable, V any](cfg Config) (*Cache[K, V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[K, V](cfg)
	c.now = clock.Now
	return c, clock
}

// TestCache_BasicOperations 测试基本操作
func TestCache_BasicOperations(t *testing.T) {
	c := New[int64, int64](Config{Name: "variant_template", MaxSize: 100, TTL: time.Minute})

	c.Set(11, 3)
	value, found := c.Get(11)
	assert.True(t, found)
	assert.Equal(t, int64(3), value)

	_, found = c.Get(99)
	assert.False(t, found)

	assert.True(t, c.Delete(11))
	assert.False(t, c.Delete(11))
	_, found = c.Get(11)
	assert.False(t, found)
}

func TestCache_Update(t *testing.T) {
	c := New[int64, string](Config{MaxSize: 100})
	assert.Equal(t, "unnamed", c.Name())

	c.Set(1, "first")
	c.Set(1, "second")
	value, found := c.Get(1)
	require.True(t, found)
	assert.Equal(t, "second", value)
	assert.Equal(t, 1, c.Size())
}

// TestCache_LRUEviction 测试 LRU 驱逐
func TestCache_LRUEviction(t *testing.T) {
	c := New[int, string](Config{Name: "test", MaxSize: 3})

	c.Set(1, "one")
	c.Set(2, "two")
	c.Set(3, "three")

	// 访问 key=1 使其成为最近使用的
	_, found := c.Get(1)
	require.True(t, found)

	c.Set(4, "four")
	assert.Equal(t, 3, c.Size())

	_, found = c.Get(2)
	assert.False(t, found, "key=2 应被驱逐")
	for _, k := range []int{1, 3, 4} {
		_, found = c.Get(k)
		assert.True(t, found, "key=%d 应保留", k)
	}
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_TTL(t *testing.T) {
	c, clock := newWithClock[string, int](Config{Name: "ttl", TTL: time.Minute})

	c.Set("a", 1)
	clock.Advance(30 * time.Second)
	_, found := c.Get("a")
	require.True(t, found, "访问刷新过期时间")

	clock.Advance(45 * time.Second)
	_, found = c.Get("a")
	assert.True(t, found)

	clock.Advance(2 * time.Minute)
	_, found = c.Get("a")
	assert.False(t, found)
	assert.Equal(t, int64(1), c.Stats().Expires)
}

func TestCache_CleanExpired(t *testing.T) {
	c, clock := newWithClock[int, int](Config{TTL: time.Second})
	c.Set(1, 1)
	c.Set(2, 2)
	clock.Advance(2 * time.Second)
	c.Set(3, 3)

	assert.Equal(t, 2, c.CleanExpired())
	assert.Equal(t, 1, c.Size())

	noTTL := New[int, int](Config{})
	noTTL.Set(1, 1)
	assert.Equal(t, 0, noTTL.CleanExpired())
}

func TestCache_ClearAndStats(t *testing.T) {
	c := New[int, int](Config{Name: "stats", MaxSize: 10})
	c.Set(1, 1)
	c.Get(1)
	c.Get(1)
	c.Get(2)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 2.0/3.0, c.HitRate(), 0.0001)
	assert.Contains(t, c.String(), "Cache[stats]")

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCache_GetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := New[int64, int64](Config{Name: "variant_template", MaxSize: 10})

	var calls atomic.Int32
	load := func(ctx context.Context, variantID int64) (int64, error) {
		calls.Add(1)
		return variantID * 10, nil
	}

	t.Run("未命中时加载并缓存", func(t *testing.T) {
		v, err := c.GetOrLoad(ctx, 4, load)
		require.NoError(t, err)
		assert.Equal(t, int64(40), v)

		v, err = c.GetOrLoad(ctx, 4, load)
		require.NoError(t, err)
		assert.Equal(t, int64(40), v)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("加载失败不缓存", func(t *testing.T) {
		boom := errors.New("row gone")
		_, err := c.GetOrLoad(ctx, 5, func(context.Context, int64) (int64, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
		_, found := c.Get(5)
		assert.False(t, found)
	})
}

func TestCache_GetOrLoad_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := New[int64, int64](Config{MaxSize: 10})

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context, id int64) (int64, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(ctx, 1, load)
			assert.NoError(t, err)
			assert.Equal(t, int64(7), v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	v, found := c.Get(1)
	require.True(t, found)
	assert.Equal(t, int64(7), v)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int, int](Config{MaxSize: 64})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Set(g*1000+i, i)
				c.Get(g*1000 + i)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 64)
}

func BenchmarkCache_Get(b *testing.B) {
	c := New[int, int](Config{MaxSize: 1024})
	for i := 0; i < 1024; i++ {
		c.Set(i, i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(i % 1024)
	}
}
