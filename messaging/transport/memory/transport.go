// Package memory 提供基于内存队列的异步消息传输，适用于单机部署与开发环境
package memory

import (
	"context"
	"fmt"
	"sync"

	"prodlog/logging"
	"prodlog/messaging"
)

// MemoryTransport 内存消息传输实现：Publish 入队，Worker 池异步分发。
// 处理器错误只记录日志，不回传给发布者。
type MemoryTransport struct {
	handlers    map[string][]messaging.IMessageHandler
	queue       chan messaging.IMessage
	queueSize   int
	workerCount int
	running     bool
	closed      bool
	logger      logging.Logger

	mutex sync.RWMutex
	wg    sync.WaitGroup
}

// NewMemoryTransport 创建内存传输实例；queueSize<=0 时默认 1000，workerCount<=0 时默认 4
func NewMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	return &MemoryTransport{
		handlers:    make(map[string][]messaging.IMessageHandler),
		queue:       make(chan messaging.IMessage, queueSize),
		queueSize:   queueSize,
		workerCount: workerCount,
		logger:      logging.ComponentLogger("transport.memory"),
	}
}

// WithLogger 替换日志实现
func (t *MemoryTransport) WithLogger(logger logging.Logger) *MemoryTransport {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// Publish 发布消息到队列；队列满或未启动时返回错误
func (t *MemoryTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if !t.running {
		return fmt.Errorf("memory transport is not running")
	}

	select {
	case t.queue <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("message queue is full")
	}
}

// PublishAll 批量发布，任一消息失败即返回
func (t *MemoryTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, message := range messages {
		if err := t.Publish(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 订阅消息处理器，支持 "*" 通配符
func (t *MemoryTransport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Unsubscribe 取消订阅
func (t *MemoryTransport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	remaining, found := messaging.RemoveHandler(t.handlers[messageType], handler)
	if !found {
		return fmt.Errorf("handler not found for message type %s", messageType)
	}
	t.handlers[messageType] = remaining
	return nil
}

// Start 启动 Worker 池
func (t *MemoryTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.running {
		return fmt.Errorf("memory transport is already running")
	}
	if t.closed {
		return fmt.Errorf("memory transport is closed")
	}
	t.running = true

	for i := 0; i < t.workerCount; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
	return nil
}

// Close 关闭队列并等待 Worker 处理完缓冲中的消息
func (t *MemoryTransport) Close() error {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return fmt.Errorf("memory transport is not running")
	}
	t.running = false
	t.closed = true
	close(t.queue)
	t.mutex.Unlock()

	t.wg.Wait()
	return nil
}

// Stats 获取统计信息
func (t *MemoryTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	stats := messaging.CollectStats(t.running, t.handlers)
	stats.QueueSize = t.queueSize
	stats.QueueDepth = len(t.queue)
	stats.WorkerCount = t.workerCount
	return stats
}

func (t *MemoryTransport) worker(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case message, ok := <-t.queue:
			if !ok {
				return
			}
			t.dispatch(ctx, message)
		case <-ctx.Done():
			return
		}
	}
}

func (t *MemoryTransport) dispatch(ctx context.Context, message messaging.IMessage) {
	t.mutex.RLock()
	handlers := messaging.MatchHandlers(t.handlers, message.GetType())
	t.mutex.RUnlock()

	for _, handler := range handlers {
		if err := handler.Handle(ctx, message); err != nil {
			t.logger.Warn(ctx, "message handler failed",
				logging.String("message_type", message.GetType()),
				logging.String("message_id", message.GetID()),
				logging.String("handler", handler.Type()),
				logging.Error(err))
		}
	}
}
