// Package sync 提供同步的消息传输实现：Publish 在调用方 goroutine 中执行全部处理器，
// 处理器错误会返回给发布者。
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"prodlog/messaging"
)

// SyncTransport 同步内存传输
type SyncTransport struct {
	handlers map[string][]messaging.IMessageHandler
	mutex    sync.RWMutex
	running  bool
}

// NewSyncTransport 创建同步传输实例
func NewSyncTransport() *SyncTransport {
	return &SyncTransport{
		handlers: make(map[string][]messaging.IMessageHandler),
	}
}

// Publish 立即、同步地发布消息；没有处理器时视为成功
func (t *SyncTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mutex.RLock()
	if !t.running {
		t.mutex.RUnlock()
		return fmt.Errorf("sync transport is not running")
	}
	handlers := messaging.MatchHandlers(t.handlers, message.GetType())
	t.mutex.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler.Handle(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", handler.Type(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("message %s handled with %d errors: %w", message.GetID(), len(errs), errors.Join(errs...))
	}
	return nil
}

// PublishAll 按顺序发布，遇到第一个错误即停止
func (t *SyncTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, message := range messages {
		if err := t.Publish(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 订阅消息处理器
func (t *SyncTransport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Unsubscribe 取消订阅消息处理器
func (t *SyncTransport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	remaining, found := messaging.RemoveHandler(t.handlers[messageType], handler)
	if !found {
		return fmt.Errorf("handler not found for message type %s", messageType)
	}
	t.handlers[messageType] = remaining
	return nil
}

// Start 启动传输层
func (t *SyncTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.running {
		return fmt.Errorf("sync transport is already running")
	}
	t.running = true
	return nil
}

// Close 关闭传输层
func (t *SyncTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.running {
		return fmt.Errorf("sync transport is not running")
	}
	t.running = false
	return nil
}

// Stats 返回统计信息
func (t *SyncTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return messaging.CollectStats(t.running, t.handlers)
}
