package messaging

import (
	"context"
	"sort"
)

// WildcardType 订阅全部消息类型
const WildcardType = "*"

// Transport 消息传输接口
type Transport interface {
	Publish(ctx context.Context, message IMessage) error
	PublishAll(ctx context.Context, messages []IMessage) error
	Subscribe(messageType string, handler IMessageHandler) error
	Unsubscribe(messageType string, handler IMessageHandler) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// TransportStats 传输层统计信息
type TransportStats struct {
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	MessageTypes []string `json:"message_types"`
	QueueSize    int      `json:"queue_size,omitempty"`
	QueueDepth   int      `json:"queue_depth,omitempty"`
	WorkerCount  int      `json:"worker_count,omitempty"`
}

// CollectStats 根据处理器表生成统计信息，MessageTypes 已排序
func CollectStats(running bool, handlers map[string][]IMessageHandler) TransportStats {
	stats := TransportStats{Running: running, MessageTypes: make([]string, 0, len(handlers))}
	for mt, hs := range handlers {
		stats.HandlerCount += len(hs)
		stats.MessageTypes = append(stats.MessageTypes, mt)
	}
	sort.Strings(stats.MessageTypes)
	return stats
}
