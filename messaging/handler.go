package messaging

import (
	"context"
)

// IMessageHandler 消息处理器接口
type IMessageHandler interface {
	Handle(ctx context.Context, message IMessage) error

	// Type 返回处理器类型（用于日志和调试）
	Type() string
}

// HandlerFunc 将函数适配为 IMessageHandler
type HandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, message IMessage) error
}

// Handle 实现 IMessageHandler
func (h *HandlerFunc) Handle(ctx context.Context, message IMessage) error {
	return h.Fn(ctx, message)
}

// Type 实现 IMessageHandler
func (h *HandlerFunc) Type() string {
	if h.Name == "" {
		return "func"
	}
	return h.Name
}

// MatchHandlers 收集精确匹配与通配符 "*" 的处理器副本
func MatchHandlers(handlers map[string][]IMessageHandler, messageType string) []IMessageHandler {
	exact := handlers[messageType]
	wildcard := handlers[WildcardType]
	out := make([]IMessageHandler, 0, len(exact)+len(wildcard))
	out = append(out, exact...)
	out = append(out, wildcard...)
	return out
}

// RemoveHandler 从列表中移除 handler，返回新列表与是否找到
func RemoveHandler(handlers []IMessageHandler, handler IMessageHandler) ([]IMessageHandler, bool) {
	for i, h := range handlers {
		if h == handler {
			return append(handlers[:i:i], handlers[i+1:]...), true
		}
	}
	return handlers, false
}
