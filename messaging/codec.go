package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope 跨进程传输使用的线上格式
type envelope struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Marshal 将消息编码为 JSON 信封；时间戳以 UTC 纳秒保存
func Marshal(msg IMessage) ([]byte, error) {
	payload, err := json.Marshal(msg.GetPayload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload of %s: %w", msg.GetID(), err)
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(envelope{
		ID:        msg.GetID(),
		Type:      msg.GetType(),
		Timestamp: ts.UnixNano(),
		Payload:   payload,
		Metadata:  msg.GetMetadata(),
	})
}

// Unmarshal 解码 JSON 信封。Payload 保持 json.RawMessage，由消费方按类型解码。
func Unmarshal(data []byte) (*Message, error) {
	var wire envelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Metadata == nil {
		wire.Metadata = make(map[string]string)
	}
	return &Message{
		ID:        wire.ID,
		Type:      wire.Type,
		Timestamp: time.Unix(0, wire.Timestamp).UTC(),
		Payload:   wire.Payload,
		Metadata:  wire.Metadata,
	}, nil
}
