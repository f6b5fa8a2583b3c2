package oplog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"prodlog/errors"
	"prodlog/messaging"
)

// 消息元数据键
const (
	MetaTemplateID = "template_id"
	MetaModelName  = "model_name"
)

// RecordEvent 记录在消息中的线上形态
type RecordEvent struct {
	ID            int64           `json:"id"`
	ModelName     ModelName       `json:"model_name"`
	RecordID      int64           `json:"record_id"`
	TemplateID    int64           `json:"template_id"`
	OperationType OperationType   `json:"record_operation"`
	Payload       json.RawMessage `json:"operation_data,omitempty"`
	Timestamp     time.Time       `json:"operation_timestamp"`
}

// NewMessage 将记录转为消息。消息 id 为记录 id，传输层据此去重。
func NewMessage(rec Record) (*messaging.Message, error) {
	data, err := EncodePayload(rec.Payload)
	if err != nil {
		return nil, err
	}
	msg := messaging.NewMessage(strconv.FormatInt(rec.ID, 10), rec.MessageType(), RecordEvent{
		ID:            rec.ID,
		ModelName:     rec.ModelName,
		RecordID:      rec.RecordID,
		TemplateID:    rec.TemplateID,
		OperationType: rec.OperationType,
		Payload:       data,
		Timestamp:     rec.Timestamp,
	})
	msg.Timestamp = rec.Timestamp
	msg.SetMetadata(MetaTemplateID, strconv.FormatInt(rec.TemplateID, 10))
	msg.SetMetadata(MetaModelName, string(rec.ModelName))
	return msg, nil
}

// RecordFromMessage 从消息还原记录。载荷可以是进程内的 RecordEvent，
// 也可以是跨进程传输解码后的 JSON。
func RecordFromMessage(msg messaging.IMessage) (Record, error) {
	var ev RecordEvent
	switch p := msg.GetPayload().(type) {
	case RecordEvent:
		ev = p
	case *RecordEvent:
		ev = *p
	case json.RawMessage:
		if err := json.Unmarshal(p, &ev); err != nil {
			return Record{}, errors.WrapError(err, errors.ErrCodePayload, "decode record message")
		}
	case []byte:
		if err := json.Unmarshal(p, &ev); err != nil {
			return Record{}, errors.WrapError(err, errors.ErrCodePayload, "decode record message")
		}
	default:
		return Record{}, errors.NewError(errors.ErrCodePayload, fmt.Sprintf("unexpected message payload %T", p))
	}

	payload, err := DecodePayload(ev.Payload)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:            ev.ID,
		Key:           Key{ModelName: ev.ModelName, RecordID: ev.RecordID, TemplateID: ev.TemplateID},
		OperationType: ev.OperationType,
		Payload:       payload,
		Timestamp:     ev.Timestamp.UTC(),
	}, nil
}
