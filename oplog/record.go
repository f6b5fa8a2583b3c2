// Package oplog 定义商品操作记录（Operation Record）及其存储、发布。
//
// 每次对模板或变体的逻辑变更产生一条不可变记录，按模板分组，
// 下游集成据此把外部系统与本地商品目录对齐。
package oplog

import (
	"fmt"
	"time"

	"prodlog/errors"
)

// ModelName 记录所属的模型
type ModelName string

const (
	ModelTemplate ModelName = "product.template"
	ModelVariant  ModelName = "product.product"
)

// Valid 是否为已知模型
func (m ModelName) Valid() bool {
	return m == ModelTemplate || m == ModelVariant
}

// OperationType 操作类型
type OperationType string

const (
	OpCreate OperationType = "create"
	OpWrite  OperationType = "write"
	OpUnlink OperationType = "unlink"
)

// Valid 是否为已知操作
func (o OperationType) Valid() bool {
	return o == OpCreate || o == OpWrite || o == OpUnlink
}

// Key 逻辑键：行 id 及其所属模板 id。模板记录的两者相同。
type Key struct {
	ModelName  ModelName
	RecordID   int64
	TemplateID int64
}

// String 返回键的简短描述
func (k Key) String() string {
	return fmt.Sprintf("%s(%d)@%d", k.ModelName, k.RecordID, k.TemplateID)
}

// Record 一条操作记录
type Record struct {
	// ID 由 Sink 分配，按插入顺序递增
	ID int64
	Key
	OperationType OperationType
	// Payload create 时为 nil
	Payload   Payload
	Timestamp time.Time
}

// MessageType 发布到传输层时使用的消息类型，例如 "product.product.write"
func (r Record) MessageType() string {
	return string(r.ModelName) + "." + string(r.OperationType)
}

// Validate 检查记录是否满足不变量
func (r Record) Validate() error {
	switch {
	case !r.ModelName.Valid():
		return invalid("unknown model %q", r.ModelName)
	case !r.OperationType.Valid():
		return invalid("unknown operation %q", r.OperationType)
	case r.RecordID <= 0:
		return invalid("record_id must be positive, got %d", r.RecordID)
	case r.TemplateID <= 0:
		return invalid("template_id must be positive, got %d", r.TemplateID)
	case r.ModelName == ModelTemplate && r.RecordID != r.TemplateID:
		return invalid("template record %d carries template_id %d", r.RecordID, r.TemplateID)
	case r.OperationType == OpCreate && r.Payload != nil:
		return invalid("create record must not carry a payload")
	case r.Timestamp.IsZero():
		return invalid("timestamp is required")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.NewError(errors.ErrCodeValidation, "invalid operation record: "+fmt.Sprintf(format, args...))
}
