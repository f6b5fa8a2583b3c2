package oplog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"prodlog/errors"
)

// PayloadVersion 当前载荷信封版本
const PayloadVersion = 1

// PayloadKind 载荷种类
type PayloadKind string

const (
	KindNames    PayloadKind = "names"
	KindValues   PayloadKind = "values"
	KindIdentity PayloadKind = "identity"
)

// Payload 记录载荷：FieldNames、FieldValues 或 IdentitySnapshot 之一
type Payload interface {
	Kind() PayloadKind
	isPayload()
}

// FieldNames 被修改的字段名（已排序）
type FieldNames []string

// NewFieldNames 复制并排序字段名
func NewFieldNames(names ...string) FieldNames {
	out := append(FieldNames(nil), names...)
	sort.Strings(out)
	return out
}

func (FieldNames) Kind() PayloadKind { return KindNames }
func (FieldNames) isPayload()        {}

// String 以逗号连接
func (f FieldNames) String() string { return strings.Join(f, ",") }

// FieldValues 被修改字段的新值。二进制字段以 true 代替内容。
type FieldValues map[string]any

func (FieldValues) Kind() PayloadKind { return KindValues }
func (FieldValues) isPayload()        {}

// Names 返回排序后的字段名
func (f FieldValues) Names() FieldNames {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	return NewFieldNames(names...)
}

// IdentitySnapshot 删除前捕获的外部标识，删除后行已不可读
type IdentitySnapshot struct {
	SKU         string `json:"product_sku,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	DefaultCode string `json:"default_code,omitempty"`
}

// Empty 是否未捕获任何标识
func (s IdentitySnapshot) Empty() bool {
	return s == IdentitySnapshot{}
}

func (IdentitySnapshot) Kind() PayloadKind { return KindIdentity }
func (IdentitySnapshot) isPayload()        {}

type envelope struct {
	V        int               `json:"v"`
	Kind     PayloadKind       `json:"kind"`
	Names    []string          `json:"names,omitempty"`
	Values   map[string]any    `json:"values,omitempty"`
	Identity *IdentitySnapshot `json:"identity,omitempty"`
}

// EncodePayload 编码为版本化 JSON 信封；nil 载荷编码为 nil
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	env := envelope{V: PayloadVersion, Kind: p.Kind()}
	switch v := p.(type) {
	case FieldNames:
		env.Names = []string(v)
		if env.Names == nil {
			env.Names = []string{}
		}
	case FieldValues:
		env.Values = map[string]any(v)
	case IdentitySnapshot:
		env.Identity = &v
	case *IdentitySnapshot:
		env.Identity = v
	default:
		return nil, errors.NewError(errors.ErrCodePayload, fmt.Sprintf("unsupported payload type %T", p))
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodePayload, "encode payload")
	}
	return data, nil
}

// DecodePayload 解码 EncodePayload 的输出。数值保留为 json.Number。
func DecodePayload(data []byte) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodePayload, "decode payload")
	}
	if env.V != PayloadVersion {
		return nil, errors.NewError(errors.ErrCodePayload, fmt.Sprintf("unsupported payload version %d", env.V))
	}
	switch env.Kind {
	case KindNames:
		return FieldNames(env.Names), nil
	case KindValues:
		if env.Values == nil {
			return FieldValues{}, nil
		}
		return FieldValues(env.Values), nil
	case KindIdentity:
		if env.Identity == nil {
			return IdentitySnapshot{}, nil
		}
		return *env.Identity, nil
	default:
		return nil, errors.NewError(errors.ErrCodePayload, fmt.Sprintf("unknown payload kind %q", env.Kind))
	}
}
