// Package product 定义商品模板与变体的宿主持久化契约。
//
// 模板（product.template）是共享定义，变体（product.product）是可售单元，
// 每个变体恰好属于一个模板。
package product

import (
	"fmt"
	"sort"
)

// Kind 实体种类
type Kind int

const (
	Template Kind = iota + 1
	Variant
)

// 宿主模型名
const (
	TemplateModel = "product.template"
	VariantModel  = "product.product"
)

// String 返回宿主模型名
func (k Kind) String() string {
	switch k {
	case Template:
		return TemplateModel
	case Variant:
		return VariantModel
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid 是否为已知种类
func (k Kind) Valid() bool {
	return k == Template || k == Variant
}

// 常用字段名
const (
	FieldID           = "id"
	FieldTemplateID   = "template_id"
	FieldName         = "name"
	FieldSKU          = "product_sku"
	FieldListPrice    = "list_price"
	FieldImage        = "image"
	FieldBarcode      = "barcode"
	FieldDefaultCode  = "default_code"
	FieldQtyAvailable = "qty_available"
)

// Values 字段名到值的映射
type Values map[string]any

// Fields 返回排序后的字段名
func (v Values) Fields() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone 浅拷贝
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Row 已加载的一行。变体的 TemplateID 为所属模板；模板行的 TemplateID 为 0。
type Row struct {
	Kind       Kind
	ID         int64
	TemplateID int64
	Fields     Values
}

// String 返回行的简短描述
func (r Row) String() string {
	return fmt.Sprintf("%s(%d)", r.Kind, r.ID)
}

// Text 读取字符串字段，缺失或类型不符时返回空串
func (r Row) Text(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// Filter 搜索条件，各条件之间为 AND
type Filter struct {
	IDs        []int64
	TemplateID int64
	ExcludeIDs []int64
	Limit      int
}
