package sqlstore

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"prodlog/errors"
	"prodlog/product"
)

const (
	templateTable = "product_template"
	variantTable  = "product_product"
	stockTable    = "stock_quant"
)

type columnKind int

const (
	colText columnKind = iota
	colDecimal
	colBinary
	colRef
)

type columnSet map[string]columnKind

var (
	templateColumns = columnSet{
		product.FieldName:      colText,
		product.FieldSKU:       colText,
		product.FieldListPrice: colDecimal,
		product.FieldImage:     colBinary,
	}
	variantColumns = columnSet{
		product.FieldTemplateID:  colRef,
		product.FieldSKU:         colText,
		product.FieldBarcode:     colText,
		product.FieldDefaultCode: colText,
		product.FieldImage:       colBinary,
	}
)

func columnsFor(kind product.Kind) (string, columnSet, error) {
	if !kind.Valid() {
		return "", nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown product kind %s", kind))
	}
	if kind == product.Template {
		return templateTable, templateColumns, nil
	}
	return variantTable, variantColumns, nil
}

// selectColumns 加载时读取的列，顺序与 scanRow 一致
func selectColumns(kind product.Kind) []string {
	if kind == product.Template {
		return []string{"id", product.FieldName, product.FieldSKU, product.FieldListPrice, product.FieldImage}
	}
	return []string{"id", product.FieldTemplateID, product.FieldSKU, product.FieldBarcode, product.FieldDefaultCode, product.FieldImage}
}

// convert 将调用方传入的值规整为列类型
func (k columnKind) convert(field string, v any) (any, error) {
	switch k {
	case colText:
		switch val := v.(type) {
		case nil:
			return "", nil
		case string:
			return val, nil
		case fmt.Stringer:
			return val.String(), nil
		}
	case colDecimal:
		switch val := v.(type) {
		case nil:
			return decimal.Zero, nil
		case decimal.Decimal:
			return val, nil
		case float64:
			return decimal.NewFromFloat(val), nil
		case int:
			return decimal.NewFromInt(int64(val)), nil
		case int64:
			return decimal.NewFromInt(val), nil
		case string:
			d, err := decimal.NewFromString(val)
			if err != nil {
				return nil, errors.WrapError(err, errors.ErrCodeValidation, fmt.Sprintf("field %s: invalid decimal", field))
			}
			return d, nil
		}
	case colBinary:
		switch val := v.(type) {
		case nil:
			return nil, nil
		case []byte:
			return val, nil
		case string:
			return []byte(val), nil
		}
	case colRef:
		id, err := refValue(v)
		if err == nil {
			return id, nil
		}
	}
	return nil, errors.New(errors.ErrCodeValidation, fmt.Sprintf("field %s: unsupported value type %T", field, v))
}

// refValue 解析外键字段，nil 与 0 均视为未设置
func refValue(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	case string:
		if val == "" {
			return 0, nil
		}
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported reference type %T", v)
	}
}

func anyIDs(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
