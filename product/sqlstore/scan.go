package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"

	core "prodlog/data/db"
	"prodlog/errors"
	"prodlog/product"
)

func scanRow(kind product.Kind, rows core.IRows) (product.Row, error) {
	var (
		id    int64
		sku   string
		image []byte
	)
	if kind == product.Template {
		var (
			name  string
			price decimal.Decimal
		)
		if err := rows.Scan(&id, &name, &sku, &price, &image); err != nil {
			return product.Row{}, err
		}
		return product.Row{Kind: kind, ID: id, Fields: product.Values{
			product.FieldName:      name,
			product.FieldSKU:       sku,
			product.FieldListPrice: price,
			product.FieldImage:     image,
		}}, nil
	}

	var (
		templateID           int64
		barcode, defaultCode string
	)
	if err := rows.Scan(&id, &templateID, &sku, &barcode, &defaultCode, &image); err != nil {
		return product.Row{}, err
	}
	return product.Row{Kind: kind, ID: id, TemplateID: templateID, Fields: product.Values{
		product.FieldSKU:         sku,
		product.FieldBarcode:     barcode,
		product.FieldDefaultCode: defaultCode,
		product.FieldImage:       image,
	}}, nil
}

// AddQuantity 为变体追加库存。数量以十进制在应用侧累加后整体写回，避免数据库浮点运算。
func (s *Store) AddQuantity(ctx context.Context, variantID int64, qty decimal.Decimal) error {
	found, err := s.Search(ctx, product.Variant, product.Filter{IDs: []int64{variantID}, Limit: 1})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return errors.New(errors.ErrCodeNotFound, fmt.Sprintf("variant %d not found", variantID))
	}

	current, err := s.Available(ctx, variantID)
	if err != nil {
		return err
	}
	_, err = s.sql(ctx).UpsertInto(stockTable).
		Columns("variant_id", "quantity").
		Values(variantID, current.Add(qty)).
		Key("variant_id").
		Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "upsert "+stockTable)
}

// Available 返回变体当前数量，没有库存记录时为 0
func (s *Store) Available(ctx context.Context, variantID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := s.sql(ctx).Select("quantity").From(stockTable).Where("variant_id = ?", variantID).QueryRow(ctx).Scan(&qty)
	if stderrors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.WrapDatabaseError(ctx, err, "load "+stockTable)
	}
	return qty, nil
}
