package capture

import (
	"context"

	"github.com/shopspring/decimal"

	core "prodlog/data/db"
	"prodlog/product"
)

// StockAdapter 包装库存台账：数量变化不经过商品写入，
// 这里在每次成功追加后补发一条变体 write 记录，载荷只含 qty_available。
type StockAdapter struct {
	inner    product.StockLedger
	recorder *Recorder
	tx       core.ITransactional
}

// NewStockAdapter 创建适配器；tx 为 nil 时不开启工作单元
func NewStockAdapter(inner product.StockLedger, recorder *Recorder, tx core.ITransactional) *StockAdapter {
	return &StockAdapter{inner: inner, recorder: recorder, tx: tx}
}

var _ product.StockLedger = (*StockAdapter)(nil)

// AddQuantity 实现 product.StockLedger。宿主失败时不产生记录，错误原样返回。
func (a *StockAdapter) AddQuantity(ctx context.Context, variantID int64, qty decimal.Decimal) error {
	fn := func(ctx context.Context) error {
		if err := a.inner.AddQuantity(ctx, variantID, qty); err != nil {
			return err
		}
		available, err := a.inner.Available(ctx, variantID)
		if err != nil {
			return err
		}
		return a.recorder.RecordQuantity(ctx, variantID, available)
	}
	if a.tx == nil {
		return fn(ctx)
	}
	return a.tx.InTx(ctx, fn)
}

// Available 直接委托宿主
func (a *StockAdapter) Available(ctx context.Context, variantID int64) (decimal.Decimal, error) {
	return a.inner.Available(ctx, variantID)
}
