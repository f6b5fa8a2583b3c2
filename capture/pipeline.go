package capture

import (
	core "prodlog/data/db"
	"prodlog/oplog"
	"prodlog/product"
)

// Pipeline 装配好的捕获组件：装饰后的商品存储、库存适配器与共享的记录器
type Pipeline struct {
	Store    *Store
	Stock    *StockAdapter
	Recorder *Recorder
}

// NewPipeline 以 host 为宿主装配捕获组件。ledger 为 nil 时不包装库存；
// tx 非 nil 时变更与记录在同一工作单元内提交。
func NewPipeline(host product.Store, ledger product.StockLedger, sink oplog.Sink, tx core.ITransactional, opts ...RecorderOption) *Pipeline {
	rec := NewRecorder(host, sink, opts...)
	storeOpts := []Option{WithObserver(rec)}
	if tx != nil {
		storeOpts = append(storeOpts, WithTransactor(tx))
	}
	p := &Pipeline{Store: New(host, storeOpts...), Recorder: rec}
	if ledger != nil {
		p.Stock = NewStockAdapter(ledger, rec, tx)
	}
	return p
}
