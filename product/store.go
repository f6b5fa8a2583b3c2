package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// CreateFunc 宿主在内部需要创建其他行（例如变体的隐式父模板）时调用的入口
type CreateFunc func(ctx context.Context, kind Kind, values Values) (Row, error)

// UnlinkFunc 宿主在级联删除（最后一个变体删除后删除模板）时调用的入口
type UnlinkFunc func(ctx context.Context, kind Kind, ids []int64) (bool, error)

// Store 宿主持久化层。
//
// Create 与 Unlink 接收 nested 回调：宿主内部触发的嵌套创建/删除必须经由 nested
// 发出，这样包装在外层的观察者可以看到并协调这些调用；nested 为 nil 时宿主调用自身。
type Store interface {
	Create(ctx context.Context, kind Kind, values Values, nested CreateFunc) (Row, error)
	Write(ctx context.Context, kind Kind, ids []int64, values Values) (bool, error)
	Unlink(ctx context.Context, kind Kind, ids []int64, nested UnlinkFunc) (bool, error)
	Search(ctx context.Context, kind Kind, filter Filter) ([]int64, error)
	// Load 按 ids 的顺序返回存在的行，不存在的 id 被跳过
	Load(ctx context.Context, kind Kind, ids []int64) ([]Row, error)
}

// StockLedger 变体库存台账
type StockLedger interface {
	// AddQuantity 为变体追加一笔库存数量（可为负）
	AddQuantity(ctx context.Context, variantID int64, qty decimal.Decimal) error
	// Available 返回变体当前可用数量
	Available(ctx context.Context, variantID int64) (decimal.Decimal, error)
}
