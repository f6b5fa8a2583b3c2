package capture

import (
	"context"

	"prodlog/product"
)

// Observer 变更观察者，由 Store 在宿主操作成功后回调。
// 任一回调返回错误时，整个变更失败（配置了事务时回滚）。
type Observer interface {
	// OnCreate 在宿主创建成功后调用
	OnCreate(ctx context.Context, kind product.Kind, row product.Row) error
	// OnWrite 在宿主写入成功后调用，rows 为写入后重新加载的行，按批次顺序
	OnWrite(ctx context.Context, kind product.Kind, rows []product.Row, values product.Values) error
	// PrepareUnlink 在宿主删除之前调用，用于捕获删除后无法再读取的信息；
	// 返回的提交函数在删除成功后执行，删除失败时被丢弃。
	PrepareUnlink(ctx context.Context, kind product.Kind, rows []product.Row, scope *CascadeScope) (UnlinkCommit, error)
}

// UnlinkCommit 删除成功后执行的第二阶段
type UnlinkCommit func(ctx context.Context) error
