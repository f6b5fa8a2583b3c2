// Package capture 拦截宿主对商品模板与变体的变更，为每个逻辑变更产生一条操作记录。
//
// Store 是 product.Store 的装饰器，在构造时注册 Observer；Recorder 是把变更
// 转换为 oplog.Record 并写入 oplog.Sink 的观察者。
package capture

import (
	"context"
	"fmt"
	"time"

	"prodlog/cache"
	"prodlog/errors"
	"prodlog/oplog"
	"prodlog/product"
)

// Resolver 将已加载的行解析为逻辑键
type Resolver struct {
	store     product.Store
	templates *cache.Cache[int64, int64]
}

// NewResolver 创建解析器。store 用于只持有变体 id 时查询所属模板，
// 变体的模板归属不会改变，查询结果缓存在 LRU 中。
func NewResolver(store product.Store, cacheSize int) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	return &Resolver{
		store: store,
		templates: cache.New[int64, int64](cache.Config{
			Name:    "variant_template",
			MaxSize: cacheSize,
			TTL:     time.Hour,
		}),
	}
}

// Resolve 模板行的 record_id 与 template_id 均为行 id；
// 变体行读取已加载的 TemplateID，不再访问存储。
func (r *Resolver) Resolve(kind product.Kind, row product.Row) (oplog.Key, error) {
	switch kind {
	case product.Template:
		if row.ID <= 0 {
			return oplog.Key{}, keyError(kind, row, "missing id")
		}
		return oplog.Key{ModelName: oplog.ModelTemplate, RecordID: row.ID, TemplateID: row.ID}, nil
	case product.Variant:
		if row.ID <= 0 {
			return oplog.Key{}, keyError(kind, row, "missing id")
		}
		if row.TemplateID <= 0 {
			return oplog.Key{}, keyError(kind, row, "variant has no template")
		}
		r.templates.Set(row.ID, row.TemplateID)
		return oplog.Key{ModelName: oplog.ModelVariant, RecordID: row.ID, TemplateID: row.TemplateID}, nil
	default:
		return oplog.Key{}, keyError(kind, row, "unknown kind")
	}
}

// TemplateOf 返回变体所属模板 id
func (r *Resolver) TemplateOf(ctx context.Context, variantID int64) (int64, error) {
	return r.templates.GetOrLoad(ctx, variantID, func(ctx context.Context, id int64) (int64, error) {
		rows, err := r.store.Load(ctx, product.Variant, []int64{id})
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, errors.NewError(errors.ErrCodeKeyResolution, fmt.Sprintf("variant %d not found", id))
		}
		if rows[0].TemplateID <= 0 {
			return 0, keyError(product.Variant, rows[0], "variant has no template")
		}
		return rows[0].TemplateID, nil
	})
}

// Forget 丢弃变体的缓存项（变体删除后调用）
func (r *Resolver) Forget(variantID int64) {
	r.templates.Delete(variantID)
}

func keyError(kind product.Kind, row product.Row, reason string) error {
	return errors.NewError(errors.ErrCodeKeyResolution,
		fmt.Sprintf("cannot resolve key for %s(%d): %s", kind, row.ID, reason)).
		WithContext("template_id", row.TemplateID)
}
