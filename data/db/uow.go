package db

import (
	"context"
	"fmt"

	"prodlog/errors"
)

type txKey struct{}

// ITransactional 支持在一个工作单元内执行回调的组件
type ITransactional interface {
	// InTx 在事务中执行 fn；fn 返回错误时回滚
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Transactor 事务上下文工作单元。
//
// 事务通过 context 传递：同一调用链上的所有存储（宿主表、操作日志表）
// 经 Conn 取得同一个事务，因而共同提交或共同回滚。
// InTx 可重入：ctx 中已有事务时直接复用，不开启嵌套事务。
type Transactor struct {
	db IDatabase
}

// NewTransactor 创建工作单元
func NewTransactor(db IDatabase) *Transactor {
	return &Transactor{db: db}
}

// InTx 实现 ITransactional
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = errors.WrapDatabaseError(ctx, cerr, "commit transaction")
		}
	}()

	return fn(WithTx(ctx, tx))
}

// WithTx 将事务放入 context
func WithTx(ctx context.Context, tx ITransaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom 取出 context 中的事务
func TxFrom(ctx context.Context) (ITransaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(ITransaction)
	return tx, ok && tx != nil
}

// Conn 返回当前应使用的连接：context 中有事务时返回事务，否则返回 fallback
func Conn(ctx context.Context, fallback IDatabase) IDatabase {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return fallback
}

// MustConn 与 Conn 相同，但 fallback 为空且无事务时返回错误
func MustConn(ctx context.Context, fallback IDatabase) (IDatabase, error) {
	conn := Conn(ctx, fallback)
	if conn == nil {
		return nil, fmt.Errorf("db: no connection available in context or fallback")
	}
	return conn, nil
}
