// Package dbtest 为测试提供已迁移的内存 sqlite 数据库
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	core "prodlog/data/db"
	"prodlog/data/db/basic"
	"prodlog/data/db/migrate"
)

// Open 打开一个全新的内存库并应用全部迁移，测试结束时关闭
func Open(t testing.TB) *basic.DB {
	t.Helper()
	db, err := basic.New(core.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = migrate.Up(context.Background(), db)
	require.NoError(t, err)
	return db
}

// Count 返回表的行数
func Count(t testing.TB, db core.IDatabase, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
