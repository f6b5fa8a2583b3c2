package sql_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "prodlog/data/db"
	"prodlog/data/db/basic"
	dbsql "prodlog/data/db/sql"
)

// pgStub 只提供方言名，用于检查 postgres 下生成的 SQL
type pgStub struct{ core.IDatabase }

func (pgStub) GetDialectName() string { return "postgres" }

func TestBuilders_Build(t *testing.T) {
	s := dbsql.New(pgStub{})

	t.Run("select", func(t *testing.T) {
		q, args := s.Select("id", "template_id").From("product_product").
			Where("template_id = ?", 3).
			WhereIn("id", 1, 2).
			OrderBy("id").
			Limit(10).
			Build()
		assert.Equal(t, `SELECT id, template_id FROM "product_product" WHERE template_id = ? AND id IN (?, ?) ORDER BY id LIMIT ?`, q)
		assert.Equal(t, []any{3, 1, 2, 10}, args)
	})

	t.Run("空 IN 条件恒假", func(t *testing.T) {
		q, args := s.Select().From("product_product").WhereIn("id").Build()
		assert.Equal(t, `SELECT * FROM "product_product" WHERE 1 = 0`, q)
		assert.Empty(t, args)
	})

	t.Run("insert returning", func(t *testing.T) {
		q, args := s.InsertInto("product_template").
			Columns("name", "product_sku").
			Values("Desk", "D-1").
			Returning("id").
			Build()
		assert.Equal(t, `INSERT INTO "product_template" ("name", "product_sku") VALUES (?, ?) RETURNING id`, q)
		assert.Equal(t, []any{"Desk", "D-1"}, args)
	})

	t.Run("update", func(t *testing.T) {
		q, args := s.Update("stock_quant").
			SetExpr("quantity = quantity + ?", 5).
			Set("variant_id", 7).
			Where("variant_id = ?", 7).
			Build()
		assert.Equal(t, `UPDATE "stock_quant" SET quantity = quantity + ?, "variant_id" = ? WHERE variant_id = ?`, q)
		assert.Equal(t, []any{5, 7, 7}, args)
	})

	t.Run("delete", func(t *testing.T) {
		q, args := s.DeleteFrom("product_operation").Where("operation_timestamp < ?", "x").Build()
		assert.Equal(t, `DELETE FROM "product_operation" WHERE operation_timestamp < ?`, q)
		assert.Equal(t, []any{"x"}, args)
	})

	t.Run("upsert", func(t *testing.T) {
		q, _ := s.UpsertInto("prodlog_checkpoint").
			Columns("name", "last_id").
			Values("relay", 10).
			Key("name").
			Build()
		assert.Equal(t, `INSERT INTO "prodlog_checkpoint" ("name", "last_id") VALUES (?, ?) ON CONFLICT ("name") DO UPDATE SET "last_id" = excluded."last_id"`, q)
	})

	t.Run("不安全的标识符", func(t *testing.T) {
		assert.Panics(t, func() { s.Select().From("t; DROP TABLE x").Build() })
		assert.Panics(t, func() { s.InsertInto("t").Columns("a b").Values(1).Build() })
		assert.Panics(t, func() { s.Update("t").Build() })
	})
}

func TestBuilders_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := basic.New(core.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `CREATE TABLE kv (name TEXT PRIMARY KEY, value INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `CREATE TABLE seq (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT)`)
	require.NoError(t, err)

	s := dbsql.New(db)

	var id int64
	require.NoError(t, s.InsertInto("seq").Columns("label").Values("first").Returning("id").QueryRow(ctx).Scan(&id))
	assert.Equal(t, int64(1), id)

	for _, v := range []int{1, 2} {
		_, err := s.UpsertInto("kv").Columns("name", "value").Values("relay", v).Key("name").Exec(ctx)
		require.NoError(t, err)
	}
	var value int
	require.NoError(t, s.Select("value").From("kv").Where("name = ?", "relay").QueryRow(ctx).Scan(&value))
	assert.Equal(t, 2, value)

	res, err := s.Update("kv").SetExpr("value = value + ?", 3).Where("name = ?", "relay").Exec(ctx)
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)

	res, err = s.DeleteFrom("kv").WhereIn("name", "relay", "other").Exec(ctx)
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	assert.Equal(t, int64(1), n)

	err = s.Select("value").From("kv").Where("name = ?", "relay").QueryRow(ctx).Scan(&value)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
