package basic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "prodlog/data/db"
)

func TestNew(t *testing.T) {
	t.Run("sqlite 内存库", func(t *testing.T) {
		db, err := New(core.DBConfig{Driver: "sqlite3"})
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, "sqlite", db.GetDialectName())
		assert.NotNil(t, db.SQLDB())
		assert.NoError(t, db.Ping(context.Background()))
	})

	t.Run("不支持的驱动", func(t *testing.T) {
		_, err := New(core.DBConfig{Driver: "oracle"})
		assert.Error(t, err)
	})
}

func TestDriverName(t *testing.T) {
	for in, want := range map[string]string{"": "sqlite", "SQLite": "sqlite", "postgres": "pgx", "pgx": "pgx"} {
		got, err := driverName(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestDB_QueryAndTx(t *testing.T) {
	ctx := context.Background()
	db, err := New(core.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `CREATE TABLE variant (id INTEGER PRIMARY KEY, barcode TEXT)`)
	require.NoError(t, err)

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO variant (id, barcode) VALUES (?, ?), (?, ?)`, 1, "111", 2, "222")
	require.NoError(t, err)

	_, err = tx.Begin(ctx)
	assert.Error(t, err, "不支持嵌套事务")
	assert.Equal(t, "sqlite", tx.(*Tx).GetDialectName())
	require.NoError(t, tx.Commit())

	rows, err := db.Query(ctx, `SELECT id, barcode FROM variant ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "barcode"}, cols)

	var barcodes []string
	for rows.Next() {
		var (
			id      int64
			barcode string
		)
		require.NoError(t, rows.Scan(&id, &barcode))
		barcodes = append(barcodes, barcode)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"111", "222"}, barcodes)

	row := db.QueryRow(ctx, `SELECT barcode FROM variant WHERE id = ?`, 99)
	var missing string
	assert.Error(t, row.Scan(&missing))
}

func TestTx_Rollback(t *testing.T) {
	ctx := context.Background()
	db, err := New(core.DBConfig{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO t (id) VALUES (?)`, 1)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var n int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 0, n)
}
