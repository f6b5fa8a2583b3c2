package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "prodlog/data/db"
	"prodlog/data/db/basic"
)

func TestUp_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := basic.New(core.DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	applied, err := Up(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	version, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	for _, table := range []string{"product_template", "product_product", "stock_quant", "product_operation", "prodlog_checkpoint"} {
		var n int
		err := db.QueryRow(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	t.Run("重复执行无变化", func(t *testing.T) {
		applied, err := Up(ctx, db)
		require.NoError(t, err)
		assert.Zero(t, applied)
	})
}

type rawless struct{ core.IDatabase }

func (rawless) Raw() any { return nil }

func TestUp_RequiresSQLDB(t *testing.T) {
	_, err := Up(context.Background(), rawless{})
	assert.Error(t, err)
}
