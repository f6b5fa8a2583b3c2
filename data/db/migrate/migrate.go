// Package migrate 使用 goose 应用内嵌的数据库迁移
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	core "prodlog/data/db"
	"prodlog/data/db/dialect"
	"prodlog/logging"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Up 应用全部未执行的迁移，返回本次应用的迁移数量
func Up(ctx context.Context, db core.IDatabase) (int, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}

	logger := logging.ComponentLogger("migrate")
	for _, r := range results {
		if r.Error != nil {
			return 0, fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)
		}
		logger.Info(ctx, "migration applied",
			logging.Int64("version", r.Source.Version),
			logging.String("file", r.Source.Path),
			logging.Duration("duration", r.Duration),
		)
	}
	if len(results) == 0 {
		logger.Debug(ctx, "all migrations already applied")
	}
	return len(results), nil
}

// Version 返回当前数据库的迁移版本
func Version(ctx context.Context, db core.IDatabase) (int64, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newProvider(db core.IDatabase) (*goose.Provider, error) {
	sqlDB, ok := db.Raw().(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("migrate: requires a *sql.DB connection, got %T", db.Raw())
	}

	var (
		gooseDialect goose.Dialect
		dir          string
	)
	switch dialect.FromDatabase(db).Name() {
	case dialect.NameSQLite:
		gooseDialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	case dialect.NamePostgres:
		gooseDialect, dir = goose.DialectPostgres, "migrations/postgres"
	default:
		return nil, fmt.Errorf("migrate: unsupported dialect")
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(gooseDialect, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("creating goose provider: %w", err)
	}
	return provider, nil
}
