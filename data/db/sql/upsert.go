package sql

import (
	"context"
	"database/sql"
	"strings"

	core "prodlog/data/db"
	"prodlog/data/db/dialect"
)

// upsertBuilder 生成 INSERT ... ON CONFLICT (key) DO UPDATE SET col = excluded.col，
// sqlite 与 postgres 语法一致。
type upsertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	values  []any
	keys    []string
}

func (b *upsertBuilder) Columns(cols ...string) IUpsertBuilder {
	b.columns = cols
	return b
}

func (b *upsertBuilder) Values(vals ...any) IUpsertBuilder {
	b.values = vals
	return b
}

func (b *upsertBuilder) Key(cols ...string) IUpsertBuilder {
	b.keys = cols
	return b
}

func (b *upsertBuilder) isKey(col string) bool {
	for _, k := range b.keys {
		if k == col {
			return true
		}
	}
	return false
}

func (b *upsertBuilder) Build() (string, []any) {
	if len(b.keys) == 0 {
		panic("upsertBuilder: Key is required")
	}
	ins := &insertBuilder{
		db:      b.db,
		dialect: b.dialect,
		table:   b.table,
		columns: b.columns,
		rows:    [][]any{b.values},
	}
	q, args := ins.Build()

	keys := make([]string, len(b.keys))
	for i, k := range b.keys {
		mustIdentifier("upsertBuilder", "column", k)
		keys[i] = b.dialect.QuoteIdentifier(k)
	}

	var updates []string
	for _, col := range b.columns {
		if b.isKey(col) {
			continue
		}
		quoted := b.dialect.QuoteIdentifier(col)
		updates = append(updates, quoted+" = excluded."+quoted)
	}

	var sb strings.Builder
	sb.WriteString(q)
	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(keys, ", "))
	if len(updates) == 0 {
		sb.WriteString(") DO NOTHING")
	} else {
		sb.WriteString(") DO UPDATE SET ")
		sb.WriteString(strings.Join(updates, ", "))
	}
	return sb.String(), args
}

func (b *upsertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
