package sql

import (
	"context"
	"database/sql"
	"strings"

	core "prodlog/data/db"
	"prodlog/data/db/dialect"
)

type updateBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table     string
	sets      []string
	setArgs   []any
	whereExpr []string
	whereArgs []any
}

func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	if col == "" {
		return b
	}
	mustIdentifier("updateBuilder", "column", col)
	b.sets = append(b.sets, b.dialect.QuoteIdentifier(col)+" = ?")
	b.setArgs = append(b.setArgs, val)
	return b
}

func (b *updateBuilder) SetExpr(expr string, args ...any) IUpdateBuilder {
	if expr == "" {
		return b
	}
	b.sets = append(b.sets, expr)
	b.setArgs = append(b.setArgs, args...)
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	if cond != "" {
		b.whereExpr = append(b.whereExpr, cond)
		b.whereArgs = append(b.whereArgs, args...)
	}
	return b
}

func (b *updateBuilder) WhereIn(col string, vals ...any) IUpdateBuilder {
	return b.Where(inCondition(col, vals), vals...)
}

func (b *updateBuilder) Build() (string, []any) {
	if len(b.sets) == 0 {
		panic("updateBuilder: no columns or expressions to set")
	}
	mustIdentifier("updateBuilder", "table", b.table)

	var sb strings.Builder
	args := make([]any, 0, len(b.setArgs)+len(b.whereArgs))

	sb.WriteString("UPDATE ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(b.sets, ", "))
	args = append(args, b.setArgs...)

	if len(b.whereExpr) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.whereExpr, " AND "))
		args = append(args, b.whereArgs...)
	}

	return sb.String(), args
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
