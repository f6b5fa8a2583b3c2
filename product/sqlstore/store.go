// Package sqlstore 基于关系数据库实现 product.Store 与 product.StockLedger
package sqlstore

import (
	"context"
	"fmt"

	core "prodlog/data/db"
	dbsql "prodlog/data/db/sql"
	"prodlog/errors"
	"prodlog/logging"
	"prodlog/product"
)

// Store 宿主商品存储。
//
// 所有语句都经 core.Conn 取连接，ctx 中携带事务时与同一事务内的其他存储共同提交。
type Store struct {
	db     core.IDatabase
	logger logging.Logger
}

// Option 配置项
type Option func(*Store)

// WithLogger 设置日志器
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 创建存储
func New(db core.IDatabase, opts ...Option) *Store {
	s := &Store{db: db, logger: logging.ComponentLogger("product.sqlstore")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ product.Store       = (*Store)(nil)
	_ product.StockLedger = (*Store)(nil)
)

func (s *Store) sql(ctx context.Context) dbsql.ISql {
	return dbsql.New(core.Conn(ctx, s.db))
}

// Create 创建一行。创建变体且未给出 template_id 时，先经 nested 创建父模板，
// 值中属于模板的字段（如 name、list_price）写入父模板。
func (s *Store) Create(ctx context.Context, kind product.Kind, values product.Values, nested product.CreateFunc) (product.Row, error) {
	if nested == nil {
		nested = func(ctx context.Context, kind product.Kind, values product.Values) (product.Row, error) {
			return s.Create(ctx, kind, values, nil)
		}
	}
	switch kind {
	case product.Template:
		id, err := s.insert(ctx, templateTable, templateColumns, values)
		if err != nil {
			return product.Row{}, err
		}
		return s.loadOne(ctx, kind, id)
	case product.Variant:
		return s.createVariant(ctx, values, nested)
	default:
		_, _, err := columnsFor(kind)
		return product.Row{}, err
	}
}

func (s *Store) createVariant(ctx context.Context, values product.Values, nested product.CreateFunc) (product.Row, error) {
	templateID, err := refValue(values[product.FieldTemplateID])
	if err != nil {
		return product.Row{}, errors.WrapError(err, errors.ErrCodeValidation, "invalid template_id")
	}

	own := product.Values{}
	parent := product.Values{}
	for field, v := range values {
		switch {
		case field == product.FieldTemplateID:
		case hasColumn(variantColumns, field):
			own[field] = v
		case hasColumn(templateColumns, field):
			parent[field] = v
		default:
			return product.Row{}, unknownField(product.Variant, field)
		}
	}

	if templateID == 0 {
		tmpl, err := nested(ctx, product.Template, parent)
		if err != nil {
			return product.Row{}, err
		}
		templateID = tmpl.ID
		s.logger.Debug(ctx, "created implicit parent template", logging.Int64("template_id", templateID))
	} else {
		if len(parent) > 0 {
			return product.Row{}, errors.New(errors.ErrCodeValidation,
				fmt.Sprintf("template fields %v given for variant of existing template %d", parent.Fields(), templateID))
		}
		found, err := s.Search(ctx, product.Template, product.Filter{IDs: []int64{templateID}, Limit: 1})
		if err != nil {
			return product.Row{}, err
		}
		if len(found) == 0 {
			return product.Row{}, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("template %d not found", templateID))
		}
	}

	own[product.FieldTemplateID] = templateID
	id, err := s.insert(ctx, variantTable, variantColumns, own)
	if err != nil {
		return product.Row{}, err
	}
	return s.loadOne(ctx, product.Variant, id)
}

func (s *Store) insert(ctx context.Context, table string, cols columnSet, values product.Values) (int64, error) {
	ins := s.sql(ctx).InsertInto(table)
	names := values.Fields()
	args := make([]any, 0, len(names))
	for _, field := range names {
		kind, ok := cols[field]
		if !ok {
			return 0, errors.New(errors.ErrCodeValidation, fmt.Sprintf("%s has no field %s", table, field))
		}
		v, err := kind.convert(field, values[field])
		if err != nil {
			return 0, err
		}
		args = append(args, v)
	}
	if len(names) == 0 {
		// 至少写入一列，避免空的 INSERT
		names = []string{"product_sku"}
		args = []any{""}
	}

	var id int64
	err := ins.Columns(names...).Values(args...).Returning("id").QueryRow(ctx).Scan(&id)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "insert "+table)
	}
	return id, nil
}

// Write 更新 ids 对应行的字段。值为空时不访问数据库。template_id 不可修改。
func (s *Store) Write(ctx context.Context, kind product.Kind, ids []int64, values product.Values) (bool, error) {
	table, cols, err := columnsFor(kind)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 || len(values) == 0 {
		return true, nil
	}

	upd := s.sql(ctx).Update(table)
	for _, field := range values.Fields() {
		ck, ok := cols[field]
		if !ok || field == product.FieldTemplateID {
			return false, unknownField(kind, field)
		}
		v, err := ck.convert(field, values[field])
		if err != nil {
			return false, err
		}
		upd.Set(field, v)
	}
	res, err := upd.WhereIn("id", anyIDs(ids)...).Exec(ctx)
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "update "+table)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Unlink 删除行。
//
// 删除变体后，若某模板已无剩余变体，经 nested 删除该模板；
// 直接删除模板时其变体与库存一并删除，不逐个经过 nested。
func (s *Store) Unlink(ctx context.Context, kind product.Kind, ids []int64, nested product.UnlinkFunc) (bool, error) {
	if _, _, err := columnsFor(kind); err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return true, nil
	}
	if nested == nil {
		nested = func(ctx context.Context, kind product.Kind, ids []int64) (bool, error) {
			return s.Unlink(ctx, kind, ids, nil)
		}
	}
	if kind == product.Template {
		return s.unlinkTemplates(ctx, ids)
	}

	rows, err := s.Load(ctx, product.Variant, ids)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	var (
		templates []int64
		seen      = map[int64]bool{}
		present   = make([]int64, 0, len(rows))
	)
	for _, r := range rows {
		present = append(present, r.ID)
		if !seen[r.TemplateID] {
			seen[r.TemplateID] = true
			templates = append(templates, r.TemplateID)
		}
	}
	if err := s.deleteVariants(ctx, present); err != nil {
		return false, err
	}

	for _, tid := range templates {
		remaining, err := s.Search(ctx, product.Variant, product.Filter{TemplateID: tid, Limit: 1})
		if err != nil {
			return false, err
		}
		if len(remaining) > 0 {
			continue
		}
		s.logger.Debug(ctx, "last variant removed, unlinking template", logging.Int64("template_id", tid))
		if _, err := nested(ctx, product.Template, []int64{tid}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) unlinkTemplates(ctx context.Context, ids []int64) (bool, error) {
	var variants []int64
	for _, tid := range ids {
		vids, err := s.Search(ctx, product.Variant, product.Filter{TemplateID: tid})
		if err != nil {
			return false, err
		}
		variants = append(variants, vids...)
	}
	if len(variants) > 0 {
		if err := s.deleteVariants(ctx, variants); err != nil {
			return false, err
		}
	}
	res, err := s.sql(ctx).DeleteFrom(templateTable).WhereIn("id", anyIDs(ids)...).Exec(ctx)
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "delete "+templateTable)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) deleteVariants(ctx context.Context, ids []int64) error {
	args := anyIDs(ids)
	if _, err := s.sql(ctx).DeleteFrom(stockTable).WhereIn("variant_id", args...).Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete "+stockTable)
	}
	if _, err := s.sql(ctx).DeleteFrom(variantTable).WhereIn("id", args...).Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete "+variantTable)
	}
	return nil
}

// Search 按 id 升序返回匹配的行 id。模板种类下 TemplateID 条件匹配模板自身 id。
func (s *Store) Search(ctx context.Context, kind product.Kind, filter product.Filter) ([]int64, error) {
	table, _, err := columnsFor(kind)
	if err != nil {
		return nil, err
	}
	q := s.sql(ctx).Select("id").From(table).OrderBy("id")
	if filter.IDs != nil {
		q.WhereIn("id", anyIDs(filter.IDs)...)
	}
	if filter.TemplateID != 0 {
		if kind == product.Variant {
			q.Where("template_id = ?", filter.TemplateID)
		} else {
			q.Where("id = ?", filter.TemplateID)
		}
	}
	if len(filter.ExcludeIDs) > 0 {
		q.Where("id NOT IN ("+placeholders(len(filter.ExcludeIDs))+")", anyIDs(filter.ExcludeIDs)...)
	}
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}

	rows, err := q.Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "search "+table)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan "+table)
		}
		ids = append(ids, id)
	}
	return ids, errors.WrapDatabaseError(ctx, rows.Err(), "search "+table)
}

// Load 按 ids 的顺序加载行
func (s *Store) Load(ctx context.Context, kind product.Kind, ids []int64) ([]product.Row, error) {
	table, _, err := columnsFor(kind)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.sql(ctx).Select(selectColumns(kind)...).From(table).WhereIn("id", anyIDs(ids)...).Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "load "+table)
	}
	defer rows.Close()

	byID := make(map[int64]product.Row, len(ids))
	for rows.Next() {
		r, err := scanRow(kind, rows)
		if err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan "+table)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "load "+table)
	}

	out := make([]product.Row, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) loadOne(ctx context.Context, kind product.Kind, id int64) (product.Row, error) {
	rows, err := s.Load(ctx, kind, []int64{id})
	if err != nil {
		return product.Row{}, err
	}
	if len(rows) == 0 {
		return product.Row{}, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("%s %d not found", kind, id))
	}
	return rows[0], nil
}

func hasColumn(cols columnSet, field string) bool {
	_, ok := cols[field]
	return ok
}

func unknownField(kind product.Kind, field string) error {
	return errors.New(errors.ErrCodeValidation, fmt.Sprintf("%s: field %s is not writable", kind, field))
}
