package oplog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"prodlog/codegen/snowflake"
	core "prodlog/data/db"
	dbsql "prodlog/data/db/sql"
	"prodlog/errors"
	"prodlog/logging"
)

const (
	defaultRecordTable = "product_operation"
	defaultPurgeBatch  = 1000
)

var recordColumns = []string{
	"id", "model_name", "record_id", "template_id", "record_operation", "operation_data", "operation_timestamp",
}

// IDGenerator 记录 id 生成器
type IDGenerator interface {
	NextID() (int64, error)
}

type defaultIDs struct{}

func (defaultIDs) NextID() (int64, error) { return snowflake.NextID() }

// SQLStore 将操作记录保存在 product_operation 表中。
//
// Append 经 core.Conn 使用 ctx 中的事务，记录与宿主变更共同提交；
// 记录只追加不更新，除保留期清理外不会删除。
type SQLStore struct {
	db     core.IDatabase
	table  string
	ids    IDGenerator
	logger logging.Logger
}

// SQLStoreOption 配置项
type SQLStoreOption func(*SQLStore)

// WithIDGenerator 替换 id 生成器，默认使用全局雪花生成器
func WithIDGenerator(g IDGenerator) SQLStoreOption {
	return func(s *SQLStore) { s.ids = g }
}

// WithTable 替换表名
func WithTable(name string) SQLStoreOption {
	return func(s *SQLStore) { s.table = name }
}

// WithStoreLogger 设置日志器
func WithStoreLogger(l logging.Logger) SQLStoreOption {
	return func(s *SQLStore) { s.logger = l }
}

// NewSQLStore 创建 SQL 记录存储
func NewSQLStore(db core.IDatabase, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{
		db:     db,
		table:  defaultRecordTable,
		ids:    defaultIDs{},
		logger: logging.ComponentLogger("oplog.sqlstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Sink = (*SQLStore)(nil)

// Append 实现 Sink
func (s *SQLStore) Append(ctx context.Context, rec Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	data, err := EncodePayload(rec.Payload)
	if err != nil {
		return 0, err
	}
	id, err := s.ids.NextID()
	if err != nil {
		return 0, errors.Wrap(ctx, err, errors.ErrCodeInternal, "allocate record id")
	}

	var payload any
	if data != nil {
		payload = string(data)
	}
	_, err = dbsql.New(core.Conn(ctx, s.db)).InsertInto(s.table).
		Columns(recordColumns...).
		Values(id, string(rec.ModelName), rec.RecordID, rec.TemplateID, string(rec.OperationType), payload, rec.Timestamp.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "append operation record")
	}
	return id, nil
}

// Get 按 id 读取记录
func (s *SQLStore) Get(ctx context.Context, id int64) (Record, error) {
	recs, err := s.query(ctx, dbsql.New(core.Conn(ctx, s.db)).Select(recordColumns...).From(s.table).Where("id = ?", id))
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("operation record %d not found", id))
	}
	return recs[0], nil
}

// ListSince 按 id 升序返回 id 大于 afterID 的记录，最多 limit 条（<=0 不限）
func (s *SQLStore) ListSince(ctx context.Context, afterID int64, limit int) ([]Record, error) {
	q := dbsql.New(core.Conn(ctx, s.db)).Select(recordColumns...).From(s.table).
		Where("id > ?", afterID).
		OrderBy("id ASC")
	if limit > 0 {
		q.Limit(limit)
	}
	return s.query(ctx, q)
}

// ListByTemplate 按 id 升序返回某模板下的全部记录
func (s *SQLStore) ListByTemplate(ctx context.Context, templateID int64) ([]Record, error) {
	return s.query(ctx, dbsql.New(core.Conn(ctx, s.db)).Select(recordColumns...).From(s.table).
		Where("template_id = ?", templateID).
		OrderBy("id ASC"))
}

// PurgeOlderThan 分批删除早于 cutoff 的记录，返回删除总数
func (s *SQLStore) PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultPurgeBatch
	}
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (SELECT id FROM %s WHERE operation_timestamp < ? ORDER BY id LIMIT ?)",
		s.table, s.table)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := core.Conn(ctx, s.db).Exec(ctx, query, cutoff.UTC(), batchSize)
		if err != nil {
			return total, errors.WrapDatabaseError(ctx, err, "purge operation records")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, errors.WrapDatabaseError(ctx, err, "purge operation records")
		}
		total += n
		if n < int64(batchSize) {
			break
		}
	}
	if total > 0 {
		s.logger.Info(ctx, "purged operation records",
			logging.Int64("deleted", total),
			logging.String("cutoff", cutoff.UTC().Format(time.RFC3339)))
	}
	return total, nil
}

func (s *SQLStore) query(ctx context.Context, q dbsql.ISelectBuilder) ([]Record, error) {
	rows, err := q.Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "query operation records")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			model, op string
			data      sql.NullString
			ts        core.Time
		)
		if err := rows.Scan(&rec.ID, &model, &rec.RecordID, &rec.TemplateID, &op, &data, &ts); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan operation record")
		}
		rec.ModelName = ModelName(model)
		rec.OperationType = OperationType(op)
		rec.Timestamp = ts.Time
		if data.Valid {
			if rec.Payload, err = DecodePayload([]byte(data.String)); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "query operation records")
	}
	return out, nil
}
