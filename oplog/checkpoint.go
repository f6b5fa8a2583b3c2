package oplog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"time"

	core "prodlog/data/db"
	dbsql "prodlog/data/db/sql"
	"prodlog/errors"
)

// CheckpointStore 保存中继已发布到的最后记录 id
type CheckpointStore interface {
	// Load 返回 name 对应的位置，不存在时为 0
	Load(ctx context.Context, name string) (int64, error)
	Save(ctx context.Context, name string, lastID int64) error
}

// SQLCheckpointStore 基于 prodlog_checkpoint 表的检查点，保存为 UPSERT，幂等
type SQLCheckpointStore struct {
	db    core.IDatabase
	table string
}

// NewSQLCheckpointStore 创建检查点存储；table 为空时使用 prodlog_checkpoint
func NewSQLCheckpointStore(db core.IDatabase, table string) *SQLCheckpointStore {
	if table == "" {
		table = "prodlog_checkpoint"
	}
	return &SQLCheckpointStore{db: db, table: table}
}

// Load 实现 CheckpointStore
func (s *SQLCheckpointStore) Load(ctx context.Context, name string) (int64, error) {
	var lastID int64
	err := dbsql.New(core.Conn(ctx, s.db)).Select("last_id").From(s.table).
		Where("name = ?", name).
		QueryRow(ctx).
		Scan(&lastID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "load checkpoint")
	}
	return lastID, nil
}

// Save 实现 CheckpointStore
func (s *SQLCheckpointStore) Save(ctx context.Context, name string, lastID int64) error {
	_, err := dbsql.New(core.Conn(ctx, s.db)).UpsertInto(s.table).
		Columns("name", "last_id", "updated_at").
		Values(name, lastID, time.Now().UTC()).
		Key("name").
		Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "save checkpoint")
}

// MemoryCheckpointStore 内存检查点
type MemoryCheckpointStore struct {
	mu        sync.Mutex
	positions map[string]int64
}

// NewMemoryCheckpointStore 创建内存检查点
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{positions: make(map[string]int64)}
}

// Load 实现 CheckpointStore
func (m *MemoryCheckpointStore) Load(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[name], nil
}

// Save 实现 CheckpointStore
func (m *MemoryCheckpointStore) Save(_ context.Context, name string, lastID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[name] = lastID
	return nil
}
