package capture

import (
	"context"

	core "prodlog/data/db"
	"prodlog/logging"
	"prodlog/product"
)

// Store 在 product.Store 外层调用观察者的装饰器。
//
// 宿主操作的结果与错误原样返回。配置 WithTransactor 后，每个顶层变更及其观察者回调
// 在同一个工作单元内执行；宿主内部的嵌套创建/级联删除经由装饰器重新进入，复用同一事务。
type Store struct {
	inner     product.Store
	observers []Observer
	tx        core.ITransactional
	logger    logging.Logger
}

// Option 装饰器选项
type Option func(*Store)

// WithObserver 注册观察者，按注册顺序回调
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithTransactor 设置工作单元
func WithTransactor(tx core.ITransactional) Option {
	return func(s *Store) { s.tx = tx }
}

// WithLogger 设置日志器
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 包装宿主存储
func New(inner product.Store, opts ...Option) *Store {
	s := &Store{inner: inner, logger: logging.ComponentLogger("capture.store")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ product.Store = (*Store)(nil)

// Inner 返回被包装的宿主存储
func (s *Store) Inner() product.Store { return s.inner }

func (s *Store) unit(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.InTx(ctx, fn)
}

// Create 实现 product.Store。nested 被忽略：宿主的嵌套创建总是经由装饰器自身。
func (s *Store) Create(ctx context.Context, kind product.Kind, values product.Values, _ product.CreateFunc) (product.Row, error) {
	var row product.Row
	err := s.unit(ctx, func(ctx context.Context) error {
		var err error
		row, err = s.create(ctx, kind, values)
		return err
	})
	if err != nil {
		return product.Row{}, err
	}
	return row, nil
}

func (s *Store) create(ctx context.Context, kind product.Kind, values product.Values) (product.Row, error) {
	row, err := s.inner.Create(ctx, kind, values, s.create)
	if err != nil {
		return product.Row{}, err
	}
	for _, o := range s.observers {
		if err := o.OnCreate(ctx, kind, row); err != nil {
			return product.Row{}, err
		}
	}
	return row, nil
}

// Write 实现 product.Store。值为空时只调用宿主；重复 id 只计一次。
func (s *Store) Write(ctx context.Context, kind product.Kind, ids []int64, values product.Values) (bool, error) {
	ids = uniqueIDs(ids)
	if len(values) == 0 || len(ids) == 0 {
		return s.inner.Write(ctx, kind, ids, values)
	}
	var ok bool
	err := s.unit(ctx, func(ctx context.Context) error {
		var err error
		if ok, err = s.inner.Write(ctx, kind, ids, values); err != nil {
			return err
		}
		rows, err := s.inner.Load(ctx, kind, ids)
		if err != nil {
			return err
		}
		for _, o := range s.observers {
			if err := o.OnWrite(ctx, kind, rows, values); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Unlink 实现 product.Store。每次顶层调用使用新的级联作用域；nested 被忽略。
func (s *Store) Unlink(ctx context.Context, kind product.Kind, ids []int64, _ product.UnlinkFunc) (bool, error) {
	var ok bool
	scope := NewCascadeScope()
	err := s.unit(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.unlink(ctx, kind, ids, scope)
		return err
	})
	if err != nil {
		return false, err
	}
	if marked := scope.Templates(); len(marked) > 0 {
		s.logger.Debug(ctx, "template deletions folded into variant unlink", logging.Any("templates", marked))
	}
	return ok, nil
}

func (s *Store) unlink(ctx context.Context, kind product.Kind, ids []int64, scope *CascadeScope) (bool, error) {
	ids = uniqueIDs(ids)
	rows, err := s.inner.Load(ctx, kind, ids)
	if err != nil {
		return false, err
	}

	commits := make([]UnlinkCommit, 0, len(s.observers))
	for _, o := range s.observers {
		commit, err := o.PrepareUnlink(ctx, kind, rows, scope)
		if err != nil {
			return false, err
		}
		if commit != nil {
			commits = append(commits, commit)
		}
	}

	nested := func(ctx context.Context, kind product.Kind, ids []int64) (bool, error) {
		return s.unlink(ctx, kind, ids, scope)
	}
	ok, err := s.inner.Unlink(ctx, kind, ids, nested)
	if err != nil {
		return false, err
	}
	for _, commit := range commits {
		if err := commit(ctx); err != nil {
			return false, err
		}
	}
	return ok, nil
}

// Search 直接委托宿主
func (s *Store) Search(ctx context.Context, kind product.Kind, filter product.Filter) ([]int64, error) {
	return s.inner.Search(ctx, kind, filter)
}

// Load 直接委托宿主
func (s *Store) Load(ctx context.Context, kind product.Kind, ids []int64) ([]product.Row, error) {
	return s.inner.Load(ctx, kind, ids)
}

// uniqueIDs 按首次出现的顺序去重
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
