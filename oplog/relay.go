package oplog

import (
	"context"
	"time"

	"prodlog/errors"
	"prodlog/logging"
	"prodlog/messaging"
	"prodlog/patterns/retry"
)

// RecordSource 按 id 顺序读取记录
type RecordSource interface {
	ListSince(ctx context.Context, afterID int64, limit int) ([]Record, error)
}

// RelayObserver 中继进度回调（指标）
type RelayObserver interface {
	Published(rec Record)
	Checkpointed(name string, lastID int64)
	PublishFailed(rec Record)
}

// RelayConfig 中继配置
type RelayConfig struct {
	// Name 检查点名称，多个中继实例发布到不同目的地时区分位置
	Name string
	// Interval 轮询间隔
	Interval time.Duration
	// BatchSize 每轮最多发布的记录数
	BatchSize int
	// SettleDelay 比这更新的记录暂不发布。
	// 记录 id 在事务提交前分配，晚提交的小 id 记录需要时间变为可见。
	// 窗口按记录时间戳而非提交时间计算：写入记录后事务保持打开超过 SettleDelay，
	// 提交的记录可能落在检查点之前而不被发布。SettleDelay 应大于最长事务时长。
	SettleDelay time.Duration
	// Retry 单条记录发布失败时的重试；MaxAttempts 为 0 时不重试
	Retry retry.Config
}

// DefaultRelayConfig 默认配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Name:        "default",
		Interval:    time.Second,
		BatchSize:   100,
		SettleDelay: 2 * time.Second,
		Retry:       retry.DefaultConfig(),
	}
}

// Relay 轮询操作记录并按 id 顺序发布到传输层，发布进度保存在检查点中。
// 投递语义为至少一次：发布成功但检查点未保存时，重启后会重复发布。
type Relay struct {
	source      RecordSource
	checkpoints CheckpointStore
	transport   messaging.Transport
	cfg         RelayConfig
	log         logging.Logger
	observer    RelayObserver
	now         func() time.Time
}

// RelayOption 中继选项
type RelayOption func(*Relay)

// WithRelayLogger 设置日志器
func WithRelayLogger(l logging.Logger) RelayOption {
	return func(r *Relay) { r.log = l }
}

// WithRelayObserver 设置进度回调
func WithRelayObserver(o RelayObserver) RelayOption {
	return func(r *Relay) { r.observer = o }
}

// WithRelayClock 替换时间来源（测试用）
func WithRelayClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

// NewRelay 创建中继
func NewRelay(source RecordSource, checkpoints CheckpointStore, transport messaging.Transport, cfg RelayConfig, opts ...RelayOption) *Relay {
	def := DefaultRelayConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	r := &Relay{
		source:      source,
		checkpoints: checkpoints,
		transport:   transport,
		cfg:         cfg,
		log:         logging.ComponentLogger("oplog.relay"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 按间隔轮询直到 ctx 结束。一轮发满一批时立即进行下一轮。
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info(ctx, "relay started",
		logging.String("name", r.cfg.Name),
		logging.Duration("interval", r.cfg.Interval),
		logging.Duration("settle_delay", r.cfg.SettleDelay))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Error(ctx, "relay round failed", logging.Error(err))
		}
		if err == nil && n == r.cfg.BatchSize {
			continue
		}
		select {
		case <-ctx.Done():
			r.log.Info(ctx, "relay stopped", logging.String("name", r.cfg.Name))
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce 发布一批记录，返回发布数量
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	last, err := r.checkpoints.Load(ctx, r.cfg.Name)
	if err != nil {
		return 0, err
	}
	recs, err := r.source.ListSince(ctx, last, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.cfg.SettleDelay)
	published := 0
	var publishErr error
	for _, rec := range recs {
		if r.cfg.SettleDelay > 0 && rec.Timestamp.After(cutoff) {
			break
		}
		var msg *messaging.Message
		err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context, attempt int) error {
			if msg == nil {
				m, err := NewMessage(rec)
				if err != nil {
					return retry.Permanent(err)
				}
				msg = m
			}
			err := r.transport.Publish(ctx, msg)
			if err != nil && attempt < r.cfg.Retry.MaxAttempts {
				r.log.Warn(ctx, "publish failed, retrying",
					logging.Int64("id", rec.ID),
					logging.Int("attempt", attempt),
					logging.Error(err))
			}
			return err
		})
		if err != nil {
			if r.observer != nil {
				r.observer.PublishFailed(rec)
			}
			publishErr = errors.Wrap(ctx, err, errors.ErrCodeQueue, "publish operation record")
			break
		}
		last = rec.ID
		published++
		if r.observer != nil {
			r.observer.Published(rec)
		}
		r.log.Debug(ctx, "operation record published",
			logging.Int64("id", rec.ID),
			logging.String("type", msg.GetType()),
			logging.Int64("template_id", rec.TemplateID))
	}

	if published > 0 {
		if err := r.checkpoints.Save(ctx, r.cfg.Name, last); err != nil {
			return published, err
		}
		if r.observer != nil {
			r.observer.Checkpointed(r.cfg.Name, last)
		}
	}
	return published, publishErr
}
