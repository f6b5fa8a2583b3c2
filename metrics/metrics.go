// Package metrics 定义操作日志的 Prometheus 指标。
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"prodlog/errors"
	"prodlog/oplog"
)

// Collectors 一组操作日志指标
type Collectors struct {
	RecordsEmitted  *prometheus.CounterVec
	EmitFailures    *prometheus.CounterVec
	RecordsRelayed  *prometheus.CounterVec
	RelayFailures   *prometheus.CounterVec
	RelayCheckpoint *prometheus.GaugeVec
	RecordsPurged   prometheus.Counter
}

// New 创建指标并注册到 reg；reg 为 nil 时不注册
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		RecordsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodlog_records_emitted_total",
				Help: "Operation records appended to the sink",
			},
			[]string{"model", "operation"},
		),
		EmitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodlog_emit_failures_total",
				Help: "Operation records the sink refused",
			},
			[]string{"model", "operation", "code"},
		),
		RecordsRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodlog_records_relayed_total",
				Help: "Operation records published by the relay",
			},
			[]string{"model", "operation"},
		),
		RelayFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prodlog_relay_failures_total",
				Help: "Failed relay publish attempts",
			},
			[]string{"model", "operation"},
		),
		RelayCheckpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prodlog_relay_checkpoint",
				Help: "Last operation record id published per relay",
			},
			[]string{"relay"},
		),
		RecordsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prodlog_records_purged_total",
				Help: "Operation records removed by retention",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			c.RecordsEmitted, c.EmitFailures,
			c.RecordsRelayed, c.RelayFailures, c.RelayCheckpoint,
			c.RecordsPurged,
		)
	}
	return c
}

var _ oplog.RelayObserver = (*Collectors)(nil)

// Published 实现 oplog.RelayObserver
func (c *Collectors) Published(rec oplog.Record) {
	c.RecordsRelayed.WithLabelValues(string(rec.ModelName), string(rec.OperationType)).Inc()
}

// PublishFailed 实现 oplog.RelayObserver
func (c *Collectors) PublishFailed(rec oplog.Record) {
	c.RelayFailures.WithLabelValues(string(rec.ModelName), string(rec.OperationType)).Inc()
}

// Checkpointed 实现 oplog.RelayObserver
func (c *Collectors) Checkpointed(name string, lastID int64) {
	c.RelayCheckpoint.WithLabelValues(name).Set(float64(lastID))
}

// Purged 记录保留期清理删除的条数
func (c *Collectors) Purged(n int64) {
	if n > 0 {
		c.RecordsPurged.Add(float64(n))
	}
}

// Sink 统计追加结果的 oplog.Sink 装饰器，错误原样返回
type Sink struct {
	inner oplog.Sink
	c     *Collectors
}

// WrapSink 包装 inner
func (c *Collectors) WrapSink(inner oplog.Sink) *Sink {
	return &Sink{inner: inner, c: c}
}

var _ oplog.Sink = (*Sink)(nil)

// Append 实现 oplog.Sink
func (s *Sink) Append(ctx context.Context, rec oplog.Record) (int64, error) {
	id, err := s.inner.Append(ctx, rec)
	if err != nil {
		s.c.EmitFailures.WithLabelValues(string(rec.ModelName), string(rec.OperationType), string(errors.GetErrorCode(err))).Inc()
		return 0, err
	}
	s.c.RecordsEmitted.WithLabelValues(string(rec.ModelName), string(rec.OperationType)).Inc()
	return id, nil
}
