// prodlog-relay 将操作记录从数据库中继到消息传输层，并按保留期清理旧记录。
//
// 配置全部来自 PRODLOG_* 环境变量，当前目录下的 .env 会先被加载。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"prodlog/config"
	"prodlog/data/db/basic"
	"prodlog/data/db/migrate"
	"prodlog/logging"
	"prodlog/messaging"
	"prodlog/messaging/transport/memory"
	"prodlog/messaging/transport/natsjetstream"
	"prodlog/messaging/transport/redisstreams"
	"prodlog/metrics"
	"prodlog/oplog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "prodlog-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	logging.SetLogger(logging.NewJSONLogrusLogger(cfg.LogLevel))
	logger := logging.ComponentLogger("relay.main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := basic.New(cfg.DB)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := migrate.Up(ctx, db); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	transport, err := newTransport(cfg)
	if err != nil {
		return err
	}
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("starting %s transport: %w", cfg.Transport, err)
	}
	defer transport.Close()

	records := oplog.NewSQLStore(db)
	relay := oplog.NewRelay(records, oplog.NewSQLCheckpointStore(db, ""), transport, cfg.Relay,
		oplog.WithRelayObserver(m))

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return purgeLoop(gctx, records, cfg.Retention, time.Hour, m) })
	g.Go(func() error {
		logger.Info(gctx, "metrics listening", logging.String("addr", cfg.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info(context.Background(), "relay exited", logging.Error(err))
	return err
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// newTransport 按配置创建传输。内存传输没有外部消费者，订阅一个把记录写入日志的处理器。
func newTransport(cfg *config.Config) (messaging.Transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		return natsjetstream.NewTransport(natsjetstream.Config{URL: cfg.NATSURL}), nil
	case config.TransportRedis:
		return redisstreams.NewTransport(redisstreams.Config{Addr: cfg.RedisAddr})
	default:
		t := memory.NewMemoryTransport(0, 1)
		if err := t.Subscribe(messaging.WildcardType, recordLogger()); err != nil {
			return nil, err
		}
		return t, nil
	}
}

func recordLogger() messaging.IMessageHandler {
	logger := logging.ComponentLogger("relay.sink")
	return &messaging.HandlerFunc{
		Name: "record-logger",
		Fn: func(ctx context.Context, msg messaging.IMessage) error {
			rec, err := oplog.RecordFromMessage(msg)
			if err != nil {
				return err
			}
			logger.Info(ctx, "operation record",
				logging.Int64("id", rec.ID),
				logging.String("model", string(rec.ModelName)),
				logging.Int64("record_id", rec.RecordID),
				logging.Int64("template_id", rec.TemplateID),
				logging.String("operation", string(rec.OperationType)))
			return nil
		},
	}
}

type purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// purgeLoop 每个 interval 删除早于 retention 的记录；retention 为 0 时直接等待退出
func purgeLoop(ctx context.Context, p purger, retention, interval time.Duration, m *metrics.Collectors) error {
	if retention <= 0 {
		<-ctx.Done()
		return nil
	}
	logger := logging.ComponentLogger("relay.retention")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := p.PurgeOlderThan(ctx, time.Now().Add(-retention), 0)
		m.Purged(n)
		if err != nil && ctx.Err() == nil {
			logger.Error(ctx, "retention purge failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
