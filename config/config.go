// Package config 从环境变量（可选 .env 文件）读取 prodlog 配置
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"prodlog/capture"
	core "prodlog/data/db"
	"prodlog/errors"
	"prodlog/logging"
	"prodlog/oplog"
)

// 传输类型
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
	TransportRedis  = "redis"
)

// Config 运行配置
type Config struct {
	DB core.DBConfig

	PayloadPolicy capture.PayloadPolicy
	BinaryFields  []string

	Transport string
	NATSURL   string
	RedisAddr string

	Relay oplog.RelayConfig

	MetricsAddr string
	LogLevel    logging.Level

	// Retention 操作记录保留时长，0 表示不清理
	Retention time.Duration
}

// Load 读取配置。envFiles 中存在的文件先被加载，已设置的环境变量不会被覆盖。
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, fmt.Sprintf("loading %s", f))
		}
	}

	cfg := &Config{
		DB: core.DBConfig{
			Driver: envOrDefault("PRODLOG_DB_DRIVER", "sqlite"),
			DSN:    envOrDefault("PRODLOG_DB_DSN", "prodlog.db"),
		},
		Transport:   strings.ToLower(envOrDefault("PRODLOG_TRANSPORT", TransportMemory)),
		NATSURL:     envOrDefault("PRODLOG_NATS_URL", "nats://127.0.0.1:4222"),
		RedisAddr:   envOrDefault("PRODLOG_REDIS_ADDR", "127.0.0.1:6379"),
		Relay:       oplog.DefaultRelayConfig(),
		MetricsAddr: envOrDefault("PRODLOG_METRICS_ADDR", ":9108"),
		LogLevel:    logging.ParseLevel(envOrDefault("PRODLOG_LOG_LEVEL", "info")),
	}
	cfg.Relay.Name = envOrDefault("PRODLOG_RELAY_NAME", cfg.Relay.Name)

	var err error
	if cfg.PayloadPolicy, err = capture.ParsePayloadPolicy(os.Getenv("PRODLOG_PAYLOAD_POLICY")); err != nil {
		return nil, err
	}
	cfg.BinaryFields = splitList(envOrDefault("PRODLOG_BINARY_FIELDS", strings.Join(capture.DefaultBinaryFields, ",")))

	if cfg.Relay.Interval, err = durationEnv("PRODLOG_RELAY_INTERVAL", cfg.Relay.Interval); err != nil {
		return nil, err
	}
	if cfg.Relay.SettleDelay, err = durationEnv("PRODLOG_SETTLE_DELAY", cfg.Relay.SettleDelay); err != nil {
		return nil, err
	}
	if cfg.Relay.BatchSize, err = intEnv("PRODLOG_RELAY_BATCH", cfg.Relay.BatchSize); err != nil {
		return nil, err
	}
	if cfg.Relay.Retry.MaxAttempts, err = intEnv("PRODLOG_RELAY_MAX_ATTEMPTS", cfg.Relay.Retry.MaxAttempts); err != nil {
		return nil, err
	}
	days, err := intEnv("PRODLOG_RETENTION_DAYS", 0)
	if err != nil {
		return nil, err
	}
	cfg.Retention = time.Duration(days) * 24 * time.Hour

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportMemory, TransportNATS, TransportRedis:
	default:
		return invalid("PRODLOG_TRANSPORT must be memory, nats or redis, got %q", c.Transport)
	}
	if c.Relay.Interval <= 0 {
		return invalid("PRODLOG_RELAY_INTERVAL must be positive")
	}
	if c.Relay.BatchSize < 1 || c.Relay.BatchSize > 10000 {
		return invalid("PRODLOG_RELAY_BATCH must be between 1 and 10000")
	}
	if c.Relay.Retry.MaxAttempts < 1 {
		return invalid("PRODLOG_RELAY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Relay.SettleDelay < 0 {
		return invalid("PRODLOG_SETTLE_DELAY must not be negative")
	}
	if c.Retention < 0 {
		return invalid("PRODLOG_RETENTION_DAYS must not be negative")
	}
	return nil
}

// RecorderOptions 由配置生成的记录器选项
func (c *Config) RecorderOptions() []capture.RecorderOption {
	return []capture.RecorderOption{
		capture.WithPayloadPolicy(c.PayloadPolicy),
		capture.WithBinaryFields(c.BinaryFields...),
	}
}

func invalid(format string, args ...any) error {
	return errors.NewError(errors.ErrCodeValidation, "config: "+fmt.Sprintf(format, args...))
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := envOrDefault(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, invalid("%s: %v", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := envOrDefault(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid("%s must be an integer", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
