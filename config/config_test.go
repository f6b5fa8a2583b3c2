package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodlog/capture"
	"prodlog/errors"
	"prodlog/logging"
)

var keys = []string{
	"PRODLOG_DB_DRIVER", "PRODLOG_DB_DSN", "PRODLOG_PAYLOAD_POLICY", "PRODLOG_BINARY_FIELDS",
	"PRODLOG_TRANSPORT", "PRODLOG_NATS_URL", "PRODLOG_REDIS_ADDR", "PRODLOG_RELAY_NAME",
	"PRODLOG_RELAY_INTERVAL", "PRODLOG_RELAY_BATCH", "PRODLOG_RELAY_MAX_ATTEMPTS", "PRODLOG_SETTLE_DELAY",
	"PRODLOG_METRICS_ADDR", "PRODLOG_LOG_LEVEL", "PRODLOG_RETENTION_DAYS",
}

// clearEnv 清空相关变量，t.Setenv 在测试结束时恢复原值
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, capture.PolicyValues, cfg.PayloadPolicy)
	assert.Equal(t, []string{"image"}, cfg.BinaryFields)
	assert.Equal(t, TransportMemory, cfg.Transport)
	assert.Equal(t, "default", cfg.Relay.Name)
	assert.Equal(t, time.Second, cfg.Relay.Interval)
	assert.Equal(t, 100, cfg.Relay.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Relay.SettleDelay)
	assert.Equal(t, 3, cfg.Relay.Retry.MaxAttempts)
	assert.Equal(t, logging.InfoLevel, cfg.LogLevel)
	assert.Zero(t, cfg.Retention)
	assert.Len(t, cfg.RecorderOptions(), 2)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRODLOG_DB_DRIVER", "postgres")
	t.Setenv("PRODLOG_DB_DSN", "postgres://prodlog@localhost/prodlog")
	t.Setenv("PRODLOG_PAYLOAD_POLICY", "names")
	t.Setenv("PRODLOG_BINARY_FIELDS", "image, datasheet ,")
	t.Setenv("PRODLOG_TRANSPORT", "NATS")
	t.Setenv("PRODLOG_RELAY_INTERVAL", "250ms")
	t.Setenv("PRODLOG_RELAY_BATCH", "500")
	t.Setenv("PRODLOG_SETTLE_DELAY", "0s")
	t.Setenv("PRODLOG_LOG_LEVEL", "debug")
	t.Setenv("PRODLOG_RETENTION_DAYS", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, capture.PolicyNames, cfg.PayloadPolicy)
	assert.Equal(t, []string{"image", "datasheet"}, cfg.BinaryFields)
	assert.Equal(t, TransportNATS, cfg.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.Interval)
	assert.Equal(t, 500, cfg.Relay.BatchSize)
	assert.Zero(t, cfg.Relay.SettleDelay)
	assert.Equal(t, logging.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "未知载荷策略", key: "PRODLOG_PAYLOAD_POLICY", value: "pickle"},
		{name: "未知传输", key: "PRODLOG_TRANSPORT", value: "kafka"},
		{name: "非法间隔", key: "PRODLOG_RELAY_INTERVAL", value: "soon"},
		{name: "批次过大", key: "PRODLOG_RELAY_BATCH", value: "100000"},
		{name: "批次非数字", key: "PRODLOG_RELAY_BATCH", value: "many"},
		{name: "重试次数为零", key: "PRODLOG_RELAY_MAX_ATTEMPTS", value: "0"},
		{name: "负保留期", key: "PRODLOG_RETENTION_DAYS", value: "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}

	clearEnv(t)
	t.Setenv("PRODLOG_TRANSPORT", "kafka")
	_, err := Load()
	assert.True(t, errors.IsValidation(err))
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PRODLOG_TRANSPORT=redis\nPRODLOG_REDIS_ADDR=cache:6379\nPRODLOG_RELAY_BATCH=7\n"), 0o600))
	t.Setenv("PRODLOG_RELAY_BATCH", "9")

	cfg, err := Load(filepath.Join(dir, "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, TransportRedis, cfg.Transport)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 9, cfg.Relay.BatchSize, "已存在的环境变量优先")
}
