package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "tasker.db", cfg.Database.DSN)
	assert.Equal(t, time.Minute, cfg.Scheduler.TimerInterval.Std())
	assert.Equal(t, 15*time.Second, cfg.Scheduler.TimerTimeout.Std())
	assert.Equal(t, 2, cfg.Scheduler.TimerMaxRunning)
	assert.Equal(t, 18000*time.Second, cfg.Scheduler.CronTimeout.Std())
	assert.Equal(t, 3, cfg.Scheduler.CronMaxRunning)
	assert.Equal(t, "0.0.0.0:8080", cfg.API.Addr())
	assert.Equal(t, 15*time.Second, cfg.API.Timeout.Std())
}

func TestLoadValidFile(t *testing.T) {
	content := `
database:
  type: mysql
  dsn: "user:pass@tcp(localhost:3306)/tasker"
scheduler:
  timer_enabled: true
  timer_interval: 30s
  timer_timeout: 10s
  timer_max_running: 5
  cron_timeout: 3600
api:
  host: 127.0.0.1
  port: 9090
  timeout: 20s
debug: true
`
	path := filepath.Join(t.TempDir(), "tasker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.True(t, cfg.Scheduler.TimerEnabled)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TimerInterval.Std())
	assert.Equal(t, 10*time.Second, cfg.Scheduler.TimerTimeout.Std())
	assert.Equal(t, 5, cfg.Scheduler.TimerMaxRunning)
	// 纯数字按秒处理
	assert.Equal(t, time.Hour, cfg.Scheduler.CronTimeout.Std())
	assert.Equal(t, "127.0.0.1:9090", cfg.API.Addr())
	assert.Equal(t, 20*time.Second, cfg.API.Timeout.Std())
	assert.True(t, cfg.Debug)
}

func TestLoadUnsupportedDatabaseType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  type: oracle\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  timeout: fast\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
