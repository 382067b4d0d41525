package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullYAML = `
timezone: Europe/Berlin

database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  name: tempo_prod
  user: tempo
  password: secret

log:
  level: debug
  file: /var/log/tempo/tempo.log
  json: true
  stdout: false

scheduler:
  cron: "15 1 * * *"
  workers: 8

events:
  poll_interval: 2s
  batch_size: 10
  max_attempts: 3

dashboard:
  port: 9090

metrics:
  port: 9100
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "10.0.0.5", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "tempo_prod", cfg.Database.Name)
	assert.Equal(t, "tempo", cfg.Database.User)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.False(t, cfg.Log.Stdout)
	assert.Equal(t, "15 1 * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 2*time.Second, cfg.Events.PollInterval)
	assert.Equal(t, 10, cfg.Events.BatchSize)
	assert.Equal(t, 3, cfg.Events.MaxAttempts)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, 9090, cfg.Dashboard.Port)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "tempo.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Stdout, "stdout must be on when no log file is set")
	assert.Equal(t, "5 0 * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 5*time.Second, cfg.Events.PollInterval)
	assert.Equal(t, 50, cfg.Events.BatchSize)
	assert.Equal(t, 5, cfg.Events.MaxAttempts)
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Zero(t, cfg.Metrics.Port, "worker metrics are off by default")
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "tempo", cfg.Database.Name)
	assert.Equal(t, "root", cfg.Database.User)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown driver", "database:\n  driver: postgres\n", "database.driver"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"too many workers", "scheduler:\n  workers: 500\n", "scheduler.workers"},
		{"unknown timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"negative batch", "events:\n  batch_size: -1\n", "events.batch_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config: validation failed")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("database: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDBHost, "db.internal")
	t.Setenv(EnvDBPassword, "from-env")
	t.Setenv(EnvLogLevel, "WARN")

	cfg, err := Parse([]byte("database:\n  driver: mysql\n  password: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tempo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tempo_prod", cfg.Database.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestYAMLPath(t *testing.T) {
	assert.Equal(t, "events.poll_interval", yamlPath("Config.Events.PollInterval"))
	assert.Equal(t, "database.driver", yamlPath("Config.Database.Driver"))
}
