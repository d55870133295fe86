// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 100, cfg.Server.RateLimitRPS)

	assert.Equal(t, 100, cfg.Hive.MaxConcurrentTasks)
	assert.Equal(t, 3, cfg.Hive.MaxRetryAttempts)
	assert.Equal(t, int64(300000), cfg.Hive.ExecutionTimeoutMs)
	assert.True(t, cfg.Hive.EnableWorkStealing)
	assert.Equal(t, 10000, cfg.Hive.MaxQueueSize)
	assert.InDelta(t, 0.9, cfg.Hive.CPUThreshold, 1e-9)
	assert.Equal(t, 100*time.Millisecond, cfg.Hive.Processes.Distribution)
	assert.Equal(t, 30*time.Second, cfg.Hive.Processes.Learning)
	assert.Equal(t, 5, cfg.Hive.CircuitBreaker.FailureThreshold)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.Equal(t, CheckpointNone, cfg.Checkpoint.Backend)
	assert.Equal(t, time.Minute, cfg.Checkpoint.Interval)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "agenthive", cfg.Telemetry.ServiceName)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 100, cfg.Hive.MaxConcurrentTasks)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "hive.yaml")
	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

hive:
  id: "2b1f4a9e-6a43-4a55-9d0a-0d2d3c1e5f10"
  max_concurrent_tasks: 16
  max_queue_size: 500
  enable_work_stealing: false
  circuit_breaker:
    failure_threshold: 2
    recovery_timeout: 10s
  processes:
    distribution: 250ms

checkpoint:
  backend: database
  interval: 2m

log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, "2b1f4a9e-6a43-4a55-9d0a-0d2d3c1e5f10", cfg.Hive.ID)
	assert.Equal(t, 16, cfg.Hive.MaxConcurrentTasks)
	assert.Equal(t, 500, cfg.Hive.MaxQueueSize)
	assert.False(t, cfg.Hive.EnableWorkStealing)
	assert.Equal(t, 2, cfg.Hive.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Hive.CircuitBreaker.RecoveryTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Hive.Processes.Distribution)
	// 未在文件中出现的字段保留默认值
	assert.Equal(t, 30*time.Second, cfg.Hive.Processes.Learning)
	assert.Equal(t, 3, cfg.Hive.CircuitBreaker.HalfOpenMaxProbes)
	assert.Equal(t, CheckpointDatabase, cfg.Checkpoint.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Checkpoint.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "hive.toml")
	tomlContent := `
[server]
http_port = 7070
cors_allowed_origins = ["https://hive.example"]

[hive]
max_agents = 50
cpu_threshold = 0.75
auto_optimize = true

[hive.processes]
metrics = "30s"

[redis]
enabled = true
addr = "redis:6379"

[checkpoint]
backend = "redis"
retain = 3
`
	require.NoError(t, os.WriteFile(configPath, []byte(tomlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"https://hive.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 50, cfg.Hive.MaxAgents)
	assert.InDelta(t, 0.75, cfg.Hive.CPUThreshold, 1e-9)
	assert.True(t, cfg.Hive.AutoOptimize)
	assert.Equal(t, 30*time.Second, cfg.Hive.Processes.Metrics)
	assert.Equal(t, 5*time.Second, cfg.Hive.Processes.Swarm)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, CheckpointRedis, cfg.Checkpoint.Backend)
	assert.Equal(t, 3, cfg.Checkpoint.Retain)
	require.NoError(t, cfg.Validate())
}

func TestLoader_InvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[hive\nmax_agents = "), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("AGENTHIVE_SERVER_HTTP_PORT", "9999")
	t.Setenv("AGENTHIVE_HIVE_MAX_CONCURRENT_TASKS", "8")
	t.Setenv("AGENTHIVE_HIVE_CPU_THRESHOLD", "0.5")
	t.Setenv("AGENTHIVE_HIVE_ENABLE_WORK_STEALING", "false")
	t.Setenv("AGENTHIVE_HIVE_PROCESSES_LEARNING", "1m")
	t.Setenv("AGENTHIVE_SERVER_API_KEYS", "a, b ,c")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 8, cfg.Hive.MaxConcurrentTasks)
	assert.InDelta(t, 0.5, cfg.Hive.CPUThreshold, 1e-9)
	assert.False(t, cfg.Hive.EnableWorkStealing)
	assert.Equal(t, time.Minute, cfg.Hive.Processes.Learning)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Server.APIKeys)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "hive.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("hive:\n  max_queue_size: 20\n"), 0o644))
	t.Setenv("AGENTHIVE_HIVE_MAX_QUEUE_SIZE", "40")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Hive.MaxQueueSize)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("HIVETEST_HIVE_MAX_AGENTS", "12")

	cfg, err := NewLoader().WithEnvPrefix("HIVETEST").Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Hive.MaxAgents)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTHIVE_HIVE_MAX_AGENTS", "many")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_Validator(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		return c.Validate()
	}).Load()
	require.NoError(t, err)
	assert.True(t, called)

	t.Setenv("AGENTHIVE_HIVE_MAX_QUEUE_SIZE", "0")
	_, err = NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	assert.Error(t, err)
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.HTTPPort = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Hive.MaxConcurrentTasks = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Hive.MaxRetryAttempts = -1 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Hive.ExecutionTimeoutMs = 0 }, wantErr: true},
		{name: "cpu threshold above one", mutate: func(c *Config) { c.Hive.CPUThreshold = 1.5 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Checkpoint.Backend = "s3" }, wantErr: true},
		{name: "redis backend without redis", mutate: func(c *Config) { c.Checkpoint.Backend = CheckpointRedis }, wantErr: true},
		{name: "tls cert without key", mutate: func(c *Config) { c.Server.TLSCertFile = "hive.crt" }, wantErr: true},
		{name: "redis backend with redis", mutate: func(c *Config) {
			c.Checkpoint.Backend = CheckpointRedis
			c.Redis.Enabled = true
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- DSN 测试 ---

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "hive", SSLMode: "disable"},
			want: "host=db port=5432 user=u password=p dbname=hive sslmode=disable",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "hive"},
			want: "u:p@tcp(db:3306)/hive?parseTime=true",
		},
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Driver: "sqlite", Name: "/var/lib/hive.db"},
			want: "/var/lib/hive.db",
		},
		{
			name: "unknown",
			cfg:  DatabaseConfig{Driver: "oracle"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestJWTConfig_Enabled(t *testing.T) {
	assert.False(t, JWTConfig{}.Enabled())
	assert.True(t, JWTConfig{Secret: "s"}.Enabled())
	assert.True(t, JWTConfig{PublicKey: "pem"}.Enabled())
}

func TestMustLoad_Panics(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unterminated"), 0o644))
	assert.Panics(t, func() { MustLoad(configPath) })
}
