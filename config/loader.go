// =============================================================================
// 📦 AgentHive 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML / TOML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("hive.yaml").
//	    WithEnvPrefix("AGENTHIVE").
//	    Load()
//
// 配置优先级: 默认值 → 配置文件 → 环境变量 → 验证器
// =============================================================================
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "AGENTHIVE"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentHive 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" toml:"server" env:"SERVER"`

	// Hive 蜂巢调度配置
	Hive HiveConfig `yaml:"hive" toml:"hive" env:"HIVE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" toml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" toml:"database" env:"DATABASE"`

	// Checkpoint 检查点配置
	Checkpoint CheckpointConfig `yaml:"checkpoint" toml:"checkpoint" env:"CHECKPOINT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" toml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" toml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" toml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" toml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" toml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源，为空时拒绝跨域
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" toml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// API Key 列表，为空且未配置 JWT 时不启用认证
	APIKeys []string `yaml:"api_keys" toml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 传递 API Key（websocket 客户端需要）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" toml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// JWT 认证
	JWT JWTConfig `yaml:"jwt" toml:"jwt" env:"JWT"`
	// TLS 证书与私钥，均配置时以 HTTPS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" toml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" toml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// TLSEnabled 证书与私钥是否都已配置
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// JWTConfig JWT 认证配置，Secret 与 PublicKey 都为空时不启用
type JWTConfig struct {
	// HS256 密钥
	Secret string `yaml:"secret" toml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" toml:"public_key" env:"PUBLIC_KEY"`
	// 期望的签发者
	Issuer string `yaml:"issuer" toml:"issuer" env:"ISSUER"`
	// 期望的受众
	Audience string `yaml:"audience" toml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了任一验签密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// HiveConfig 蜂巢调度配置
type HiveConfig struct {
	// 固定的蜂巢 id（UUID），为空时每次启动生成新 id
	ID string `yaml:"id" toml:"id" env:"ID"`
	// 最大 Agent 数，0 表示不限制
	MaxAgents int `yaml:"max_agents" toml:"max_agents" env:"MAX_AGENTS"`
	// 最大并发任务数
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks" toml:"max_concurrent_tasks" env:"MAX_CONCURRENT_TASKS"`
	// 单个任务最大重试次数
	MaxRetryAttempts int `yaml:"max_retry_attempts" toml:"max_retry_attempts" env:"MAX_RETRY_ATTEMPTS"`
	// 任务执行超时（毫秒）
	ExecutionTimeoutMs int64 `yaml:"execution_timeout_ms" toml:"execution_timeout_ms" env:"EXECUTION_TIMEOUT_MS"`
	// 是否启用工作窃取
	EnableWorkStealing bool `yaml:"enable_work_stealing" toml:"enable_work_stealing" env:"ENABLE_WORK_STEALING"`
	// 队列容量
	MaxQueueSize int `yaml:"max_queue_size" toml:"max_queue_size" env:"MAX_QUEUE_SIZE"`
	// 拒绝创建 Agent 的 CPU 使用率阈值
	CPUThreshold float64 `yaml:"cpu_threshold" toml:"cpu_threshold" env:"CPU_THRESHOLD"`
	// 内存上限（MB），用于计算内存使用率
	MemoryLimitMB float64 `yaml:"memory_limit_mb" toml:"memory_limit_mb" env:"MEMORY_LIMIT_MB"`
	// 是否按硬件档位自动调整
	AutoOptimize bool `yaml:"auto_optimize" toml:"auto_optimize" env:"AUTO_OPTIMIZE"`
	// 熔断器
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker" env:"CIRCUIT_BREAKER"`
	// 后台进程间隔
	Processes ProcessesConfig `yaml:"processes" toml:"processes" env:"PROCESSES"`
}

// CircuitBreakerConfig 按任务类型的熔断器配置
type CircuitBreakerConfig struct {
	// 连续失败多少次后打开
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// 打开后多久进入半开
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" toml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	// 半开状态允许的探测数
	HalfOpenMaxProbes int `yaml:"half_open_max_probes" toml:"half_open_max_probes" env:"HALF_OPEN_MAX_PROBES"`
	// 半开状态下连续成功多少次后恢复
	SuccessThreshold int `yaml:"success_threshold" toml:"success_threshold" env:"SUCCESS_THRESHOLD"`
}

// ProcessesConfig 后台进程间隔
type ProcessesConfig struct {
	Distribution time.Duration `yaml:"distribution" toml:"distribution" env:"DISTRIBUTION"`
	Learning     time.Duration `yaml:"learning" toml:"learning" env:"LEARNING"`
	Swarm        time.Duration `yaml:"swarm" toml:"swarm" env:"SWARM"`
	Metrics      time.Duration `yaml:"metrics" toml:"metrics" env:"METRICS"`
	Resources    time.Duration `yaml:"resources" toml:"resources" env:"RESOURCES"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用（注册表读缓存与 redis 检查点）
	Enabled bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" toml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" toml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" toml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" toml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" toml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// Agent 读缓存 TTL
	AgentCacheTTL time.Duration `yaml:"agent_cache_ttl" toml:"agent_cache_ttl" env:"AGENT_CACHE_TTL"`
	// 使用 TLS 连接
	TLS bool `yaml:"tls" toml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" toml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" toml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" toml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" toml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" toml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径
	Name string `yaml:"name" toml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" toml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" toml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// CheckpointConfig 检查点配置
type CheckpointConfig struct {
	// 后端: none, database, redis
	Backend string `yaml:"backend" toml:"backend" env:"BACKEND"`
	// 保存间隔
	Interval time.Duration `yaml:"interval" toml:"interval" env:"INTERVAL"`
	// 每个蜂巢保留的检查点数
	Retain int `yaml:"retain" toml:"retain" env:"RETAIN"`
	// redis 后端的 key 前缀
	RedisPrefix string `yaml:"redis_prefix" toml:"redis_prefix" env:"REDIS_PREFIX"`
	// redis 后端的过期时间，0 表示不过期
	RedisTTL time.Duration `yaml:"redis_ttl" toml:"redis_ttl" env:"REDIS_TTL"`
	// 启动时是否从最新检查点恢复
	RestoreOnStart bool `yaml:"restore_on_start" toml:"restore_on_start" env:"RESTORE_ON_START"`
}

// 检查点后端
const (
	CheckpointNone     = "none"
	CheckpointDatabase = "database"
	CheckpointRedis    = "redis"
)

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" toml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" toml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" toml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" toml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" toml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" toml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → 配置文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 按扩展名选择 YAML 或 TOML 解析
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(l.configPath)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return fmt.Errorf("failed to parse toml config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	h := c.Hive
	if h.MaxConcurrentTasks <= 0 {
		errs = append(errs, "hive.max_concurrent_tasks must be positive")
	}
	if h.MaxRetryAttempts < 0 {
		errs = append(errs, "hive.max_retry_attempts must not be negative")
	}
	if h.ExecutionTimeoutMs <= 0 {
		errs = append(errs, "hive.execution_timeout_ms must be positive")
	}
	if h.MaxQueueSize <= 0 {
		errs = append(errs, "hive.max_queue_size must be positive")
	}
	if h.MaxAgents < 0 {
		errs = append(errs, "hive.max_agents must not be negative")
	}
	if h.CPUThreshold <= 0 || h.CPUThreshold > 1 {
		errs = append(errs, "hive.cpu_threshold must be in (0, 1]")
	}

	switch c.Checkpoint.Backend {
	case "", CheckpointNone, CheckpointDatabase, CheckpointRedis:
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint backend %q", c.Checkpoint.Backend))
	}
	if c.Checkpoint.Backend == CheckpointRedis && !c.Redis.Enabled {
		errs = append(errs, "checkpoint backend redis requires redis.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
