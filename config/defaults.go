// =============================================================================
// 📦 AgentHive 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Hive:       DefaultHiveConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultHiveConfig 返回默认蜂巢配置
func DefaultHiveConfig() HiveConfig {
	return HiveConfig{
		MaxConcurrentTasks: 100,
		MaxRetryAttempts:   3,
		ExecutionTimeoutMs: 300000,
		EnableWorkStealing: true,
		MaxQueueSize:       10000,
		CPUThreshold:       0.9,
		MemoryLimitMB:      8192,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:  5,
			RecoveryTimeout:   30 * time.Second,
			HalfOpenMaxProbes: 3,
			SuccessThreshold:  2,
		},
		Processes: ProcessesConfig{
			Distribution: 100 * time.Millisecond,
			Learning:     30 * time.Second,
			Swarm:        5 * time.Second,
			Metrics:      10 * time.Second,
			Resources:    5 * time.Second,
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:       false,
		Addr:          "localhost:6379",
		Password:      "",
		DB:            0,
		PoolSize:      10,
		MinIdleConns:  2,
		AgentCacheTTL: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agenthive",
		Password:        "",
		Name:            "agenthive",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend:        CheckpointNone,
		Interval:       time.Minute,
		Retain:         10,
		RedisPrefix:    "agenthive:checkpoint",
		RestoreOnStart: true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agenthive",
		SampleRate:   0.1,
	}
}
