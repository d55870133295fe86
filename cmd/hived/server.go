package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/api/handlers"
	"github.com/BaSui01/agenthive/config"
	"github.com/BaSui01/agenthive/hive"
	"github.com/BaSui01/agenthive/hive/checkpoint"
	"github.com/BaSui01/agenthive/hive/distributor"
	"github.com/BaSui01/agenthive/hive/executor"
	"github.com/BaSui01/agenthive/hive/queue"
	"github.com/BaSui01/agenthive/hive/registry"
	"github.com/BaSui01/agenthive/internal/cache"
	"github.com/BaSui01/agenthive/internal/database"
	"github.com/BaSui01/agenthive/internal/metrics"
	"github.com/BaSui01/agenthive/internal/migration"
	"github.com/BaSui01/agenthive/internal/pool"
	"github.com/BaSui01/agenthive/internal/server"
	"github.com/BaSui01/agenthive/internal/telemetry"
	"github.com/BaSui01/agenthive/internal/tlsutil"
	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装协调器与其基础设施：数据库、Redis、检查点、指标、遥测与 HTTP
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	hive      *hive.Coordinator
	workers   *pool.Workers
	collector *metrics.Collector
	otel      *telemetry.Providers

	dbPool *database.PoolManager
	cache  *cache.Manager

	store          checkpoint.Store
	checkpoints    *checkpoint.Manager
	checkpointStop context.CancelFunc
	checkpointDone chan struct{}

	httpManager    *server.Manager
	metricsManager *server.Manager

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 依次初始化基础设施、协调器与 HTTP 监听。失败时调用方负责 Shutdown 释放已建资源。
func (s *Server) Start(ctx context.Context) error {
	s.collector = metrics.NewCollector("agenthive", s.logger)

	if err := s.initRedis(ctx); err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	if err := s.initDatabase(ctx); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := s.initHive(); err != nil {
		return fmt.Errorf("init hive: %w", err)
	}

	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger, telemetry.WithHiveID(s.hive.ID().String()))
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otel = providers

	if err := s.initCheckpoints(ctx); err != nil {
		return fmt.Errorf("init checkpoints: %w", err)
	}
	if err := s.hive.Start(ctx); err != nil {
		return fmt.Errorf("start hive: %w", err)
	}
	s.runCheckpoints()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.String("hive_id", s.hive.ID().String()),
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Bool("tls", s.cfg.Server.TLSEnabled()),
	)
	return nil
}

// Wait 阻塞到 ctx 结束或任一监听异常退出
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.httpManager.Errors():
		return fmt.Errorf("http server: %w", err)
	case err := <-s.metricsManager.Errors():
		return fmt.Errorf("metrics server: %w", err)
	}
}

// =============================================================================
// 🔧 基础设施
// =============================================================================

// initRedis Redis 启用时创建客户端，供注册表读缓存与 redis 检查点使用
func (s *Server) initRedis(ctx context.Context) error {
	rc := s.cfg.Redis
	if !rc.Enabled {
		return nil
	}
	opts := &redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	}
	if rc.TLS {
		opts.TLSConfig = tlsutil.RedisTLSConfig(rc.Addr)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	cc := cache.DefaultConfig()
	cc.Addr = rc.Addr
	cc.DB = rc.DB
	cc.PoolSize = rc.PoolSize
	cc.MinIdleConns = rc.MinIdleConns
	s.cache = cache.NewManagerWithClient(client, cc, s.logger)
	return nil
}

// initDatabase 仅在数据库检查点后端下连接数据库，先执行迁移再打开 GORM
func (s *Server) initDatabase(ctx context.Context) error {
	if s.cfg.Checkpoint.Backend != config.CheckpointDatabase {
		return nil
	}

	migrator, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database, s.logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	err = migrator.Up(ctx)
	_ = migrator.Close()
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	driver := s.cfg.Database.Driver
	pm, err := database.NewPoolManager(db, database.PoolConfigFrom(s.cfg.Database), s.logger,
		database.WithStatsObserver(func(open, idle int) {
			s.collector.RecordDBConnections(driver, open, idle)
		}))
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	s.dbPool = pm
	return nil
}

// initHive 创建工作池与协调器
func (s *Server) initHive() error {
	hc := s.cfg.Hive
	s.workers = pool.New(pool.Config{
		MaxWorkers:  hc.MaxConcurrentTasks,
		QueueSize:   hc.MaxConcurrentTasks,
		IdleTimeout: time.Minute,
	}, s.logger)

	opts := []hive.Option{
		hive.WithPool(s.workers),
		hive.WithRecorder(s.collector),
	}
	if s.cache != nil {
		opts = append(opts, hive.WithAgentCache(registry.NewRedisCache(s.cache, s.cfg.Redis.AgentCacheTTL, s.logger)))
	}

	c, err := hive.New(hiveConfigFrom(hc), s.logger, opts...)
	if err != nil {
		return err
	}
	s.hive = c
	return nil
}

// hiveConfigFrom 把文件配置映射为协调器配置
func hiveConfigFrom(hc config.HiveConfig) hive.Config {
	cfg := hive.DefaultConfig()
	cfg.ID = hc.ID
	cfg.MaxAgents = hc.MaxAgents
	cfg.CPUThreshold = hc.CPUThreshold
	cfg.MemoryLimitMB = hc.MemoryLimitMB
	cfg.AutoOptimize = hc.AutoOptimize

	cfg.Queue = queue.DefaultConfig()
	cfg.Queue.Capacity = hc.MaxQueueSize
	cfg.Queue.EnableWorkStealing = hc.EnableWorkStealing

	cfg.Distributor = distributor.Config{
		MaxConcurrent:    hc.MaxConcurrentTasks,
		MaxRetryAttempts: hc.MaxRetryAttempts,
		Breaker: distributor.BreakerConfig{
			FailureThreshold:           hc.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:            hc.CircuitBreaker.RecoveryTimeout,
			HalfOpenMaxProbes:          hc.CircuitBreaker.HalfOpenMaxProbes,
			SuccessThresholdInHalfOpen: hc.CircuitBreaker.SuccessThreshold,
		},
	}

	cfg.Executor = executor.DefaultConfig()
	cfg.Executor.MaxConcurrent = hc.MaxConcurrentTasks
	if hc.ExecutionTimeoutMs > 0 {
		cfg.Executor.Timeout = time.Duration(hc.ExecutionTimeoutMs) * time.Millisecond
	}

	def := hive.DefaultProcessConfig()
	cfg.Processes = hive.ProcessConfig{
		Distribution: orDefault(hc.Processes.Distribution, def.Distribution),
		Learning:     orDefault(hc.Processes.Learning, def.Learning),
		Swarm:        orDefault(hc.Processes.Swarm, def.Swarm),
		Metrics:      orDefault(hc.Processes.Metrics, def.Metrics),
		Resources:    orDefault(hc.Processes.Resources, def.Resources),
	}
	return cfg
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// =============================================================================
// 💾 检查点
// =============================================================================

// initCheckpoints 选择存储后端，按需从最新快照恢复
func (s *Server) initCheckpoints(ctx context.Context) error {
	cc := s.cfg.Checkpoint
	switch cc.Backend {
	case config.CheckpointDatabase:
		s.store = checkpoint.NewGormStore(s.dbPool.DB(), s.logger)
	case config.CheckpointRedis:
		if s.cache == nil {
			return fmt.Errorf("redis checkpoint backend requires redis.enabled")
		}
		s.store = checkpoint.NewRedisStore(s.cache.Client(), cc.RedisPrefix, cc.RedisTTL, s.logger)
	default:
		s.logger.Info("checkpointing disabled")
		return nil
	}

	s.checkpoints = checkpoint.NewManager(s.store, s.hive, s.hive,
		checkpoint.Config{Interval: cc.Interval, Retain: cc.Retain}, s.logger)

	if !cc.RestoreOnStart {
		return nil
	}
	snap, err := s.checkpoints.Restore(ctx)
	switch {
	case types.IsCode(err, types.ErrNotFound):
		s.logger.Info("no checkpoint to restore", zap.String("hive_id", s.hive.ID().String()))
	case err != nil:
		return err
	default:
		s.logger.Info("hive restored from checkpoint",
			zap.String("checkpoint_id", snap.ID.String()),
			zap.Int("agents", len(snap.Agents)),
			zap.Int("tasks", len(snap.Tasks)))
	}
	return nil
}

func (s *Server) runCheckpoints() {
	if s.checkpoints == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.checkpointStop = cancel
	s.checkpointDone = make(chan struct{})
	go func() {
		defer close(s.checkpointDone)
		s.checkpoints.Run(ctx)
	}()
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// buildHandler 注册路由并套上中间件链
func (s *Server) buildHandler(rateLimiterCtx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewHiveCheck(s.hive))
	if s.dbPool != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.dbPool.Ping))
	}
	if s.cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}
	health.Register(mux, handlers.VersionInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit})

	handlers.NewHiveHandler(s.hive, s.logger).Register(mux)
	events := handlers.NewEventsHandler(s.hive.Bus(), s.cfg.Server.CORSAllowedOrigins, s.logger)
	mux.HandleFunc("GET /api/v1/events", events.HandleEvents)

	sc := s.cfg.Server
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(sc.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger),
	}
	auth := AuthConfig{
		APIKeys:          sc.APIKeys,
		AllowQueryAPIKey: sc.AllowQueryAPIKey,
		JWT:              sc.JWT,
		SkipPrefixes:     []string{"/health", "/ready", "/version"},
	}
	if auth.Enabled() {
		chain = append(chain, Auth(auth, s.logger))
	} else {
		s.logger.Warn("authentication disabled: no api keys or jwt configured")
	}
	return Chain(mux, chain...)
}

func (s *Server) startHTTPServer() error {
	sc := s.cfg.Server
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}
	if sc.TLSEnabled() {
		tlsCfg, err := tlsutil.ServerTLSConfig(sc.TLSCertFile, sc.TLSKeyFile)
		if err != nil {
			return err
		}
		serverConfig.TLS = tlsCfg
	}

	s.httpManager = server.NewManager(s.buildHandler(rateLimiterCtx), serverConfig, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 先停止接收请求，再停止协调器并保存最终检查点，最后释放连接
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.hive != nil {
		if err := s.hive.Shutdown(ctx); err != nil {
			s.logger.Error("hive shutdown error", zap.Error(err))
		}
	}
	// 协调器停止后再取消，Run 退出前保存的快照不含执行中状态
	if s.checkpointStop != nil {
		s.checkpointStop()
		<-s.checkpointDone
	}
	if s.hive != nil {
		if err := s.hive.Close(); err != nil {
			s.logger.Error("hive close error", zap.Error(err))
		}
	}
	if s.workers != nil {
		s.workers.Close()
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	// redis 后端与缓存共用客户端，由 cache.Close 关闭
	if s.store != nil && s.cfg.Checkpoint.Backend != config.CheckpointRedis {
		if err := s.store.Close(); err != nil {
			s.logger.Error("checkpoint store close error", zap.Error(err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("cache close error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
