package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/agents"
	"github.com/BaSui01/queryflow/api/handlers"
	"github.com/BaSui01/queryflow/archive"
	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/internal/server"
	"github.com/BaSui01/queryflow/internal/telemetry"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/openai"
	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/session"
	"github.com/BaSui01/queryflow/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 QueryFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 查询流水线与其持有的存储
	service    *pipeline.Service
	archive    *archive.Archive
	sessions   session.Store
	classCache *cache.ClassificationCache

	// Handlers
	queryHandler    *handlers.QueryHandler
	wsHandler       *handlers.WSHandler
	catalogHandler  *handlers.CatalogHandler
	runsHandler     *handlers.RunsHandler
	sessionsHandler *handlers.SessionsHandler
	healthHandler   *handlers.HealthHandler

	// 指标收集器与遥测
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("queryflow", s.logger)

	// 2. 装配查询流水线
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("tls", s.tlsEnabled()),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initPipeline 按配置装配查询流水线。缓存与归档是可选依赖,
// 不可用时降级继续; 会话存储不可用则启动失败。
func (s *Server) initPipeline() error {
	// 步骤目录: 未配置覆盖文件时使用内置目录
	var catalog *planning.Catalog
	if s.cfg.Pipeline.CatalogPath != "" {
		loaded, err := planning.LoadCatalog(s.cfg.Pipeline.CatalogPath)
		if err != nil {
			return fmt.Errorf("load step catalog: %w", err)
		}
		catalog = loaded
		s.logger.Info("Step catalog loaded", zap.String("path", s.cfg.Pipeline.CatalogPath))
	}

	// LLM Provider: 未配置 API Key 时分类与质量复核走确定性降级路径
	var provider llm.Provider
	if s.cfg.LLM.APIKey != "" {
		provider = llm.NewBreaker(openai.New(openai.Config{
			ProviderName: s.cfg.LLM.DefaultProvider,
			APIKey:       s.cfg.LLM.APIKey,
			BaseURL:      s.cfg.LLM.BaseURL,
			DefaultModel: s.cfg.LLM.Model,
			Timeout:      s.cfg.LLM.Timeout,
		}, s.logger), llm.BreakerConfig{}, s.logger)
		s.logger.Info("LLM provider initialized", zap.String("provider", provider.Name()))
	} else {
		s.logger.Info("LLM API key not configured, running with deterministic fallbacks")
	}

	// 会话存储
	sessions, err := session.NewStore(s.sessionStoreConfig())
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	s.sessions = sessions

	// 分类结果缓存（可选）
	if s.cfg.Redis.Addr != "" && s.cfg.Classifier.CacheTTL > 0 {
		classCache, err := cache.NewClassificationCache(s.cfg.Redis, s.cfg.Classifier.CacheTTL, s.logger)
		if err != nil {
			s.logger.Warn("Classification cache unavailable, continuing without it", zap.Error(err))
		} else {
			s.classCache = classCache
		}
	}

	// 运行归档（可选）
	if s.cfg.Database.Enabled {
		arc, err := archive.Open(s.cfg.Database, s.logger)
		if err != nil {
			s.logger.Warn("Run archive unavailable, continuing without it", zap.Error(err))
		} else {
			s.archive = arc
		}
	}

	service, err := pipeline.New(pipeline.Options{
		Catalog:  catalog,
		Provider: provider,
		Sessions: s.sessions,
		Cache:    s.classCache,
		Archive:  s.archive,
		Metrics:  s.metricsCollector,
		Classifier: planning.ClassifierOptions{
			Model:       s.cfg.Classifier.Model,
			Temperature: s.cfg.Classifier.Temperature,
			MaxTokens:   s.cfg.Classifier.MaxTokens,
			Timeout:     s.cfg.Classifier.Timeout,
		},
		Critic: quality.CriticOptions{
			MinInsightRunes: s.cfg.Quality.MinInsightRunes,
		},
		Resolver: quality.ResolverOptions{
			Model:       s.cfg.Quality.DebateModel,
			Temperature: s.cfg.Quality.DebateTemperature,
			MaxTokens:   s.cfg.Quality.DebateMaxTokens,
			Timeout:     s.cfg.Quality.DebateTimeout,
		},
		Executor: workflow.ExecutorOptions{
			StepTimeoutFactor: s.cfg.Pipeline.StepTimeoutFactor,
			MinStepTimeout:    s.cfg.Pipeline.StepTimeout,
			PlanTimeout:       s.cfg.Pipeline.PlanTimeout,
			EventBuffer:       s.cfg.Pipeline.EventBuffer,
		},
		SQL: agents.SQLAgentOptions{
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		},
		Insight: agents.TextAgentOptions{
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		},
		Narrative: agents.TextAgentOptions{
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		},
		Logger: s.logger,
	})
	if err != nil {
		return err
	}
	s.service = service
	return nil
}

// sessionStoreConfig 把应用配置映射为会话存储配置。
// Redis 地址沿用缓存的连接参数。
func (s *Server) sessionStoreConfig() session.StoreConfig {
	storeCfg := session.StoreConfig{
		Type:    session.StoreType(s.cfg.Session.StoreType),
		BaseDir: s.cfg.Session.FileDir,
		TTL:     s.cfg.Session.TTL,
	}
	host, port := splitRedisAddr(s.cfg.Redis.Addr)
	storeCfg.Redis = session.RedisStoreConfig{
		Host:      host,
		Port:      port,
		Password:  s.cfg.Redis.Password,
		DB:        s.cfg.Redis.DB,
		PoolSize:  s.cfg.Redis.PoolSize,
		KeyPrefix: s.cfg.Session.KeyPrefix,
	}
	return storeCfg
}

// splitRedisAddr 拆分 host:port, 端口缺失或非法时返回 0 交由
// 存储层默认值处理。
func splitRedisAddr(addr string) (string, int) {
	if addr == "" {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.queryHandler = handlers.NewQueryHandler(s.service, s.logger)
	s.wsHandler = handlers.NewWSHandler(s.service, s.logger)
	s.catalogHandler = handlers.NewCatalogHandler(s.service.Catalog(), s.logger)
	s.runsHandler = handlers.NewRunsHandler(s.service.Archive(), s.logger)
	s.sessionsHandler = handlers.NewSessionsHandler(s.service.Sessions(), s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.service, s.logger)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 查询 API
	mux.HandleFunc("/v1/query", s.queryHandler.HandleQuery)
	mux.HandleFunc("/v1/query/stream", s.queryHandler.HandleStream)
	mux.HandleFunc("/v1/query/ws", s.wsHandler.HandleWS)

	// 步骤目录、归档与会话
	mux.HandleFunc("/v1/steps", s.catalogHandler.HandleSteps)
	mux.HandleFunc("/v1/runs", s.runsHandler.HandleList)
	mux.HandleFunc("/v1/runs/{id}", s.runsHandler.HandleGet)
	mux.HandleFunc("/v1/sessions/{id}", s.sessionsHandler.Handle)

	// 构建中间件链
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.AllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKey, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	var err error
	if s.tlsEnabled() {
		err = s.httpManager.StartTLS(s.cfg.Server.TLSCert, s.cfg.Server.TLSKey)
	} else {
		err = s.httpManager.Start()
	}
	if err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) tlsEnabled() bool {
	return s.cfg.Server.TLSCert != "" && s.cfg.Server.TLSKey != ""
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务并释放存储连接
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 释放存储连接
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Error("Archive close error", zap.Error(err))
		}
	}
	if s.classCache != nil {
		if err := s.classCache.Close(); err != nil {
			s.logger.Error("Classification cache close error", zap.Error(err))
		}
	}
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			s.logger.Error("Session store close error", zap.Error(err))
		}
	}

	// 5. 关闭遥测导出器
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
