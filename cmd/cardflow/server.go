package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/cardflow/api/handlers"
	"github.com/BaSui01/cardflow/config"
	"github.com/BaSui01/cardflow/internal/database"
	"github.com/BaSui01/cardflow/internal/metrics"
	"github.com/BaSui01/cardflow/internal/scraper"
	"github.com/BaSui01/cardflow/internal/server"
	"github.com/BaSui01/cardflow/internal/store"
	"github.com/BaSui01/cardflow/internal/telemetry"
	"github.com/BaSui01/cardflow/llm/poller"
	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/llm/providers/dashscope"
	"github.com/BaSui01/cardflow/llm/providers/modelscope"
	"github.com/BaSui01/cardflow/llm/providers/openaicompat"
	"github.com/BaSui01/cardflow/llm/resolver"
	"github.com/BaSui01/cardflow/orchestrator"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装存储、适配器、编排服务与 HTTP 入口
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry   *telemetry.Providers
	instruments *telemetry.Instruments
	registry    *prometheus.Registry
	collector   *metrics.Collector

	pool    *database.PoolManager
	store   *store.Store
	service *orchestrator.Service
}

// NewServer 初始化全部依赖；数据库不可用时返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = otelProviders

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector("cardflow", s.registry, logger)

	// OTLP 指标与 Prometheus 并行记录；创建失败只影响 OTLP 一侧
	if s.instruments, err = telemetry.NewInstruments(s.telemetry.Meter("github.com/BaSui01/cardflow")); err != nil {
		logger.Warn("failed to create otel instruments", zap.Error(err))
	}

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		s.shutdownTelemetry(ctx)
		return nil, err
	}
	s.pool, err = database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), logger,
		database.WithStatsRecorder(cfg.Database.Driver, s.collector))
	if err != nil {
		s.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("create pool manager: %w", err)
	}

	s.store = store.New(db, logger)
	if err := s.store.Migrate(ctx); err != nil {
		s.close(ctx)
		return nil, err
	}

	s.service = s.newService()
	return s, nil
}

func (s *Server) newService() *orchestrator.Service {
	gen := s.cfg.Generation

	pl := poller.New(gen.PollInterval, gen.PollMaxAttempts, s.logger)
	var (
		recorder orchestrator.Recorder = s.collector
		observer poller.Observer       = s.collector
	)
	if s.instruments != nil {
		recorder = orchestrator.Recorders(s.collector, s.instruments)
		observer = poller.Observers(s.collector, s.instruments)
	}
	pl.Observer = observer

	opts := providers.Options{Timeout: gen.HTTPTimeout, ErrorBodyLimit: gen.ErrorBodyLimit}
	adapters := providers.NewRegistry(
		openaicompat.New(openaicompat.Config{Options: opts}, s.logger),
		dashscope.New(dashscope.Config{Options: opts}, pl, s.logger),
		modelscope.New(modelscope.Config{Options: opts}, pl, s.logger),
	)

	options := []orchestrator.Option{
		orchestrator.WithPromptStore(s.store),
		orchestrator.WithFetcher(scraper.New(s.cfg.Scraper, nil, s.logger)),
		orchestrator.WithRecorder(recorder),
		orchestrator.WithTracer(s.telemetry.Tracer("github.com/BaSui01/cardflow/orchestrator")),
	}
	return orchestrator.New(resolver.New(s.store, s.logger), adapters, orchestrator.OptionsFromConfig(gen), s.logger, options...)
}

// =============================================================================
// 🌐 HTTP
// =============================================================================

// Handler 构建 API 路由与中间件链
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.pool.Ping))
	health.Register(mux, handlers.VersionInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit})

	handlers.NewGenerateHandler(s.service, s.logger).Register(mux)
	handlers.NewProfileHandler(s.store, s.service, s.logger).Register(mux)

	srv := s.cfg.Server
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(srv.CORSAllowedOrigins),
		RateLimiter(ctx, srv.RateLimitRPS, srv.RateLimitBurst, s.logger),
	)
}

// Run 启动 API 与 Metrics 服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	defer s.close(context.WithoutCancel(ctx))

	srv := s.cfg.Server
	g, gctx := errgroup.WithContext(ctx)

	api := server.NewManager(s.Handler(gctx), server.ConfigFrom("api", srv, srv.HTTPPort), s.logger)
	g.Go(func() error { return api.Run(gctx) })

	if srv.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
		metricsServer := server.NewManager(mux, server.ConfigFrom("metrics", srv, srv.MetricsPort), s.logger)
		g.Go(func() error { return metricsServer.Run(gctx) })
	}

	s.logger.Info("CardFlow started",
		zap.Int("http_port", srv.HTTPPort),
		zap.Int("metrics_port", srv.MetricsPort),
		zap.String("database", s.cfg.Database.Driver))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// =============================================================================
// 🛑 关闭
// =============================================================================

func (s *Server) close(ctx context.Context) {
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
	}
	s.shutdownTelemetry(ctx)
	s.logger.Info("Graceful shutdown completed")
}

func (s *Server) shutdownTelemetry(ctx context.Context) {
	if s.telemetry == nil {
		return
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
}
