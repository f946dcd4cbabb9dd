// Package imageflow provides a top-level convenience entry point for running
// the multi-provider image generation engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/imageflow"
//
//	cfg, err := config.MustLoad("config.yaml"), or config.DefaultConfig()
//	engine, err := imageflow.New(cfg)
//	defer engine.Close()
//
//	result, err := engine.Generate(ctx, &imagegen.RequestConfig{
//	    Provider: "doubao",
//	    Prompt:   "a cat wearing sunglasses",
//	})
//
// Engine wires the key manager, rate limiter, provider registry, retry
// orchestrator and image fetcher from a single Config. For HTTP serving,
// Handler returns the public REST API and StartAdmin runs the management
// API on a separate port.
package imageflow

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/imageflow/api/handlers"
	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/factory"
	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/internal/server"
	"github.com/BaSui01/imageflow/store"
)

// 构建信息, 通过 -ldflags 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 引擎装配
// =============================================================================

// Engine 聚合图像生成引擎的全部组件.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	kv        store.KVStore
	images    *imagegen.LocalStore
	registry  *factory.Registry
	keys      *imagegen.KeyManager
	limiter   *imagegen.RateLimiter
	client    *imagegen.Client
	fetcher   *imagegen.Fetcher
	collector *metrics.Collector

	reload *config.HotReloadManager
	admin  *server.Manager
}

type engineOptions struct {
	logger     *zap.Logger
	httpClient *http.Client
	kv         store.KVStore
	collector  *metrics.Collector
	configPath string
}

// Option 配置 Engine 的可选依赖.
type Option func(*engineOptions)

// WithLogger 注入自定义日志器, 覆盖 Log 配置段.
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithHTTPClient 注入自定义 HTTP 客户端, 供上游请求与图像下载共用.
func WithHTTPClient(client *http.Client) Option {
	return func(o *engineOptions) { o.httpClient = client }
}

// WithKVStore 注入已构建的持久化后端, 覆盖 Store 配置段.
func WithKVStore(kv store.KVStore) Option {
	return func(o *engineOptions) { o.kv = kv }
}

// WithMetrics 注入指标收集器. 同一进程创建多个 Engine 时必须共享
// 一个收集器, 否则 Prometheus 会因重复注册而 panic.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *engineOptions) { o.collector = collector }
}

// WithConfigFile 记录配置文件路径, 管理 API 的 reload 操作会从该文件重载.
func WithConfigFile(path string) Option {
	return func(o *engineOptions) { o.configPath = path }
}

// New 根据配置装配引擎.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = newLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	kv := o.kv
	if kv == nil {
		var err error
		kv, err = store.New(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
	}

	imagesDir := cfg.Images.Dir
	if imagesDir == "" {
		imagesDir = filepath.Join(os.TempDir(), "imageflow")
	}
	images, err := imagegen.NewLocalStore(imagesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}

	collector := o.collector
	if collector == nil {
		collector = metrics.NewCollector("imageflow", logger)
	}

	registry := factory.New(factory.Options{
		Providers: cfg.ProviderSettings(),
		Images:    images,
		Logger:    logger,
	})

	keys := imagegen.NewKeyManager(cfg.KeyPools(), kv, logger)
	limiter := imagegen.NewRateLimiter(cfg.RateLimit, kv, logger)

	client := imagegen.NewClient(registry, keys, imagegen.ClientConfig{
		HTTPClient: o.httpClient,
		Backoff:    cfg.Backoff(),
		Limiter:    limiter,
		Metrics:    collector,
		Logger:     logger,
	})

	var fetcher *imagegen.Fetcher
	if cfg.Images.Localize {
		fetcher = imagegen.NewFetcher(o.httpClient, images, logger).
			WithTimeout(cfg.Images.FetchTimeout).
			WithParallelism(cfg.Images.FetchParallelism)
	}

	reloadOpts := []config.HotReloadOption{config.WithHotReloadLogger(logger)}
	if o.configPath != "" {
		reloadOpts = append(reloadOpts, config.WithConfigPath(o.configPath))
	}
	reload := config.NewHotReloadManager(cfg, reloadOpts...)

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		kv:        kv,
		images:    images,
		registry:  registry,
		keys:      keys,
		limiter:   limiter,
		client:    client,
		fetcher:   fetcher,
		collector: collector,
		reload:    reload,
	}, nil
}

// =============================================================================
// 🖼️ 生成接口
// =============================================================================

// Generate 执行一次图像生成, 重试预算取 Retry 配置段.
func (e *Engine) Generate(ctx context.Context, rc *imagegen.RequestConfig) (*imagegen.Result, error) {
	return e.GenerateWithOptions(ctx, rc, e.generateOptions())
}

// GenerateWithOptions 执行一次图像生成, 由调用方控制重试预算与限流组.
func (e *Engine) GenerateWithOptions(ctx context.Context, rc *imagegen.RequestConfig, opts imagegen.GenerateOptions) (*imagegen.Result, error) {
	result, err := e.client.Generate(ctx, rc, opts)
	if err != nil {
		return nil, err
	}
	if e.fetcher != nil && len(result.Images) > 0 {
		result.Images = e.fetcher.Localize(ctx, result.Images)
	}
	return result, nil
}

func (e *Engine) generateOptions() imagegen.GenerateOptions {
	return imagegen.GenerateOptions{
		MaxAttemptsPerKey: e.cfg.Retry.MaxAttemptsPerKey,
		PerRetryTimeout:   e.cfg.Retry.PerRetryTimeout,
		MaxTotalTime:      e.cfg.Retry.MaxTotalTime,
	}
}

// =============================================================================
// 🌐 HTTP 接口
// =============================================================================

// Handler 返回公开 REST API 的 http.Handler.
func (e *Engine) Handler() http.Handler {
	gen := handlers.NewGenerateHandler(e.client, e.fetcher, e.generateOptions(), e.logger)
	pools := handlers.NewKeyPoolHandler(e.keys, e.logger)
	provs := handlers.NewProvidersHandler(e.keys, e.cfg.ProviderSettings(), e.logger)

	health := handlers.NewHealthHandler(e.logger)
	health.RegisterCheck(handlers.NewStoreHealthCheck("store", e.kv))
	health.RegisterCheck(handlers.NewImageDirHealthCheck("images", e.images.Dir()))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/images/generate", gen.HandleGenerate)
	mux.HandleFunc("GET /api/v1/providers", provs.HandleListProviders)
	mux.HandleFunc("GET /api/v1/keys", pools.HandleListPools)
	mux.HandleFunc("GET /api/v1/keys/{provider}", pools.HandlePoolStatus)
	mux.HandleFunc("POST /api/v1/keys/{provider}/rotate", pools.HandleRotate)
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/healthz", health.HandleHealthz)
	mux.HandleFunc("/ready", health.HandleReady)
	mux.HandleFunc("/version", health.HandleVersion(Version, BuildTime, GitCommit))
	return mux
}

// AdminHandler 返回管理 API 的 http.Handler: 配置读写、热重载与指标.
func (e *Engine) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	config.NewAPI(e.reload, e.cfg.Server.AdminAPIKey).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartAdmin 启动管理 API 服务器. AdminPort 为 0 时不启动.
func (e *Engine) StartAdmin(ctx context.Context) error {
	if e.cfg.Server.AdminPort <= 0 {
		return nil
	}
	if e.admin != nil {
		return fmt.Errorf("admin server already started")
	}

	if err := e.reload.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = fmt.Sprintf(":%d", e.cfg.Server.AdminPort)
	if e.cfg.Server.ReadTimeout > 0 {
		srvCfg.ReadTimeout = e.cfg.Server.ReadTimeout
	}
	if e.cfg.Server.WriteTimeout > 0 {
		srvCfg.WriteTimeout = e.cfg.Server.WriteTimeout
	}
	if e.cfg.Server.ShutdownTimeout > 0 {
		srvCfg.ShutdownTimeout = e.cfg.Server.ShutdownTimeout
	}

	e.admin = server.NewManager(e.AdminHandler(), srvCfg, e.logger)
	if err := e.admin.Start(); err != nil {
		return fmt.Errorf("failed to start admin server: %w", err)
	}
	e.logger.Info("admin API started", zap.Int("port", e.cfg.Server.AdminPort))
	return nil
}

// =============================================================================
// 🔧 访问器与生命周期
// =============================================================================

// Client 返回底层编排器.
func (e *Engine) Client() *imagegen.Client { return e.client }

// Keys 返回 Key 池管理器.
func (e *Engine) Keys() *imagegen.KeyManager { return e.keys }

// Limiter 返回群组限流器.
func (e *Engine) Limiter() *imagegen.RateLimiter { return e.limiter }

// Config 返回装配时的配置.
func (e *Engine) Config() *config.Config { return e.cfg }

// Logger 返回引擎日志器.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Close 关闭管理服务器、热重载管理器与持久化后端.
func (e *Engine) Close() error {
	var firstErr error

	if e.admin != nil {
		if err := e.admin.Shutdown(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
		e.admin = nil
	}

	if err := e.reload.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	if e.kv != nil {
		if err := e.kv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// newLogger 根据 Log 配置段构建 zap 日志器.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoding := cfg.Format
	if encoding == "" {
		encoding = "json"
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	if encoding == "console" {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	return zapCfg.Build()
}
