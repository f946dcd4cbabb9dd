package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow"
	"github.com/BaSui01/imageflow/internal/server"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 把 Engine 的公开 API 包上中间件链并管理生命周期
type Server struct {
	engine *imageflow.Engine
	opts   ServerOptions
	logger *zap.Logger

	httpManager *server.Manager

	// Rate limiter 清理 goroutine 的生命周期
	rateLimiterCancel context.CancelFunc
}

// ServerOptions serve 命令的运行参数
type ServerOptions struct {
	// Addr 公开 API 监听地址
	Addr string

	// APIKeys 公开 API 的鉴权 Key 列表, 空表示不鉴权
	APIKeys []string

	// CORSOrigins 允许的跨域来源
	CORSOrigins []string

	// AdminEnabled 是否启动管理 API（端口取自引擎配置）
	AdminEnabled bool

	// RateLimitRPS 每 IP 每秒请求数, 0 取默认值 10
	RateLimitRPS float64

	// RateLimitBurst 每 IP 突发额度, 0 取默认值 20
	RateLimitBurst int
}

func (o ServerOptions) withDefaults() ServerOptions {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.RateLimitRPS <= 0 {
		o.RateLimitRPS = 10
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 20
	}
	return o
}

// NewServer 创建服务器实例
func NewServer(engine *imageflow.Engine, opts ServerOptions) *Server {
	return &Server{
		engine: engine,
		opts:   opts.withDefaults(),
		logger: engine.Logger(),
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动公开 API 服务器与管理 API
func (s *Server) Start() error {
	// 鉴权豁免路径: 探活端点不需要 API Key
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.engine.Handler(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.opts.CORSOrigins),
		RateLimiter(rateLimiterCtx, s.opts.RateLimitRPS, s.opts.RateLimitBurst, s.logger),
		APIKeyAuth(s.opts.APIKeys, skipAuthPaths, s.logger),
	)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = s.opts.Addr
	if t := s.engine.Config().Server.ReadTimeout; t > 0 {
		srvCfg.ReadTimeout = t
		srvCfg.IdleTimeout = 2 * t
	}
	if t := s.engine.Config().Server.WriteTimeout; t > 0 {
		// 生成请求要等上游画完图, 写超时至少放宽到重试预算
		srvCfg.WriteTimeout = t
	} else {
		srvCfg.WriteTimeout = 15 * time.Minute
	}
	if t := s.engine.Config().Server.ShutdownTimeout; t > 0 {
		srvCfg.ShutdownTimeout = t
	}

	s.httpManager = server.NewManager(handler, srvCfg, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.String("addr", s.opts.Addr))

	if s.opts.AdminEnabled {
		if err := s.engine.StartAdmin(context.Background()); err != nil {
			return err
		}
	}

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

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(context.Background()); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// Engine.Close 负责管理服务器、热重载管理器与持久化后端
	if err := s.engine.Close(); err != nil {
		s.logger.Error("Engine shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
