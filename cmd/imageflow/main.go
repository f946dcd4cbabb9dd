// =============================================================================
// ImageFlow 主入口
// =============================================================================
// 多厂商图像生成引擎的可执行入口, 包含 HTTP 服务与一次性生成命令
//
// 使用方法:
//
//	imageflow serve                       # 启动 HTTP 服务
//	imageflow serve --config config.yaml  # 指定配置文件
//	imageflow generate --config config.yaml --provider doubao --prompt "..."
//	imageflow version                     # 显示版本信息
//	imageflow health                      # 健康检查
// =============================================================================

// @title ImageFlow API
// @version 1.0.0
// @description ImageFlow is a resilient multi-provider image generation engine with API key rotation, rate limiting and automatic retry.
// @description
// @description ## Features
// @description - Multi-provider adapters (Doubao, Google, GLM, Grok2, WhatAI, Zai, OpenAI-compatible)
// @description - API key pool with daily quota tracking and rotation
// @description - Group rate limiting with sliding windows
// @description - Runtime config management API (hot reload, history)
// @description - Health monitoring and Prometheus metrics

// @contact.name ImageFlow Team
// @contact.url https://github.com/BaSui01/imageflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow"
	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/imagegen"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "generate":
		runGenerate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", ":8080", "Public API listen address")
	apiKeys := fs.String("api-keys", "", "Comma-separated API keys for public API auth (empty disables)")
	corsOrigins := fs.String("cors", "", "Comma-separated allowed CORS origins")
	fs.Parse(args)

	cfg, engine := buildEngine(*configPath)
	defer engine.Close()

	logger := engine.Logger()
	logger.Info("Starting ImageFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// /version 端点读取包级构建信息
	imageflow.Version = Version
	imageflow.BuildTime = BuildTime
	imageflow.GitCommit = GitCommit

	srv := NewServer(engine, ServerOptions{
		Addr:         *addr,
		APIKeys:      splitList(*apiKeys),
		CORSOrigins:  splitList(*corsOrigins),
		AdminEnabled: cfg.Server.AdminPort > 0,
	})

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
	logger.Info("ImageFlow stopped")
}

// =============================================================================
// 🖼️ generate 命令
// =============================================================================

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	provider := fs.String("provider", "", "Provider name (doubao, google, glm, ...)")
	prompt := fs.String("prompt", "", "Text prompt")
	model := fs.String("model", "", "Model override")
	size := fs.String("size", "", "Resolution (1K, 2K, 4K)")
	aspect := fs.String("aspect", "", "Aspect ratio (1:1, 16:9, ...)")
	count := fs.Int("count", 0, "Number of images")
	group := fs.String("group", "", "Rate limit group ID")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall timeout")
	fs.Parse(args)

	if *provider == "" || *prompt == "" {
		fmt.Fprintln(os.Stderr, "generate requires --provider and --prompt")
		os.Exit(1)
	}

	_, engine := buildEngine(*configPath)
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rc := &imagegen.RequestConfig{
		Provider:    *provider,
		Prompt:      *prompt,
		Model:       *model,
		Resolution:  *size,
		AspectRatio: *aspect,
		Count:       *count,
	}

	opts := imagegen.GenerateOptions{
		MaxAttemptsPerKey: engine.Config().Retry.MaxAttemptsPerKey,
		PerRetryTimeout:   engine.Config().Retry.PerRetryTimeout,
		MaxTotalTime:      engine.Config().Retry.MaxTotalTime,
		GroupID:           *group,
	}

	result, err := engine.GenerateWithOptions(ctx, rc, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
		os.Exit(1)
	}

	for _, img := range result.Images {
		if img.LocalPath != "" {
			fmt.Println(img.LocalPath)
		} else {
			fmt.Println(img.URL)
		}
	}
	if result.Text != "" {
		fmt.Println(result.Text)
	}
}

// buildEngine 加载配置并装配引擎, 失败直接退出
func buildEngine(configPath string) (*config.Config, *imageflow.Engine) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts []imageflow.Option
	if configPath != "" {
		opts = append(opts, imageflow.WithConfigFile(configPath))
	}

	engine, err := imageflow.New(cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build engine: %v\n", err)
		os.Exit(1)
	}
	return cfg, engine
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ImageFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ImageFlow - Multi-Provider Image Generation Engine

Usage:
  imageflow <command> [options]

Commands:
  serve     Start the ImageFlow HTTP server
  generate  Run a one-shot image generation
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)
  --addr <addr>     Public API listen address (default :8080)
  --api-keys <k,..> API keys for public API auth (empty disables)
  --cors <o,..>     Allowed CORS origins

Options for 'generate':
  --config <path>   Path to configuration file (YAML)
  --provider <name> Provider name (doubao, google, glm, ...)
  --prompt <text>   Text prompt
  --size <res>      Resolution (1K, 2K, 4K)
  --aspect <ratio>  Aspect ratio (1:1, 16:9, ...)
  --count <n>       Number of images

Examples:
  imageflow serve --config /etc/imageflow/config.yaml
  imageflow generate --config config.yaml --provider doubao --prompt "a red fox"
  imageflow health --addr http://localhost:8080
  imageflow version`)
}
