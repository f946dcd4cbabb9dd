// =============================================================================
// 📦 ImageFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/store"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{},
		RateLimit: DefaultRateLimitConfig(),
		Retry:     DefaultRetryConfig(),
		Store:     store.DefaultConfig(),
		Images:    DefaultImagesConfig(),
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultRateLimitConfig 返回默认限流配置: 默认规则关闭, 无条件放行
func DefaultRateLimitConfig() imagegen.RateLimiterConfig {
	return imagegen.RateLimiterConfig{
		GroupLimitMode: imagegen.GroupLimitOff,
		DefaultRule: imagegen.RateLimitRule{
			Name:          "default",
			Enabled:       false,
			WindowSeconds: 60,
			MaxRequests:   10,
		},
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttemptsPerKey: 3,
		PerRetryTimeout:   3 * time.Minute,
		MaxTotalTime:      0,
		InitialDelay:      2 * time.Second,
		MaxDelay:          10 * time.Second,
		Multiplier:        2.0,
	}
}

// DefaultImagesConfig 返回默认图像配置
func DefaultImagesConfig() ImagesConfig {
	return ImagesConfig{
		Dir:              "",
		Localize:         true,
		FetchTimeout:     60 * time.Second,
		FetchParallelism: 4,
	}
}

// DefaultServerConfig 返回默认管理 API 配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		AdminPort:       0,
		AdminAPIKey:     "",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
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
