// =============================================================================
// 📦 ImageFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("IMAGEFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/store"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ImageFlow 的完整配置结构
type Config struct {
	// Providers 各图像供应商的 Key 池与请求参数, 键为供应商标识
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers" env:"-"`

	// RateLimit 群组限流配置
	RateLimit imagegen.RateLimiterConfig `json:"rate_limit" yaml:"rate_limit" env:"-"`

	// Retry 重试与退避配置
	Retry RetryConfig `json:"retry" yaml:"retry" env:"RETRY"`

	// Store 配额计数与限流窗口的持久化后端
	Store store.Config `json:"store" yaml:"store" env:"-"`

	// Images 图像落盘与 URL 下载配置
	Images ImagesConfig `json:"images" yaml:"images" env:"IMAGES"`

	// Server 管理 API 与指标端口配置
	Server ServerConfig `json:"server" yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `json:"log" yaml:"log" env:"LOG"`
}

// ProviderConfig 单个供应商的配置: Key 池 + 适配器请求参数
type ProviderConfig struct {
	// API Key 池, 轮换顺序即列表顺序
	APIKeys []string `json:"api_keys" yaml:"api_keys"`
	// 每个 Key 的日配额, 0 表示不限制
	DailyLimitPerKey int `json:"daily_limit_per_key" yaml:"daily_limit_per_key"`
	// API 基础地址, 留空使用各供应商默认值
	APIBase string `json:"api_base" yaml:"api_base"`
	// 模型名称
	Model string `json:"model" yaml:"model"`
	// 默认分辨率
	DefaultSize string `json:"default_size" yaml:"default_size"`
	// 水印开关, 留空沿用供应商默认
	Watermark *bool `json:"watermark,omitempty" yaml:"watermark,omitempty"`
	// 提示词优化模式: standard, fast
	OptimizePromptMode string `json:"optimize_prompt_mode" yaml:"optimize_prompt_mode"`
	// 组图生成: auto, disabled
	SequentialImageGeneration string `json:"sequential_image_generation" yaml:"sequential_image_generation"`
	// 组图最大张数
	SequentialMaxImages int `json:"sequential_max_images" yaml:"sequential_max_images"`
	// OpenAI 兼容供应商的来源标头
	HTTPReferer string `json:"http_referer" yaml:"http_referer"`
	XTitle      string `json:"x_title" yaml:"x_title"`
	// 最大 Token 数
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
	// 单次请求超时
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// RetryConfig 重试与退避配置
type RetryConfig struct {
	// 每个 Key 的最大尝试次数
	MaxAttemptsPerKey int `json:"max_attempts_per_key" yaml:"max_attempts_per_key" env:"MAX_ATTEMPTS_PER_KEY"`
	// 单次尝试超时
	PerRetryTimeout time.Duration `json:"per_retry_timeout" yaml:"per_retry_timeout" env:"PER_RETRY_TIMEOUT"`
	// 整个请求的时间预算, 0 表示不限制
	MaxTotalTime time.Duration `json:"max_total_time" yaml:"max_total_time" env:"MAX_TOTAL_TIME"`
	// 首次重试延迟
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 重试延迟上限
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" env:"MAX_DELAY"`
	// 延迟倍增因子
	Multiplier float64 `json:"multiplier" yaml:"multiplier" env:"MULTIPLIER"`
}

// ImagesConfig 图像落盘与下载配置
type ImagesConfig struct {
	// 本地保存目录, 留空使用系统临时目录
	Dir string `json:"dir" yaml:"dir" env:"DIR"`
	// 是否把 URL 形式的结果下载到本地
	Localize bool `json:"localize" yaml:"localize" env:"LOCALIZE"`
	// 单张图片的下载超时
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	// 并发下载数
	FetchParallelism int `json:"fetch_parallelism" yaml:"fetch_parallelism" env:"FETCH_PARALLELISM"`
}

// ServerConfig 管理 API 配置
type ServerConfig struct {
	// 管理 API 端口, 0 表示不启动
	AdminPort int `json:"admin_port" yaml:"admin_port" env:"ADMIN_PORT"`
	// 管理 API 的鉴权 Key, 留空表示不鉴权
	AdminAPIKey string `json:"admin_api_key" yaml:"admin_api_key" env:"ADMIN_API_KEY"`
	// 读取超时
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `json:"level" yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `json:"format" yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `json:"output_paths" yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `json:"enable_stacktrace" yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
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
		envPrefix:  "IMAGEFLOW",
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
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
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

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
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

	for name, p := range c.Providers {
		if len(p.APIKeys) == 0 {
			errs = append(errs, fmt.Sprintf("provider %s has no api_keys", name))
		}
		if p.DailyLimitPerKey < 0 {
			errs = append(errs, fmt.Sprintf("provider %s daily_limit_per_key must not be negative", name))
		}
		if p.SequentialMaxImages != 0 &&
			(p.SequentialMaxImages < providers.SequentialImagesMin || p.SequentialMaxImages > providers.SequentialImagesMax) {
			errs = append(errs, fmt.Sprintf("provider %s sequential_max_images must be between %d and %d",
				name, providers.SequentialImagesMin, providers.SequentialImagesMax))
		}
	}

	if c.Retry.MaxAttemptsPerKey <= 0 {
		errs = append(errs, "retry.max_attempts_per_key must be positive")
	}
	if c.Retry.Multiplier < 1.0 {
		errs = append(errs, "retry.multiplier must be at least 1")
	}
	if c.Retry.PerRetryTimeout <= 0 {
		errs = append(errs, "retry.per_retry_timeout must be positive")
	}

	for _, rule := range append(append([]imagegen.RateLimitRule{}, c.RateLimit.Rules...), c.RateLimit.DefaultRule) {
		if rule.Enabled && (rule.WindowSeconds <= 0 || rule.MaxRequests <= 0) {
			errs = append(errs, fmt.Sprintf("rate limit rule %q needs positive window_seconds and max_requests", rule.Name))
		}
	}

	if c.Images.FetchParallelism < 0 {
		errs = append(errs, "images.fetch_parallelism must not be negative")
	}
	if c.Server.AdminPort < 0 || c.Server.AdminPort > 65535 {
		errs = append(errs, "invalid admin port")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// KeyPools 转换为 Key 管理器使用的池配置
func (c *Config) KeyPools() map[string]imagegen.KeyPoolConfig {
	pools := make(map[string]imagegen.KeyPoolConfig, len(c.Providers))
	for name, p := range c.Providers {
		pools[name] = imagegen.KeyPoolConfig{
			APIKeys:          p.APIKeys,
			DailyLimitPerKey: p.DailyLimitPerKey,
		}
	}
	return pools
}

// ProviderSettings 转换为各适配器使用的请求参数
func (c *Config) ProviderSettings() map[string]providers.Config {
	settings := make(map[string]providers.Config, len(c.Providers))
	for name, p := range c.Providers {
		settings[name] = providers.Config{
			APIBase:                   p.APIBase,
			Model:                     p.Model,
			DefaultSize:               p.DefaultSize,
			Watermark:                 p.Watermark,
			OptimizePromptMode:        p.OptimizePromptMode,
			SequentialImageGeneration: p.SequentialImageGeneration,
			SequentialMaxImages:       p.SequentialMaxImages,
			HTTPReferer:               p.HTTPReferer,
			XTitle:                    p.XTitle,
			MaxTokens:                 p.MaxTokens,
			Timeout:                   p.Timeout,
		}
	}
	return settings
}

// Backoff 转换为退避策略
func (c *Config) Backoff() imagegen.BackoffPolicy {
	return imagegen.BackoffPolicy{
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   c.Retry.Multiplier,
	}
}
