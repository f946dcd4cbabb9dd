// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/store"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证重试默认值
	assert.Equal(t, 3, cfg.Retry.MaxAttemptsPerKey)
	assert.Equal(t, 3*time.Minute, cfg.Retry.PerRetryTimeout)
	assert.Equal(t, time.Duration(0), cfg.Retry.MaxTotalTime)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)

	// 验证限流默认值: 默认规则关闭
	assert.Equal(t, imagegen.GroupLimitOff, cfg.RateLimit.GroupLimitMode)
	assert.False(t, cfg.RateLimit.DefaultRule.Enabled)

	// 验证存储默认值
	assert.Equal(t, store.TypeMemory, cfg.Store.Type)

	// 验证图像默认值
	assert.True(t, cfg.Images.Localize)
	assert.Equal(t, 60*time.Second, cfg.Images.FetchTimeout)
	assert.Equal(t, 4, cfg.Images.FetchParallelism)

	// 验证管理 API 默认值: 不启动
	assert.Equal(t, 0, cfg.Server.AdminPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	// 验证 Log 默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 默认没有供应商
	assert.Empty(t, cfg.Providers)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3, cfg.Retry.MaxAttemptsPerKey)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
providers:
  doubao:
    api_keys: ["key-one", "key-two"]
    daily_limit_per_key: 500
    model: "doubao-seedream-4.5"
    default_size: "2K"
  gemini:
    api_keys: ["g-key"]
    api_base: "https://proxy.example.com/v1beta"

rate_limit:
  group_limit_mode: "whitelist"
  group_limit_list: ["team-a"]
  default_rule:
    name: "default"
    enabled: true
    window_seconds: 60
    max_requests: 30

retry:
  max_attempts_per_key: 5
  per_retry_timeout: 90s
  max_total_time: 10m

store:
  type: "redis"
  redis:
    host: "redis.example.com"
    port: 6380
    key_prefix: "flow:"

images:
  dir: "/var/lib/imageflow"
  localize: false

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	require.Contains(t, cfg.Providers, "doubao")
	assert.Equal(t, []string{"key-one", "key-two"}, cfg.Providers["doubao"].APIKeys)
	assert.Equal(t, 500, cfg.Providers["doubao"].DailyLimitPerKey)
	assert.Equal(t, "doubao-seedream-4.5", cfg.Providers["doubao"].Model)
	assert.Equal(t, "2K", cfg.Providers["doubao"].DefaultSize)

	require.Contains(t, cfg.Providers, "gemini")
	assert.Equal(t, "https://proxy.example.com/v1beta", cfg.Providers["gemini"].APIBase)

	assert.Equal(t, imagegen.GroupLimitWhitelist, cfg.RateLimit.GroupLimitMode)
	assert.Equal(t, []string{"team-a"}, cfg.RateLimit.GroupLimitList)
	assert.True(t, cfg.RateLimit.DefaultRule.Enabled)
	assert.Equal(t, 30, cfg.RateLimit.DefaultRule.MaxRequests)

	assert.Equal(t, 5, cfg.Retry.MaxAttemptsPerKey)
	assert.Equal(t, 90*time.Second, cfg.Retry.PerRetryTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Retry.MaxTotalTime)

	assert.Equal(t, store.TypeRedis, cfg.Store.Type)
	assert.Equal(t, "redis.example.com", cfg.Store.Redis.Host)
	assert.Equal(t, 6380, cfg.Store.Redis.Port)
	assert.Equal(t, "flow:", cfg.Store.Redis.KeyPrefix)

	assert.Equal(t, "/var/lib/imageflow", cfg.Images.Dir)
	assert.False(t, cfg.Images.Localize)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	// 设置环境变量
	envVars := map[string]string{
		"IMAGEFLOW_RETRY_MAX_ATTEMPTS_PER_KEY": "7",
		"IMAGEFLOW_RETRY_PER_RETRY_TIMEOUT":    "45s",
		"IMAGEFLOW_RETRY_MULTIPLIER":           "1.5",
		"IMAGEFLOW_IMAGES_DIR":                 "/tmp/flow-images",
		"IMAGEFLOW_IMAGES_LOCALIZE":            "false",
		"IMAGEFLOW_SERVER_ADMIN_PORT":          "9188",
		"IMAGEFLOW_LOG_LEVEL":                  "warn",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	// 加载配置
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	// 验证环境变量覆盖了默认值
	assert.Equal(t, 7, cfg.Retry.MaxAttemptsPerKey)
	assert.Equal(t, 45*time.Second, cfg.Retry.PerRetryTimeout)
	assert.Equal(t, 1.5, cfg.Retry.Multiplier)
	assert.Equal(t, "/tmp/flow-images", cfg.Images.Dir)
	assert.False(t, cfg.Images.Localize)
	assert.Equal(t, 9188, cfg.Server.AdminPort)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
retry:
  max_attempts_per_key: 5
log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 设置环境变量（应该覆盖 YAML）
	os.Setenv("IMAGEFLOW_RETRY_MAX_ATTEMPTS_PER_KEY", "9")
	os.Setenv("IMAGEFLOW_LOG_LEVEL", "error")
	defer func() {
		os.Unsetenv("IMAGEFLOW_RETRY_MAX_ATTEMPTS_PER_KEY")
		os.Unsetenv("IMAGEFLOW_LOG_LEVEL")
	}()

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 环境变量应该覆盖 YAML
	assert.Equal(t, 9, cfg.Retry.MaxAttemptsPerKey)
	assert.Equal(t, "error", cfg.Log.Level)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	// 设置自定义前缀的环境变量
	os.Setenv("MYAPP_LOG_LEVEL", "debug")
	os.Setenv("MYAPP_SERVER_ADMIN_PORT", "6666")
	defer func() {
		os.Unsetenv("MYAPP_LOG_LEVEL")
		os.Unsetenv("MYAPP_SERVER_ADMIN_PORT")
	}()

	// 使用自定义前缀加载
	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 6666, cfg.Server.AdminPort)
}

func TestLoader_WithValidator(t *testing.T) {
	// 添加验证器
	validator := func(cfg *Config) error {
		if cfg.Retry.MaxAttemptsPerKey > 5 {
			return assert.AnError
		}
		return nil
	}

	// 设置超出验证器允许的值
	os.Setenv("IMAGEFLOW_RETRY_MAX_ATTEMPTS_PER_KEY", "10")
	defer os.Unsetenv("IMAGEFLOW_RETRY_MAX_ATTEMPTS_PER_KEY")

	// 加载应该失败
	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 指定不存在的文件，应该使用默认值（不报错）
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// 应该返回默认值
	assert.Equal(t, 3, cfg.Retry.MaxAttemptsPerKey)
}

func TestLoader_InvalidYAML(t *testing.T) {
	// 创建无效的 YAML 文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
retry:
  max_attempts_per_key: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	// 加载应该失败
	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid provider",
			modify: func(c *Config) {
				c.Providers["doubao"] = ProviderConfig{
					APIKeys:          []string{"key-one"},
					DailyLimitPerKey: 100,
				}
			},
			wantErr: false,
		},
		{
			name: "provider without keys",
			modify: func(c *Config) {
				c.Providers["doubao"] = ProviderConfig{}
			},
			wantErr: true,
		},
		{
			name: "negative daily limit",
			modify: func(c *Config) {
				c.Providers["doubao"] = ProviderConfig{
					APIKeys:          []string{"key-one"},
					DailyLimitPerKey: -1,
				}
			},
			wantErr: true,
		},
		{
			name: "sequential max images out of range",
			modify: func(c *Config) {
				c.Providers["doubao"] = ProviderConfig{
					APIKeys:             []string{"key-one"},
					SequentialMaxImages: 30,
				}
			},
			wantErr: true,
		},
		{
			name: "zero max attempts per key",
			modify: func(c *Config) {
				c.Retry.MaxAttemptsPerKey = 0
			},
			wantErr: true,
		},
		{
			name: "multiplier below one",
			modify: func(c *Config) {
				c.Retry.Multiplier = 0.5
			},
			wantErr: true,
		},
		{
			name: "enabled rule with zero window",
			modify: func(c *Config) {
				c.RateLimit.Rules = []imagegen.RateLimitRule{
					{Name: "broken", Enabled: true, WindowSeconds: 0, MaxRequests: 10},
				}
			},
			wantErr: true,
		},
		{
			name: "invalid admin port",
			modify: func(c *Config) {
				c.Server.AdminPort = 70000
			},
			wantErr: true,
		},
		{
			name: "negative fetch parallelism",
			modify: func(c *Config) {
				c.Images.FetchParallelism = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_KeyPools(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["doubao"] = ProviderConfig{
		APIKeys:          []string{"key-one", "key-two"},
		DailyLimitPerKey: 200,
		Model:            "doubao-seedream-4.5",
	}

	pools := cfg.KeyPools()
	require.Contains(t, pools, "doubao")
	assert.Equal(t, []string{"key-one", "key-two"}, pools["doubao"].APIKeys)
	assert.Equal(t, 200, pools["doubao"].DailyLimitPerKey)
}

func TestConfig_ProviderSettings(t *testing.T) {
	watermark := false
	cfg := DefaultConfig()
	cfg.Providers["doubao"] = ProviderConfig{
		APIKeys:             []string{"key-one"},
		APIBase:             "https://ark.example.com/v3",
		Model:               "doubao-seedream-4.5",
		DefaultSize:         "2K",
		Watermark:           &watermark,
		SequentialMaxImages: 4,
	}

	settings := cfg.ProviderSettings()
	require.Contains(t, settings, "doubao")
	assert.Equal(t, "https://ark.example.com/v3", settings["doubao"].APIBase)
	assert.Equal(t, "doubao-seedream-4.5", settings["doubao"].Model)
	assert.Equal(t, "2K", settings["doubao"].DefaultSize)
	require.NotNil(t, settings["doubao"].Watermark)
	assert.False(t, *settings["doubao"].Watermark)
	assert.Equal(t, 4, settings["doubao"].SequentialMaxImages)
}

func TestConfig_Backoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.InitialDelay = time.Second
	cfg.Retry.MaxDelay = 30 * time.Second
	cfg.Retry.Multiplier = 3.0

	backoff := cfg.Backoff()
	assert.Equal(t, time.Second, backoff.InitialDelay)
	assert.Equal(t, 30*time.Second, backoff.MaxDelay)
	assert.Equal(t, 3.0, backoff.Multiplier)
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	// 创建有效配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
log:
  level: "debug"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 不应该 panic
	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, "debug", cfg.Log.Level)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	// 创建无效配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	// 应该 panic
	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("IMAGEFLOW_LOG_LEVEL", "error")
	defer os.Unsetenv("IMAGEFLOW_LOG_LEVEL")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}
