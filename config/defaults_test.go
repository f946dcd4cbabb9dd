// 默认配置各部分的测试。
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/imageflow/imagegen"
)

func TestDefaultConfig_AllSectionsPopulated(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.NotNil(t, cfg.Providers)
	assert.NotEqual(t, RetryConfig{}, cfg.Retry)
	assert.NotEqual(t, ImagesConfig{}, cfg.Images)
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	assert.Equal(t, imagegen.GroupLimitOff, cfg.GroupLimitMode)
	assert.Empty(t, cfg.GroupLimitList)
	assert.Empty(t, cfg.Rules)

	// 默认规则存在但关闭, 打开即可生效
	assert.Equal(t, "default", cfg.DefaultRule.Name)
	assert.False(t, cfg.DefaultRule.Enabled)
	assert.Equal(t, 60, cfg.DefaultRule.WindowSeconds)
	assert.Equal(t, 10, cfg.DefaultRule.MaxRequests)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxAttemptsPerKey)
	assert.Equal(t, 3*time.Minute, cfg.PerRetryTimeout)
	assert.Equal(t, time.Duration(0), cfg.MaxTotalTime)
	assert.Equal(t, 2*time.Second, cfg.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestDefaultImagesConfig(t *testing.T) {
	cfg := DefaultImagesConfig()

	assert.Empty(t, cfg.Dir)
	assert.True(t, cfg.Localize)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 4, cfg.FetchParallelism)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()

	// 管理 API 默认不启动
	assert.Equal(t, 0, cfg.AdminPort)
	assert.Empty(t, cfg.AdminAPIKey)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}
