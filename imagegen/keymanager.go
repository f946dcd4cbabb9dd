package imagegen

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/store"
)

// usageStateKey 是使用记录在 KV 存储中的固定键.
const usageStateKey = "api_key_usage"

// KeyUsageRecord 单个 Key 的使用记录
type KeyUsageRecord struct {
	UsageCount    int    `json:"usage_count"`
	LastResetDate string `json:"last_reset_date"` // YYYY-MM-DD 格式
}

// KeyPoolConfig 单个供应商的 Key 池配置
type KeyPoolConfig struct {
	APIKeys          []string `json:"api_keys" yaml:"api_keys"`
	DailyLimitPerKey int      `json:"daily_limit_per_key" yaml:"daily_limit_per_key"` // 0 表示不限制
}

// providerKeyPool 单个供应商的 Key 池状态
type providerKeyPool struct {
	apiKeys      []string
	dailyLimit   int
	currentIndex int
	records      map[string]*KeyUsageRecord
}

// KeyManager 管理所有供应商的 API Key 轮换与每日限额.
//
// 额度在获取时预扣除而不是成功后结算, 避免并发调用超发.
// 使用记录通过 KV 存储跨进程重启持久化, 每次变更后同步写回.
type KeyManager struct {
	mu        sync.Mutex
	providers map[string]*providerKeyPool
	kv        store.KVStore
	logger    *zap.Logger
	loaded    bool
	now       func() time.Time
}

// NewKeyManager 创建 Key 管理器. kv 为 nil 时不持久化.
func NewKeyManager(pools map[string]KeyPoolConfig, kv store.KVStore, logger *zap.Logger) *KeyManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	providers := make(map[string]*providerKeyPool)
	for provider, cfg := range pools {
		if len(cfg.APIKeys) == 0 {
			continue
		}
		pool := &providerKeyPool{
			apiKeys:    cfg.APIKeys,
			dailyLimit: cfg.DailyLimitPerKey,
			records:    make(map[string]*KeyUsageRecord),
		}
		for _, key := range cfg.APIKeys {
			pool.records[key] = &KeyUsageRecord{}
		}
		providers[provider] = pool

		logger.Debug("初始化供应商 Key 池",
			zap.String("provider", provider),
			zap.Int("keys", len(cfg.APIKeys)),
			zap.Int("daily_limit", cfg.DailyLimitPerKey),
		)
	}

	return &KeyManager{
		providers: providers,
		kv:        kv,
		logger:    logger.With(zap.String("component", "key_manager")),
		now:       time.Now,
	}
}

// HasProvider 检查是否有指定供应商的 Key 配置
func (m *KeyManager) HasProvider(provider string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.providers[provider]
	return ok
}

// Providers 返回所有配置了 Key 池的供应商, 按名称排序
func (m *KeyManager) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Acquire 返回指定供应商的下一个可用 Key, 额度在此处预扣除.
// 所有 Key 当日额度用尽时返回 ok=false, 调用方应立即失败而不是重试.
func (m *KeyManager) Acquire(ctx context.Context, provider string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.providers[provider]
	if !ok || len(pool.apiKeys) == 0 {
		return "", false
	}

	m.loadLocked(ctx)

	// 没有每日限额时纯轮询, 不记账
	if pool.dailyLimit <= 0 {
		return pool.apiKeys[pool.currentIndex%len(pool.apiKeys)], true
	}

	today := m.todayLocked()
	for checked := 0; checked < len(pool.apiKeys); checked++ {
		idx := (pool.currentIndex + checked) % len(pool.apiKeys)
		key := pool.apiKeys[idx]
		record := pool.records[key]
		if record == nil {
			continue
		}

		// 跨日首次触碰时重置计数
		if record.LastResetDate != today {
			record.UsageCount = 0
			record.LastResetDate = today
		}

		if record.UsageCount < pool.dailyLimit {
			pool.currentIndex = idx
			record.UsageCount++
			if record.UsageCount >= pool.dailyLimit {
				m.logger.Info("Key 今日额度已用尽",
					zap.String("provider", provider),
					zap.String("key", keySuffix(key)),
					zap.Int("usage", record.UsageCount),
					zap.Int("limit", pool.dailyLimit),
				)
			}
			m.saveLocked(ctx)
			return key, true
		}
	}

	m.logger.Warn("供应商所有 Key 今日额度已用尽", zap.String("provider", provider))
	return "", false
}

// Rotate 将轮换索引推进一位后返回下一个可用 Key.
// 用于 Key 被厂商封禁或判定滥用而非额度耗尽的场景.
func (m *KeyManager) Rotate(ctx context.Context, provider string) (string, bool) {
	m.mu.Lock()
	pool, ok := m.providers[provider]
	if !ok || len(pool.apiKeys) == 0 {
		m.mu.Unlock()
		return "", false
	}
	if len(pool.apiKeys) == 1 {
		key := pool.apiKeys[0]
		m.mu.Unlock()
		return key, true
	}

	pool.currentIndex = (pool.currentIndex + 1) % len(pool.apiKeys)
	m.logger.Debug("轮换到下一个 Key",
		zap.String("provider", provider),
		zap.Int("index", pool.currentIndex),
	)
	m.mu.Unlock()

	// 自动跳过已耗尽的 Key
	return m.Acquire(ctx, provider)
}

// KeyStatus 单个 Key 的对外状态, 不包含完整密钥
type KeyStatus struct {
	KeySuffix  string `json:"key_suffix"`
	UsageToday int    `json:"usage_today"`
	Exhausted  bool   `json:"exhausted"`
}

// PoolStatus 供应商 Key 池的对外状态
type PoolStatus struct {
	Provider         string      `json:"provider"`
	TotalKeys        int         `json:"total_keys"`
	DailyLimitPerKey int         `json:"daily_limit_per_key"`
	Keys             []KeyStatus `json:"keys"`
}

// Status 返回指定供应商的 Key 池状态
func (m *KeyManager) Status(provider string) PoolStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.providers[provider]
	if !ok {
		return PoolStatus{Provider: provider}
	}

	today := m.todayLocked()
	status := PoolStatus{
		Provider:         provider,
		TotalKeys:        len(pool.apiKeys),
		DailyLimitPerKey: pool.dailyLimit,
	}
	for _, key := range pool.apiKeys {
		record := pool.records[key]
		if record == nil {
			continue
		}
		usage := 0
		if record.LastResetDate == today {
			usage = record.UsageCount
		}
		status.Keys = append(status.Keys, KeyStatus{
			KeySuffix:  keySuffix(key),
			UsageToday: usage,
			Exhausted:  pool.dailyLimit > 0 && usage >= pool.dailyLimit,
		})
	}
	return status
}

// usageState 是持久化的序列化格式
type usageState map[string]providerUsageState

type providerUsageState struct {
	CurrentIndex int                       `json:"current_index"`
	Keys         map[string]KeyUsageRecord `json:"keys"`
}

// loadLocked 首次访问时从 KV 恢复使用记录, 需持有 m.mu
func (m *KeyManager) loadLocked(ctx context.Context) {
	if m.loaded || m.kv == nil {
		return
	}
	m.loaded = true

	data, err := m.kv.Load(ctx, usageStateKey)
	if err != nil {
		if err != store.ErrNotFound {
			m.logger.Warn("加载使用记录失败", zap.Error(err))
		}
		return
	}

	var state usageState
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn("使用记录反序列化失败", zap.Error(err))
		return
	}

	for provider, saved := range state {
		pool, ok := m.providers[provider]
		if !ok {
			continue
		}
		pool.currentIndex = saved.CurrentIndex
		for key, record := range saved.Keys {
			if existing, ok := pool.records[key]; ok {
				existing.UsageCount = record.UsageCount
				existing.LastResetDate = record.LastResetDate
			}
		}
	}
	m.logger.Debug("从 KV 加载使用记录")
}

// saveLocked 将使用记录写回 KV, 需持有 m.mu
func (m *KeyManager) saveLocked(ctx context.Context) {
	if m.kv == nil {
		return
	}

	state := make(usageState, len(m.providers))
	for provider, pool := range m.providers {
		saved := providerUsageState{
			CurrentIndex: pool.currentIndex,
			Keys:         make(map[string]KeyUsageRecord, len(pool.records)),
		}
		for key, record := range pool.records {
			saved.Keys[key] = *record
		}
		state[provider] = saved
	}

	data, err := json.Marshal(state)
	if err != nil {
		m.logger.Debug("使用记录序列化失败", zap.Error(err))
		return
	}
	if err := m.kv.Save(ctx, usageStateKey, data); err != nil {
		m.logger.Debug("保存使用记录失败", zap.Error(err))
	}
}

func (m *KeyManager) todayLocked() string {
	return m.now().Format("2006-01-02")
}

// keySuffix 返回脱敏后的 Key 后缀, 完整密钥绝不落日志
func keySuffix(key string) string {
	if len(key) < 4 {
		return "***"
	}
	return "***" + key[len(key)-4:]
}
