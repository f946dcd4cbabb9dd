package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/store"
)

// bucketStateKey is the fixed key rate-limit buckets are persisted under.
const bucketStateKey = "rate_limit_buckets"

// GroupLimitMode controls the group allow/deny list semantics.
type GroupLimitMode string

const (
	GroupLimitOff       GroupLimitMode = "off"
	GroupLimitWhitelist GroupLimitMode = "whitelist"
	GroupLimitBlacklist GroupLimitMode = "blacklist"
)

// RateLimitRule defines one admission rule. An empty Groups set is a
// wildcard matching every group.
type RateLimitRule struct {
	Name          string   `json:"name" yaml:"name"`
	Groups        []string `json:"groups,omitempty" yaml:"groups,omitempty"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	WindowSeconds int      `json:"window_seconds" yaml:"window_seconds"`
	MaxRequests   int      `json:"max_requests" yaml:"max_requests"`
}

func (r RateLimitRule) matches(groupID string) bool {
	if len(r.Groups) == 0 {
		return true
	}
	for _, g := range r.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// RateLimiterConfig configures group admission control.
type RateLimiterConfig struct {
	// GroupLimitMode selects whitelist/blacklist checking of GroupLimitList
	GroupLimitMode GroupLimitMode `json:"group_limit_mode" yaml:"group_limit_mode"`
	GroupLimitList []string       `json:"group_limit_list,omitempty" yaml:"group_limit_list,omitempty"`

	// Rules are checked in order; the first enabled matching rule governs
	Rules []RateLimitRule `json:"rules,omitempty" yaml:"rules,omitempty"`

	// DefaultRule applies when no rule matches. Disabled default means
	// unconditional admission.
	DefaultRule RateLimitRule `json:"default_rule" yaml:"default_rule"`
}

// RateLimiter gates requests per group before generation is attempted.
//
// Allow/deny list checks come first and deny silently (no message) so
// denied groups are not spammed with replies. Sliding windows use
// wall-clock time and are persisted after every mutating check so
// admitted requests survive a restart within the window.
type RateLimiter struct {
	mu      sync.Mutex
	config  RateLimiterConfig
	buckets map[string][]int64 // group id -> unix seconds within window
	kv      store.KVStore
	logger  *zap.Logger
	loaded  bool
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter. kv may be nil to disable
// persistence.
func NewRateLimiter(config RateLimiterConfig, kv store.KVStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string][]int64),
		kv:      kv,
		logger:  logger.With(zap.String("component", "rate_limiter")),
		now:     time.Now,
	}
}

// Admit decides whether a request from the group may proceed. An empty
// group id (private chat) always passes. When denied by the rate limit
// the message tells the caller how long to wait; list-based denials
// return an empty message.
func (rl *RateLimiter) Admit(ctx context.Context, groupID string) (bool, string) {
	if groupID == "" {
		return true, ""
	}

	if !rl.passesGroupList(groupID) {
		rl.logger.Debug("group denied by list",
			zap.String("group_id", groupID),
			zap.String("mode", string(rl.config.GroupLimitMode)),
		)
		return false, ""
	}

	rule, ok := rl.matchRule(groupID)
	if !ok {
		return true, ""
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.loadLocked(ctx)

	now := rl.now().Unix()
	window := int64(rule.WindowSeconds)
	cutoff := now - window

	bucket := rl.buckets[groupID]
	pruned := bucket[:0:0]
	for _, ts := range bucket {
		if ts >= cutoff {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= rule.MaxRequests {
		retryAfter := pruned[0] + window - now
		if retryAfter < 0 {
			retryAfter = 0
		}
		rl.buckets[groupID] = pruned
		rl.saveLocked(ctx)

		rl.logger.Debug("rate limit exceeded",
			zap.String("group_id", groupID),
			zap.String("rule", rule.Name),
			zap.Int("count", len(pruned)),
			zap.Int("max", rule.MaxRequests),
			zap.Int64("retry_after", retryAfter),
		)
		return false, fmt.Sprintf(
			"this group reached its limit of %d requests in the last %d seconds, retry in about %d seconds",
			rule.MaxRequests, rule.WindowSeconds, retryAfter,
		)
	}

	rl.buckets[groupID] = append(pruned, now)
	rl.saveLocked(ctx)
	return true, ""
}

// Reset clears all bucket state.
func (rl *RateLimiter) Reset(ctx context.Context) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets = make(map[string][]int64)
	rl.saveLocked(ctx)
}

// passesGroupList applies whitelist/blacklist checks. List checks are
// orthogonal to rate limiting.
func (rl *RateLimiter) passesGroupList(groupID string) bool {
	list := rl.config.GroupLimitList
	switch rl.config.GroupLimitMode {
	case GroupLimitWhitelist:
		if len(list) == 0 {
			return true
		}
		for _, g := range list {
			if g == groupID {
				return true
			}
		}
		return false
	case GroupLimitBlacklist:
		for _, g := range list {
			if g == groupID {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// matchRule returns the first enabled rule matching the group, falling
// back to the default rule. ok=false means no limiting applies.
func (rl *RateLimiter) matchRule(groupID string) (RateLimitRule, bool) {
	for _, rule := range rl.config.Rules {
		if rule.Enabled && rule.matches(groupID) {
			return rule, rule.WindowSeconds > 0 && rule.MaxRequests > 0
		}
	}
	def := rl.config.DefaultRule
	if def.Enabled && def.WindowSeconds > 0 && def.MaxRequests > 0 {
		return def, true
	}
	return RateLimitRule{}, false
}

// loadLocked restores buckets from the KV store on first use.
func (rl *RateLimiter) loadLocked(ctx context.Context) {
	if rl.loaded || rl.kv == nil {
		return
	}
	rl.loaded = true

	data, err := rl.kv.Load(ctx, bucketStateKey)
	if err != nil {
		if err != store.ErrNotFound {
			rl.logger.Warn("failed to load rate-limit buckets", zap.Error(err))
		}
		return
	}

	var buckets map[string][]int64
	if err := json.Unmarshal(data, &buckets); err != nil {
		rl.logger.Warn("failed to decode rate-limit buckets", zap.Error(err))
		return
	}
	if buckets != nil {
		rl.buckets = buckets
	}
}

// saveLocked persists the buckets; callers hold rl.mu.
func (rl *RateLimiter) saveLocked(ctx context.Context) {
	if rl.kv == nil {
		return
	}
	data, err := json.Marshal(rl.buckets)
	if err != nil {
		rl.logger.Debug("failed to encode rate-limit buckets", zap.Error(err))
		return
	}
	if err := rl.kv.Save(ctx, bucketStateKey, data); err != nil {
		rl.logger.Debug("failed to save rate-limit buckets", zap.Error(err))
	}
}
