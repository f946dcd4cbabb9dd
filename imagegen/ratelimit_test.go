package imagegen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/store"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{
		DefaultRule: RateLimitRule{Name: "default", Enabled: true, WindowSeconds: 60, MaxRequests: 5},
	}, nil, zap.NewNop())

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, msg := rl.Admit(ctx, "group-1")
		require.True(t, allowed, "call %d", i)
		assert.Empty(t, msg)
	}

	// 6th call inside the window is denied with a positive retry hint
	allowed, msg := rl.Admit(ctx, "group-1")
	assert.False(t, allowed)
	assert.Contains(t, msg, "retry in about 60 seconds")

	// another group is unaffected
	allowed, _ = rl.Admit(ctx, "group-2")
	assert.True(t, allowed)

	// once the window slides past the earliest entry, admission resumes
	rl.now = func() time.Time { return base.Add(61 * time.Second) }
	allowed, _ = rl.Admit(ctx, "group-1")
	assert.True(t, allowed)
}

func TestRateLimiter_BlacklistSilentDenial(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{
		GroupLimitMode: GroupLimitBlacklist,
		GroupLimitList: []string{"banned"},
		DefaultRule:    RateLimitRule{Enabled: true, WindowSeconds: 60, MaxRequests: 100},
	}, nil, zap.NewNop())
	ctx := context.Background()

	// blacklisted groups are denied with no message even when far
	// under the threshold
	allowed, msg := rl.Admit(ctx, "banned")
	assert.False(t, allowed)
	assert.Empty(t, msg)

	allowed, _ = rl.Admit(ctx, "other")
	assert.True(t, allowed)
}

func TestRateLimiter_WhitelistMiss(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{
		GroupLimitMode: GroupLimitWhitelist,
		GroupLimitList: []string{"allowed"},
	}, nil, zap.NewNop())
	ctx := context.Background()

	allowed, msg := rl.Admit(ctx, "stranger")
	assert.False(t, allowed)
	assert.Empty(t, msg)

	allowed, _ = rl.Admit(ctx, "allowed")
	assert.True(t, allowed)
}

func TestRateLimiter_PrivateChatAlwaysPasses(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{
		GroupLimitMode: GroupLimitWhitelist,
		GroupLimitList: []string{"allowed"},
		DefaultRule:    RateLimitRule{Enabled: true, WindowSeconds: 1, MaxRequests: 1},
	}, nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		allowed, _ := rl.Admit(context.Background(), "")
		assert.True(t, allowed)
	}
}

func TestRateLimiter_RuleOrderAndDefaultFallback(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{
		Rules: []RateLimitRule{
			{Name: "disabled", Enabled: false, WindowSeconds: 60, MaxRequests: 1},
			{Name: "strict", Groups: []string{"group-1"}, Enabled: true, WindowSeconds: 60, MaxRequests: 1},
			{Name: "loose", Enabled: true, WindowSeconds: 60, MaxRequests: 100},
		},
		DefaultRule: RateLimitRule{Name: "default", Enabled: false},
	}, nil, zap.NewNop())
	ctx := context.Background()

	// group-1 hits the strict rule even though the wildcard rule would
	// also match later in the list
	allowed, _ := rl.Admit(ctx, "group-1")
	require.True(t, allowed)
	allowed, msg := rl.Admit(ctx, "group-1")
	assert.False(t, allowed)
	assert.NotEmpty(t, msg)

	// other groups fall through to the wildcard rule
	for i := 0; i < 10; i++ {
		allowed, _ := rl.Admit(ctx, "group-2")
		assert.True(t, allowed)
	}
}

func TestRateLimiter_DisabledDefaultAdmitsUnconditionally(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{}, nil, zap.NewNop())
	for i := 0; i < 20; i++ {
		allowed, _ := rl.Admit(context.Background(), "group-1")
		assert.True(t, allowed)
	}
}

func TestRateLimiter_PersistsAcrossRestart(t *testing.T) {
	t.Parallel()

	kv := store.NewMemoryStore()
	cfg := RateLimiterConfig{
		DefaultRule: RateLimitRule{Enabled: true, WindowSeconds: 60, MaxRequests: 3},
	}
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	rl := NewRateLimiter(cfg, kv, zap.NewNop())
	rl.now = func() time.Time { return base }
	for i := 0; i < 3; i++ {
		allowed, _ := rl.Admit(ctx, "group-1")
		require.True(t, allowed)
	}

	// a fresh limiter over the same store still sees the consumed window
	restarted := NewRateLimiter(cfg, kv, zap.NewNop())
	restarted.now = func() time.Time { return base.Add(time.Second) }
	allowed, msg := restarted.Admit(ctx, "group-1")
	assert.False(t, allowed)
	assert.NotEmpty(t, msg)
}
