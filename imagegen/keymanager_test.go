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

func newTestKeyManager(t *testing.T, pools map[string]KeyPoolConfig, kv store.KVStore) *KeyManager {
	t.Helper()
	return NewKeyManager(pools, kv, zap.NewNop())
}

func TestKeyManager_QuotaExhaustion(t *testing.T) {
	t.Parallel()

	m := newTestKeyManager(t, map[string]KeyPoolConfig{
		"doubao": {APIKeys: []string{"key-aaaa", "key-bbbb", "key-cccc"}, DailyLimitPerKey: 2},
	}, nil)
	ctx := context.Background()

	// 3 keys x quota 2: each key is drained before rotating to the next
	want := []string{"key-aaaa", "key-aaaa", "key-bbbb", "key-bbbb", "key-cccc", "key-cccc"}
	for i, expected := range want {
		key, ok := m.Acquire(ctx, "doubao")
		require.True(t, ok, "acquire %d", i)
		assert.Equal(t, expected, key, "acquire %d", i)
	}

	// 7th acquire finds every key exhausted
	_, ok := m.Acquire(ctx, "doubao")
	assert.False(t, ok)
}

func TestKeyManager_NoQuotaIsRoundRobinless(t *testing.T) {
	t.Parallel()

	m := newTestKeyManager(t, map[string]KeyPoolConfig{
		"google": {APIKeys: []string{"g-1111", "g-2222"}},
	}, nil)
	ctx := context.Background()

	// without a daily limit the current key is returned unchanged
	for i := 0; i < 5; i++ {
		key, ok := m.Acquire(ctx, "google")
		require.True(t, ok)
		assert.Equal(t, "g-1111", key)
	}

	// rotation advances the index
	key, ok := m.Rotate(ctx, "google")
	require.True(t, ok)
	assert.Equal(t, "g-2222", key)
}

func TestKeyManager_DailyReset(t *testing.T) {
	t.Parallel()

	m := newTestKeyManager(t, map[string]KeyPoolConfig{
		"doubao": {APIKeys: []string{"key-aaaa"}, DailyLimitPerKey: 1},
	}, nil)
	ctx := context.Background()

	day := time.Date(2026, 8, 29, 23, 0, 0, 0, time.Local)
	m.now = func() time.Time { return day }

	_, ok := m.Acquire(ctx, "doubao")
	require.True(t, ok)
	_, ok = m.Acquire(ctx, "doubao")
	require.False(t, ok)

	// the counter resets the first time the key is touched on a new date,
	// regardless of elapsed duration
	m.now = func() time.Time { return day.Add(2 * time.Hour) } // crosses midnight
	key, ok := m.Acquire(ctx, "doubao")
	require.True(t, ok)
	assert.Equal(t, "key-aaaa", key)
}

func TestKeyManager_RotateSkipsExhausted(t *testing.T) {
	t.Parallel()

	m := newTestKeyManager(t, map[string]KeyPoolConfig{
		"doubao": {APIKeys: []string{"key-aaaa", "key-bbbb", "key-cccc"}, DailyLimitPerKey: 1},
	}, nil)
	ctx := context.Background()

	// drain key-bbbb up front so rotation from aaaa lands on cccc
	_, ok := m.Acquire(ctx, "doubao")
	require.True(t, ok) // aaaa now exhausted too, index at 0
	key, ok := m.Acquire(ctx, "doubao")
	require.True(t, ok)
	require.Equal(t, "key-bbbb", key)

	key, ok = m.Rotate(ctx, "doubao")
	require.True(t, ok)
	assert.Equal(t, "key-cccc", key)
}

func TestKeyManager_PersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	kv := store.NewMemoryStore()
	ctx := context.Background()
	pools := map[string]KeyPoolConfig{
		"doubao": {APIKeys: []string{"key-aaaa", "key-bbbb"}, DailyLimitPerKey: 2},
	}

	m := newTestKeyManager(t, pools, kv)
	for i := 0; i < 3; i++ {
		_, ok := m.Acquire(ctx, "doubao")
		require.True(t, ok)
	}

	// a fresh manager over the same store resumes mid-pool
	restored := newTestKeyManager(t, pools, kv)
	key, ok := restored.Acquire(ctx, "doubao")
	require.True(t, ok)
	assert.Equal(t, "key-bbbb", key)

	// only one deduction left in the whole pool
	_, ok = restored.Acquire(ctx, "doubao")
	assert.False(t, ok)

	status := restored.Status("doubao")
	require.Len(t, status.Keys, 2)
	assert.True(t, status.Keys[0].Exhausted)
	assert.Equal(t, "***aaaa", status.Keys[0].KeySuffix)
}

func TestKeyManager_UnknownProvider(t *testing.T) {
	t.Parallel()

	m := newTestKeyManager(t, nil, nil)
	_, ok := m.Acquire(context.Background(), "nope")
	assert.False(t, ok)
	_, ok = m.Rotate(context.Background(), "nope")
	assert.False(t, ok)
	assert.False(t, m.HasProvider("nope"))
}
