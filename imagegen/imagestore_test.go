package imagegen

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSaveBytes(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	data := []byte{0x89, 0x50, 0x4e, 0x47}
	path, err := store.SaveBytes(context.Background(), data, "image/png")
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(path))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestLocalStoreSaveBase64RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	original := []byte("the exact image bytes \x00\x01\x02")

	tests := []struct {
		name    string
		encoded string
		wantExt string
	}{
		{"bare base64", base64.StdEncoding.EncodeToString(original), ".png"},
		{"data URI", "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(original), ".jpg"},
		{"unpadded", base64.RawStdEncoding.EncodeToString(original), ".png"},
		{"with line breaks", base64.StdEncoding.EncodeToString(original)[:10] + "\n" + base64.StdEncoding.EncodeToString(original)[10:], ".png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := store.SaveBase64(context.Background(), tt.encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, filepath.Ext(path))

			onDisk, err := os.ReadFile(path)
			require.NoError(t, err)
			// 解码后的字节与原始数据完全一致
			assert.Equal(t, original, onDisk)
		})
	}
}

func TestLocalStoreUniquePaths(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		path, err := store.SaveBytes(context.Background(), []byte{1}, "image/png")
		require.NoError(t, err)
		assert.False(t, seen[path], "duplicate path %s", path)
		seen[path] = true
	}
}

func TestLocalStoreRejectsBadInput(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.SaveBytes(context.Background(), nil, "image/png")
	require.Error(t, err)

	_, err = store.SaveBase64(context.Background(), "!!! not base64 !!!")
	require.Error(t, err)
}

func TestLocalStoreHonorsContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.SaveBytes(ctx, []byte{1}, "image/png")
	require.ErrorIs(t, err, context.Canceled)
}
