package mocks

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

// ImageStore 记录保存的图像数据, 返回可预测的路径.
type ImageStore struct {
	mu     sync.Mutex
	Saved  [][]byte
	Mimes  []string
	FailOn int // 第 N 次调用返回错误 (1-based), 0 表示不失败
	calls  int
}

// NewImageStore 创建图像存储 mock.
func NewImageStore() *ImageStore {
	return &ImageStore{}
}

func (s *ImageStore) SaveBytes(_ context.Context, data []byte, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.FailOn > 0 && s.calls == s.FailOn {
		return "", fmt.Errorf("mock image store: save %d failed", s.calls)
	}
	s.Saved = append(s.Saved, append([]byte(nil), data...))
	s.Mimes = append(s.Mimes, mimeType)
	return fmt.Sprintf("/tmp/images/img-%d.png", len(s.Saved)), nil
}

func (s *ImageStore) SaveBase64(ctx context.Context, encoded string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, encoded)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return "", fmt.Errorf("mock image store: invalid base64: %w", err)
		}
	}
	return s.SaveBytes(ctx, data, "image/png")
}

// Count 返回已保存的图像数量.
func (s *ImageStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Saved)
}
