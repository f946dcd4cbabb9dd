package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/types"
)

// LocalStore 把生成的图像字节落到本地目录, 文件名使用 UUID 防冲突.
type LocalStore struct {
	dir    string
	logger *zap.Logger
}

// NewLocalStore 创建本地图像存储, 目录不存在时自动创建.
func NewLocalStore(dir string, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "imageflow")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewError(types.ErrConfiguration,
			fmt.Sprintf("failed to create image directory %s", dir)).WithCause(err)
	}
	return &LocalStore{dir: dir, logger: logger.With(zap.String("component", "image_store"))}, nil
}

// Dir 返回存储目录.
func (s *LocalStore) Dir() string { return s.dir }

// SaveBytes 将图像字节写入磁盘, 返回本地路径.
func (s *LocalStore) SaveBytes(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", types.NewError(types.ErrInvalidRequest, "image data is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, uuid.NewString()+extForMime(mimeType))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename image file: %w", err)
	}

	s.logger.Debug("图像已保存", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// SaveBase64 解码 base64 图像数据并落盘. 接受裸 base64 或完整 data URI.
func (s *LocalStore) SaveBase64(ctx context.Context, encoded string) (string, error) {
	mimeType := "image/png"
	payload := strings.TrimSpace(encoded)
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ";base64,"); idx >= 0 {
			mimeType = strings.TrimPrefix(payload[:idx], "data:")
			payload = payload[idx+len(";base64,"):]
		}
	}
	payload = strings.Join(strings.Fields(payload), "")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return "", types.NewError(types.ErrMalformedResponse,
				"image payload failed base64 decoding").WithCause(err)
		}
	}
	return s.SaveBytes(ctx, data, mimeType)
}

func extForMime(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
