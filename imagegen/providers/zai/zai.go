// Package zai 实现 Z.ai 网关适配器.
// 网关暴露 OpenAI 兼容的 chat/completions 接口, 这里只补默认值.
package zai

import (
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/imagegen/providers/openaicompat"
)

const (
	defaultAPIBase = "https://api.z.ai/api/paas/v4"
	defaultModel   = "cogview-4"
)

// New 创建 Z.ai 适配器.
func New(cfg providers.Config, images imagegen.ImageStore, logger *zap.Logger) *openaicompat.Adapter {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return openaicompat.New("zai", cfg, images, logger)
}
