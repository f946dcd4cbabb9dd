// Package grok2 实现 Grok2API 网关适配器.
// 网关暴露 OpenAI 兼容的 chat/completions 接口, 这里只补默认值.
package grok2

import (
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/imagegen/providers/openaicompat"
)

const (
	defaultAPIBase = "https://api.x.ai/v1"
	defaultModel   = "grok-2-image"
)

// New 创建 Grok2 适配器.
func New(cfg providers.Config, images imagegen.ImageStore, logger *zap.Logger) *openaicompat.Adapter {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return openaicompat.New("grok2", cfg, images, logger)
}
