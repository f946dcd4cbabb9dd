// Package factory 集中管理 provider 标识 -> 适配器实现 的映射.
package factory

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/imagegen/providers/doubao"
	"github.com/BaSui01/imageflow/imagegen/providers/glm"
	"github.com/BaSui01/imageflow/imagegen/providers/google"
	"github.com/BaSui01/imageflow/imagegen/providers/grok2"
	"github.com/BaSui01/imageflow/imagegen/providers/openaicompat"
	"github.com/BaSui01/imageflow/imagegen/providers/whatai"
	"github.com/BaSui01/imageflow/imagegen/providers/zai"
)

// 各适配器的规范名
const (
	Doubao       = "doubao"
	Google       = "google"
	GLM          = "glm"
	WhatAI       = "whatai"
	Grok2        = "grok2"
	Zai          = "zai"
	OpenAICompat = "openai_compat"
)

// 豆包/火山引擎相关的标识别名
var doubaoAliases = map[string]struct{}{
	"doubao":     {},
	"volcengine": {},
	"ark":        {},
	"seedream":   {},
}

// Normalize 规范化 provider 标识: 小写、去空格、连字符转下划线.
func Normalize(provider string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(provider)), "-", "_")
}

// Canonical 把任意 provider 标识解析为规范名.
// 未知标识一律落到 openai_compat, 用于各类 OpenAI 兼容网关.
func Canonical(provider string) string {
	normalized := Normalize(provider)

	if _, ok := doubaoAliases[normalized]; ok {
		return Doubao
	}
	if normalized == "zai" || strings.HasPrefix(normalized, "zai_") {
		return Zai
	}
	if normalized == "grok2api" || normalized == "grok2_api" || normalized == "grok2" ||
		strings.HasPrefix(normalized, "grok2api_") {
		return Grok2
	}
	switch normalized {
	case "google", "gemini", "googlegenai", "google_genai":
		return Google
	case "glm", "zhipu", "cogview":
		return GLM
	case "whatai":
		return WhatAI
	}
	return OpenAICompat
}

// Options 聚合构建一套适配器所需的依赖.
type Options struct {
	// Providers 按规范名提供各厂商配置, 缺省条目使用零值配置
	Providers map[string]providers.Config
	Images    imagegen.ImageStore
	Logger    *zap.Logger
}

// Registry 持有预构建的适配器, 实现 imagegen.Resolver.
type Registry struct {
	mu       sync.Mutex
	adapters map[string]imagegen.Adapter
	opts     Options
}

// New 构建注册表, 为每个已知厂商预创建适配器.
func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := &Registry{adapters: make(map[string]imagegen.Adapter), opts: opts}

	log := opts.Logger
	r.adapters[Doubao] = doubao.New(r.config(Doubao), opts.Images, log)
	r.adapters[Google] = google.New(r.config(Google), opts.Images, log)
	r.adapters[GLM] = glm.New(r.config(GLM), opts.Images, log)
	r.adapters[WhatAI] = whatai.New(r.config(WhatAI), opts.Images, log)
	r.adapters[Grok2] = grok2.New(r.config(Grok2), opts.Images, log)
	r.adapters[Zai] = zai.New(r.config(Zai), opts.Images, log)
	r.adapters[OpenAICompat] = openaicompat.New(OpenAICompat, r.config(OpenAICompat), opts.Images, log)
	return r
}

func (r *Registry) config(name string) providers.Config {
	if r.opts.Providers == nil {
		return providers.Config{}
	}
	return r.opts.Providers[name]
}

// Resolve 按标识返回适配器. 带独立配置的未知标识会按 OpenAI 兼容
// 方式即时构建并缓存, 其余未知标识共享通用 openai_compat 适配器.
func (r *Registry) Resolve(provider string) imagegen.Adapter {
	canonical := Canonical(provider)

	r.mu.Lock()
	defer r.mu.Unlock()

	if canonical == OpenAICompat {
		normalized := Normalize(provider)
		if normalized != "" && normalized != OpenAICompat {
			if a, ok := r.adapters[normalized]; ok {
				return a
			}
			if cfg, ok := r.opts.Providers[normalized]; ok {
				a := openaicompat.New(normalized, cfg, r.opts.Images, r.opts.Logger)
				r.adapters[normalized] = a
				return a
			}
		}
	}
	return r.adapters[canonical]
}
