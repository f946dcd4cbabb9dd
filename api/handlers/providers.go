package handlers

import (
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/api"
	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/factory"
	"github.com/BaSui01/imageflow/imagegen/providers"
)

// =============================================================================
// 🎨 供应商列表 Handler
// =============================================================================

// ProvidersHandler 暴露已配置的图像供应商信息
type ProvidersHandler struct {
	keys     *imagegen.KeyManager
	settings map[string]providers.Config
	logger   *zap.Logger
}

// NewProvidersHandler 创建供应商列表处理器.
// settings 以规范名或自定义标识为键, 可以为 nil.
func NewProvidersHandler(keys *imagegen.KeyManager, settings map[string]providers.Config, logger *zap.Logger) *ProvidersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProvidersHandler{
		keys:     keys,
		settings: settings,
		logger:   logger,
	}
}

// HandleListProviders 列出所有已配置的供应商
// @Summary 供应商列表
// @Description 返回所有配置了 Key 池或厂商参数的供应商及其适配器归属
// @Tags providers
// @Produce json
// @Success 200 {object} Response{data=api.ProviderListResponse} "供应商列表"
// @Security ApiKeyAuth
// @Router /api/v1/providers [get]
func (h *ProvidersHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	names := make(map[string]struct{})
	if h.keys != nil {
		for _, name := range h.keys.Providers() {
			names[factory.Normalize(name)] = struct{}{}
		}
	}
	for name := range h.settings {
		names[factory.Normalize(name)] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	result := make([]api.ProviderInfo, 0, len(sorted))
	for _, name := range sorted {
		info := api.ProviderInfo{
			Name:    name,
			Adapter: factory.Canonical(name),
		}
		if cfg, ok := h.settings[name]; ok {
			info.Model = cfg.Model
		}
		if h.keys != nil && h.keys.HasProvider(name) {
			info.HasKeys = true
		}
		result = append(result, info)
	}

	WriteSuccess(w, api.ProviderListResponse{Providers: result})
}
