package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/imageflow/api"
	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/types"
	"go.uber.org/zap"
)

// KeyPoolHandler 暴露 Key 池状态与手动轮换操作
type KeyPoolHandler struct {
	keys   *imagegen.KeyManager
	logger *zap.Logger
}

// NewKeyPoolHandler 创建 KeyPoolHandler
func NewKeyPoolHandler(keys *imagegen.KeyManager, logger *zap.Logger) *KeyPoolHandler {
	return &KeyPoolHandler{keys: keys, logger: logger}
}

// extractProvider 从请求中提取供应商名（Go 1.22+ PathValue 优先，回退到路径解析）
func extractProvider(r *http.Request) (string, bool) {
	name := r.PathValue("provider")
	if name == "" {
		// 回退：从路径手动解析 /api/v1/keys/{provider}[/rotate]
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 4 {
			return "", false
		}
		name = parts[3]
	}
	if name == "" || name == "rotate" {
		return "", false
	}
	return name, true
}

// toPoolResponse 转换 Key 池状态为 API 响应
func toPoolResponse(status imagegen.PoolStatus) api.KeyPoolResponse {
	keys := make([]api.KeyUsageResponse, 0, len(status.Keys))
	for _, k := range status.Keys {
		keys = append(keys, api.KeyUsageResponse{
			KeySuffix:  k.KeySuffix,
			UsageToday: k.UsageToday,
			Exhausted:  k.Exhausted,
		})
	}
	return api.KeyPoolResponse{
		Provider:         status.Provider,
		TotalKeys:        status.TotalKeys,
		DailyLimitPerKey: status.DailyLimitPerKey,
		Keys:             keys,
	}
}

// HandleListPools GET /api/v1/keys
// @Summary 列出所有 Key 池
// @Description 返回每个供应商 Key 池的脱敏用量状态
// @Tags Key 池
// @Produce json
// @Success 200 {object} api.KeyPoolListResponse "Key 池列表"
// @Security ApiKeyAuth
// @Router /api/v1/keys [get]
func (h *KeyPoolHandler) HandleListPools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	providers := h.keys.Providers()
	pools := make([]api.KeyPoolResponse, 0, len(providers))
	for _, name := range providers {
		pools = append(pools, toPoolResponse(h.keys.Status(name)))
	}

	WriteSuccess(w, api.KeyPoolListResponse{Pools: pools})
}

// HandlePoolStatus GET /api/v1/keys/{provider}
// @Summary 查询单个供应商的 Key 池
// @Tags Key 池
// @Produce json
// @Success 200 {object} api.KeyPoolResponse "Key 池状态"
// @Failure 404 {object} Response "供应商未配置"
// @Security ApiKeyAuth
// @Router /api/v1/keys/{provider} [get]
func (h *KeyPoolHandler) HandlePoolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	provider, ok := extractProvider(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid provider name", h.logger)
		return
	}

	if !h.keys.HasProvider(provider) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrConfiguration, "provider has no key pool", h.logger)
		return
	}

	WriteSuccess(w, toPoolResponse(h.keys.Status(provider)))
}

// HandleRotate POST /api/v1/keys/{provider}/rotate
// @Summary 手动轮换供应商 Key
// @Description 把供应商 Key 池推进到下一个可用 Key
// @Tags Key 池
// @Produce json
// @Success 200 {object} Response "轮换结果"
// @Failure 404 {object} Response "供应商未配置"
// @Failure 402 {object} Response "所有 Key 额度已用尽"
// @Security ApiKeyAuth
// @Router /api/v1/keys/{provider}/rotate [post]
func (h *KeyPoolHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	provider, ok := extractProvider(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid provider name", h.logger)
		return
	}

	if !h.keys.HasProvider(provider) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrConfiguration, "provider has no key pool", h.logger)
		return
	}

	key, ok := h.keys.Rotate(r.Context(), provider)
	if !ok {
		err := types.NewError(types.ErrKeysExhausted,
			"all API keys for this provider have exhausted their daily quota").
			WithProvider(provider)
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("manual key rotation",
		zap.String("provider", provider),
	)

	WriteSuccess(w, map[string]string{
		"provider":   provider,
		"key_suffix": maskKeySuffix(key),
	})
}

// maskKeySuffix 脱敏 API Key，仅显示末 4 位
func maskKeySuffix(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "***" + key[len(key)-4:]
}
