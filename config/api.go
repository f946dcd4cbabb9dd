// 配置管理 API。
//
// 挂在管理端口上, 供运维在线调日志级别、重试参数和厂商 Key 池,
// 不用重启正在跑生成请求的进程。消费方是 curl 和运维脚本,
// 不走浏览器, 所以没有 CORS 面。
package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/imageflow/api/handlers"
)

// API 暴露热重载管理器的 HTTP 面.
// 鉴权只认 X-API-Key 请求头: query 参数会进访问日志和代理日志.
type API struct {
	manager *HotReloadManager
	apiKey  string
}

// NewAPI 创建配置管理 API. apiKey 为空时不鉴权 (仅限本机管理端口).
func NewAPI(manager *HotReloadManager, apiKey string) *API {
	return &API{manager: manager, apiKey: apiKey}
}

// apiResponse 复用 handlers.Response, 管理面和业务面保持同一信封.
type apiResponse = handlers.Response

type apiError = handlers.ErrorInfo

// configData 是配置 API 响应 Data 字段的载荷.
type configData struct {
	Message string `json:"message,omitempty"`

	// 当前配置, 敏感字段已脱敏
	Config map[string]any `json:"config,omitempty"`

	// 可热重载字段清单
	Fields map[string]FieldInfo `json:"fields,omitempty"`

	// 变更历史
	Changes []ConfigChange `json:"changes,omitempty"`

	// 某次更新涉及需重启才生效的字段
	RequiresRestart bool `json:"requires_restart,omitempty"`
}

// FieldInfo 描述一个可在线修改的配置字段, 如 Log.Level 或
// Retry.MaxAttemptsPerKey.
type FieldInfo struct {
	Path            string `json:"path"`
	Description     string `json:"description"`
	RequiresRestart bool   `json:"requires_restart"`
	Sensitive       bool   `json:"sensitive"`

	// 当前值, 敏感字段不回显
	CurrentValue any `json:"current_value,omitempty"`
}

// ConfigUpdateRequest 批量字段更新: 字段路径 → 新值.
type ConfigUpdateRequest struct {
	Updates map[string]any `json:"updates"`
}

// RegisterRoutes 注册配置管理路由.
// 方法写进路由模式里, 不匹配的方法由 ServeMux 直接 405.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/config", a.requireAuth(a.getConfig))
	mux.HandleFunc("PUT /api/v1/config", a.requireAuth(a.updateConfig))
	mux.HandleFunc("POST /api/v1/config/reload", a.requireAuth(a.reload))
	mux.HandleFunc("GET /api/v1/config/fields", a.requireAuth(a.listFields))
	mux.HandleFunc("GET /api/v1/config/changes", a.requireAuth(a.listChanges))
}

// getConfig 返回脱敏后的当前配置
// @Summary 获取当前配置
// @Tags config
// @Produce json
// @Success 200 {object} apiResponse "当前配置"
// @Router /api/v1/config [get]
func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: "Configuration retrieved successfully",
			Config:  a.manager.SanitizedConfig(),
		},
		Timestamp: time.Now(),
	})
}

// updateConfig 在线更新一个或多个字段
// @Summary 更新配置字段
// @Tags config
// @Accept json
// @Produce json
// @Param request body ConfigUpdateRequest true "字段更新"
// @Success 200 {object} apiResponse "配置已更新"
// @Failure 400 {object} apiResponse "字段未知或校验失败"
// @Router /api/v1/config [put]
func (a *API) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(req.Updates) == 0 {
		a.badRequest(w, "No updates provided")
		return
	}

	var failures []string
	var requiresRestart bool
	for path, value := range req.Updates {
		field, known := hotReloadableFields[path]
		if !known {
			failures = append(failures, fmt.Sprintf("Unknown field: %s", path))
			continue
		}
		if field.RequiresRestart {
			requiresRestart = true
		}
		if err := a.manager.UpdateField(path, value); err != nil {
			failures = append(failures, fmt.Sprintf("Failed to update %s: %v", path, err))
		}
	}

	if len(failures) > 0 {
		handlers.WriteJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error: &apiError{
				Code:    "INVALID_REQUEST",
				Message: fmt.Sprintf("Some updates failed: %v", failures),
			},
			Data:      configData{RequiresRestart: requiresRestart},
			Timestamp: time.Now(),
		})
		return
	}

	handlers.WriteJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message:         "Configuration updated successfully",
			Config:          a.manager.SanitizedConfig(),
			RequiresRestart: requiresRestart,
		},
		Timestamp: time.Now(),
	})
}

// reload 重新读配置文件并应用
// @Summary 从文件热重载配置
// @Tags config
// @Produce json
// @Success 200 {object} apiResponse "配置已重载"
// @Failure 500 {object} apiResponse "重载失败"
// @Router /api/v1/config/reload [post]
func (a *API) reload(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.ReloadFromFile(); err != nil {
		handlers.WriteJSON(w, http.StatusInternalServerError, apiResponse{
			Success: false,
			Error: &apiError{
				Code:    "INTERNAL_ERROR",
				Message: fmt.Sprintf("Failed to reload configuration: %v", err),
			},
			Timestamp: time.Now(),
		})
		return
	}

	handlers.WriteJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: "Configuration reloaded successfully",
			Config:  a.manager.SanitizedConfig(),
		},
		Timestamp: time.Now(),
	})
}

// listFields 返回可热重载字段清单
// @Summary 获取可热重载字段
// @Tags config
// @Produce json
// @Success 200 {object} apiResponse "可热重载字段"
// @Router /api/v1/config/fields [get]
func (a *API) listFields(w http.ResponseWriter, r *http.Request) {
	fields := make(map[string]FieldInfo, len(hotReloadableFields))
	for path, field := range hotReloadableFields {
		info := FieldInfo{
			Path:            path,
			Description:     field.Description,
			RequiresRestart: field.RequiresRestart,
			Sensitive:       field.Sensitive,
		}
		// Key 池之类的敏感字段不回显当前值
		if !field.Sensitive {
			if value, err := a.manager.getFieldValue(path); err == nil {
				info.CurrentValue = value
			}
		}
		fields[path] = info
	}

	handlers.WriteJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: "Hot reloadable fields retrieved",
			Fields:  fields,
		},
		Timestamp: time.Now(),
	})
}

// listChanges 返回变更历史
// @Summary 获取配置变更历史
// @Tags config
// @Produce json
// @Param limit query int false "最多返回的条数" default(50)
// @Success 200 {object} apiResponse "变更历史"
// @Router /api/v1/config/changes [get]
func (a *API) listChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	changes := a.manager.GetChangeLog(limit)
	handlers.WriteJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: configData{
			Message: fmt.Sprintf("Retrieved %d configuration changes", len(changes)),
			Changes: changes,
		},
		Timestamp: time.Now(),
	})
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if a.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != a.apiKey {
			handlers.WriteJSON(w, http.StatusUnauthorized, apiResponse{
				Success: false,
				Error: &apiError{
					Code:    "UNAUTHORIZED",
					Message: "Invalid or missing API key",
				},
				Timestamp: time.Now(),
			})
			return
		}
		next(w, r)
	}
}

func (a *API) badRequest(w http.ResponseWriter, message string) {
	handlers.WriteJSON(w, http.StatusBadRequest, apiResponse{
		Success: false,
		Error: &apiError{
			Code:    "INVALID_REQUEST",
			Message: message,
		},
		Timestamp: time.Now(),
	})
}
