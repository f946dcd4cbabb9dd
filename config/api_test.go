// 配置管理 API 测试。
package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAPIMux 把 API 装到 mux 上, 测试走和生产一致的路由.
func newAPIMux(t *testing.T, apiKey string, opts ...HotReloadOption) (*http.ServeMux, *HotReloadManager) {
	t.Helper()
	manager := NewHotReloadManager(DefaultConfig(), opts...)
	mux := http.NewServeMux()
	NewAPI(manager, apiKey).RegisterRoutes(mux)
	return mux, manager
}

func doRequest(mux *http.ServeMux, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func decodeData(t *testing.T, resp apiResponse) configData {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var data configData
	require.NoError(t, json.Unmarshal(raw, &data))
	return data
}

func TestAPIGetConfig(t *testing.T) {
	mux, _ := newAPIMux(t, "")

	w := doRequest(mux, http.MethodGet, "/api/v1/config", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
}

func TestAPIUpdateConfig(t *testing.T) {
	mux, manager := newAPIMux(t, "")

	w := doRequest(mux, http.MethodPut, "/api/v1/config",
		`{"updates": {"Log.Level": "debug"}}`,
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "debug", manager.GetConfig().Log.Level)
}

func TestAPIUpdateConfigUnknownField(t *testing.T) {
	mux, _ := newAPIMux(t, "")

	w := doRequest(mux, http.MethodPut, "/api/v1/config",
		`{"updates": {"Invalid.Field": "value"}}`,
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "Unknown field")
}

func TestAPIUpdateConfigBadBody(t *testing.T) {
	mux, _ := newAPIMux(t, "")

	w := doRequest(mux, http.MethodPut, "/api/v1/config", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 空更新集同样拒绝
	w = doRequest(mux, http.MethodPut, "/api/v1/config", `{"updates": {}}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "No updates provided")
}

func TestAPIReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_attempts_per_key: 4\nlog:\n  level: warn\n"), 0644))

	mux, manager := newAPIMux(t, "", WithConfigPath(path))

	w := doRequest(mux, http.MethodPost, "/api/v1/config/reload", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeEnvelope(t, w).Success)
	assert.Equal(t, 4, manager.GetConfig().Retry.MaxAttemptsPerKey)
}

func TestAPIReloadWithoutConfigPath(t *testing.T) {
	mux, _ := newAPIMux(t, "")

	w := doRequest(mux, http.MethodPost, "/api/v1/config/reload", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
}

func TestAPIListFields(t *testing.T) {
	mux, _ := newAPIMux(t, "")

	w := doRequest(mux, http.MethodGet, "/api/v1/config/fields", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, decodeEnvelope(t, w))
	require.NotEmpty(t, data.Fields)
	assert.Contains(t, data.Fields, "Log.Level")
	assert.Contains(t, data.Fields, "Retry.MaxAttemptsPerKey")

	// Key 池是敏感字段, 不回显当前值
	providerField, ok := data.Fields["Providers"]
	require.True(t, ok)
	assert.True(t, providerField.Sensitive)
	assert.Nil(t, providerField.CurrentValue)
}

func TestAPIListChanges(t *testing.T) {
	mux, manager := newAPIMux(t, "")

	require.NoError(t, manager.UpdateField("Log.Level", "debug"))
	require.NoError(t, manager.UpdateField("Retry.MaxAttemptsPerKey", 5))

	w := doRequest(mux, http.MethodGet, "/api/v1/config/changes?limit=10", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, decodeEnvelope(t, w))
	assert.GreaterOrEqual(t, len(data.Changes), 2)
}

func TestAPIMethodNotAllowed(t *testing.T) {
	mux, _ := newAPIMux(t, "")

	// 方法写在路由模式里, 错误方法由 ServeMux 挡掉
	w := doRequest(mux, http.MethodDelete, "/api/v1/config", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = doRequest(mux, http.MethodGet, "/api/v1/config/reload", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIRequireAuth(t *testing.T) {
	mux, _ := newAPIMux(t, "test-api-key")

	// 没带密钥
	w := doRequest(mux, http.MethodGet, "/api/v1/config", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	// 正确的请求头
	w = doRequest(mux, http.MethodGet, "/api/v1/config", "",
		map[string]string{"X-API-Key": "test-api-key"})
	assert.Equal(t, http.StatusOK, w.Code)

	// 错误的密钥
	w = doRequest(mux, http.MethodGet, "/api/v1/config", "",
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIRequireAuthQueryParamRejected(t *testing.T) {
	mux, _ := newAPIMux(t, "test-api-key")

	// query string 传递密钥不被接受, 只认请求头
	w := doRequest(mux, http.MethodGet, "/api/v1/config?api_key=test-api-key", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIRequireAuthEmptyKeyAllowsAll(t *testing.T) {
	mux, _ := newAPIMux(t, "")

	w := doRequest(mux, http.MethodGet, "/api/v1/config", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
