package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/testutil/mocks"
	"github.com/BaSui01/imageflow/types"
)

func newTestAdapter(cfg providers.Config) (*Adapter, *mocks.ImageStore) {
	store := mocks.NewImageStore()
	return New(cfg, store, zap.NewNop()), store
}

func buildBody(t *testing.T, a *Adapter, cfg *imagegen.RequestConfig) (generateRequest, *imagegen.ProviderRequest) {
	t.Helper()
	req, err := a.BuildRequest(context.Background(), cfg, imagegen.BuildContext{APIKey: "test-key"})
	require.NoError(t, err)
	var payload generateRequest
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	return payload, req
}

func TestBuildRequestURLAndAuth(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	_, req := buildBody(t, a, &imagegen.RequestConfig{Prompt: "a red fox", Model: "gemini-3-pro-image-preview"})

	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-3-pro-image-preview:generateContent", req.URL)
	assert.Equal(t, "test-key", req.Headers["x-goog-api-key"])
	assert.Equal(t, imagegen.KindJSON, req.Kind)
}

func TestBuildRequestCustomBase(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{APIBase: "https://proxy.example.com/v1beta/"})

	_, req := buildBody(t, a, &imagegen.RequestConfig{Prompt: "hi", Model: "m"})
	assert.Equal(t, "https://proxy.example.com/v1beta/models/m:generateContent", req.URL)

	// 请求级 base 覆盖配置级
	_, req = buildBody(t, a, &imagegen.RequestConfig{Prompt: "hi", Model: "m", APIBase: "https://other.example.com"})
	assert.Equal(t, "https://other.example.com/models/m:generateContent", req.URL)
}

func TestBuildRequestModalityDowngrade(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	payload, _ := buildBody(t, a, &imagegen.RequestConfig{Prompt: "p"})
	assert.Equal(t, []string{"TEXT", "IMAGE"}, payload.GenerationConfig.ResponseModalities)

	payload, _ = buildBody(t, a, &imagegen.RequestConfig{Prompt: "p", TextModality: true})
	assert.Equal(t, []string{"TEXT", "IMAGE"}, payload.GenerationConfig.ResponseModalities)
}

func TestBuildRequestImageConfig(t *testing.T) {
	tests := []struct {
		name       string
		resolution string
		aspect     string
		wantSize   string
		wantAspect string
	}{
		{"size and aspect", "2k", "16:9", "2K", "16:9"},
		{"invalid size dropped", "3000x2000", "1:1", "", "1:1"},
		{"invalid aspect dropped", "4K", "wide", "4K", ""},
		{"neither", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAdapter(providers.Config{})
			payload, _ := buildBody(t, a, &imagegen.RequestConfig{
				Prompt:      "p",
				Resolution:  tt.resolution,
				AspectRatio: tt.aspect,
			})
			if tt.wantSize == "" && tt.wantAspect == "" {
				assert.Nil(t, payload.GenerationConfig.ImageConfig)
				return
			}
			require.NotNil(t, payload.GenerationConfig.ImageConfig)
			assert.Equal(t, tt.wantSize, payload.GenerationConfig.ImageConfig.ImageSize)
			assert.Equal(t, tt.wantAspect, payload.GenerationConfig.ImageConfig.AspectRatio)
		})
	}
}

func TestBuildRequestReferenceImages(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	refs := make([]imagegen.ImageInput, 0, 16)
	for i := 0; i < 16; i++ {
		refs = append(refs, imagegen.ImageInput{Data: []byte{0x89, 0x50, byte(i)}, MimeType: "image/png"})
	}
	payload, _ := buildBody(t, a, &imagegen.RequestConfig{Prompt: "p", ReferenceImages: refs})

	parts := payload.Contents[0].Parts
	// 1 个文本 part + 截断到 14 张参考图
	require.Len(t, parts, 15)
	assert.Equal(t, "p", parts[0].Text)
	for _, p := range parts[1:] {
		require.NotNil(t, p.InlineData)
		assert.Equal(t, "image/png", p.InlineData.MimeType)
	}
}

func TestBuildRequestSkipsBareURLRefs(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	payload, _ := buildBody(t, a, &imagegen.RequestConfig{
		Prompt:          "p",
		ReferenceImages: []imagegen.ImageInput{{URL: "https://example.com/cat.png"}},
	})
	// URL 无法内联, Google 请求中被跳过
	require.Len(t, payload.Contents[0].Parts, 1)

	_, err := a.BuildRequest(context.Background(), &imagegen.RequestConfig{
		Prompt:          "p",
		ImageInputMode:  imagegen.ImageInputForceEncoded,
		ReferenceImages: []imagegen.ImageInput{{URL: "https://example.com/cat.png"}},
	}, imagegen.BuildContext{APIKey: "k"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidReferenceImage, types.GetErrorCode(err))
}

func TestBuildRequestGroundingTool(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	payload, _ := buildBody(t, a, &imagegen.RequestConfig{Prompt: "p", Grounding: true})
	require.Len(t, payload.Tools, 1)

	payload, _ = buildBody(t, a, &imagegen.RequestConfig{Prompt: "p"})
	assert.Empty(t, payload.Tools)
}

func TestParseResponseImageAndText(t *testing.T) {
	a, store := newTestAdapter(providers.Config{})
	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	body, _ := json.Marshal(generateResponse{Candidates: []candidate{{
		FinishReason: "STOP",
		Content: &content{Parts: []part{
			{Text: "here you go"},
			{InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(raw)}},
		}},
	}}})

	result, err := a.ParseResponse(context.Background(), body, 200, imagegen.ParseContext{})
	require.NoError(t, err)
	require.Len(t, result.Images, 1)
	assert.NotEmpty(t, result.Images[0].LocalPath)
	assert.Equal(t, "here you go", result.Text)
	assert.False(t, result.Empty())

	// 落盘字节与响应内联数据一致
	require.Equal(t, 1, store.Count())
	assert.Equal(t, raw, store.Saved[0])
}

func TestParseResponseThoughtParts(t *testing.T) {
	a, store := newTestAdapter(providers.Config{})
	body, _ := json.Marshal(generateResponse{Candidates: []candidate{{
		Content: &content{Parts: []part{
			{Thought: true, ThoughtSignature: "sig-abc", InlineData: &inlineData{MimeType: "image/png", Data: "aWdub3JlZA=="}},
			{InlineData: &inlineData{MimeType: "image/png", Data: "cmVhbA=="}},
		}},
	}}})

	result, err := a.ParseResponse(context.Background(), body, 200, imagegen.ParseContext{})
	require.NoError(t, err)
	// 思考 part 里的图像数据不算输出, 但签名要透传
	require.Len(t, result.Images, 1)
	assert.Equal(t, 1, store.Count())
	assert.Equal(t, "sig-abc", result.ThoughtSignature)
}

func TestParseResponseFiltered(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	for _, reason := range []string{"SAFETY", "RECITATION"} {
		body, _ := json.Marshal(generateResponse{Candidates: []candidate{{FinishReason: reason}}})
		result, err := a.ParseResponse(context.Background(), body, 200, imagegen.ParseContext{})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Filtered)
		assert.Equal(t, reason, result.FinishReason)
		assert.False(t, result.Empty())
	}
}

func TestParseResponsePromptBlocked(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})
	body := []byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)

	result, err := a.ParseResponse(context.Background(), body, 200, imagegen.ParseContext{})
	require.NoError(t, err)
	assert.True(t, result.Filtered)
}

func TestParseResponseTextOnlyIsFatal(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})
	body, _ := json.Marshal(generateResponse{Candidates: []candidate{{
		Content: &content{Parts: []part{{Text: "I cannot draw that"}}},
	}}})

	_, err := a.ParseResponse(context.Background(), body, 200, imagegen.ParseContext{})
	require.Error(t, err)
	assert.Equal(t, types.ErrNoImage, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestParseResponseMalformed(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>backend error</html>"},
		{"no candidates no feedback", `{"candidates":[]}`},
		{"candidate without content", `{"candidates":[{"finishReason":"STOP"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.ParseResponse(context.Background(), []byte(tt.body), 200, imagegen.ParseContext{})
			require.Error(t, err)
			assert.Equal(t, types.ErrMalformedResponse, types.GetErrorCode(err))
			assert.True(t, types.IsRetryable(err))
		})
	}
}

func TestParseResponseHTTPErrors(t *testing.T) {
	a, _ := newTestAdapter(providers.Config{})

	_, err := a.ParseResponse(context.Background(), []byte(`{"error":{"message":"bad key"}}`), 401, imagegen.ParseContext{})
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))

	_, err = a.ParseResponse(context.Background(), []byte("overloaded"), 503, imagegen.ParseContext{})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}
