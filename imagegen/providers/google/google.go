// Package google 实现 Google 官方 generateContent 图像生成适配器.
package google

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/types"
)

const (
	defaultAPIBase = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-3-pro-image-preview"

	// 最多携带 14 张参考图, 超出部分丢弃
	maxReferenceImages = 14
)

// Adapter 调用 Google 官方 API 规范的 generateContent 端点.
type Adapter struct {
	cfg    providers.Config
	images imagegen.ImageStore
	logger *zap.Logger
}

// New 创建 Google 适配器.
func New(cfg providers.Config, images imagegen.ImageStore, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, images: images, logger: logger}
}

func (a *Adapter) Name() string { return "google" }

// 官方 API 请求/响应结构

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text             string      `json:"text,omitempty"`
	InlineData       *inlineData `json:"inlineData,omitempty"`
	Thought          bool        `json:"thought,omitempty"`
	ThoughtSignature string      `json:"thoughtSignature,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type imageConfig struct {
	ImageSize   string `json:"imageSize,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type searchTool struct {
	GoogleSearch struct{} `json:"google_search"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	Tools            []searchTool     `json:"tools,omitempty"`
}

type candidate struct {
	FinishReason string   `json:"finishReason,omitempty"`
	Content      *content `json:"content,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback json.RawMessage `json:"promptFeedback,omitempty"`
}

// BuildRequest 构造官方规范的 generateContent 请求.
func (a *Adapter) BuildRequest(ctx context.Context, cfg *imagegen.RequestConfig, bc imagegen.BuildContext) (*imagegen.ProviderRequest, error) {
	base := providers.ResolveBase(cfg.APIBase, a.cfg.APIBase, defaultAPIBase)
	model := cfg.Model
	if model == "" {
		model = a.cfg.Model
	}
	if model == "" {
		model = defaultModel
	}

	parts := []part{{Text: cfg.Prompt}}

	forceEncoded := cfg.ImageInputMode == imagegen.ImageInputForceEncoded
	for _, ref := range providers.CapRefs(cfg.ReferenceImages, maxReferenceImages) {
		encoded, err := providers.EncodeRef(ref, forceEncoded, a.Name())
		if err != nil {
			return nil, err
		}
		if encoded == "" {
			continue
		}
		if strings.HasPrefix(encoded, "http://") || strings.HasPrefix(encoded, "https://") {
			// 裸 URL 无法内联, Google 不支持远程引用
			a.logger.Warn("跳过无法内联的参考图", zap.String("ref", encoded))
			continue
		}
		mime, data, ok := providers.SplitDataURI(providers.FormatDataURI(encoded, ref.MimeType))
		if !ok {
			continue
		}
		parts = append(parts, part{InlineData: &inlineData{MimeType: mime, Data: data}})
	}

	// 响应模态: 纯 IMAGE 模式兼容性差, 统一降级为 TEXT+IMAGE
	modalities := []string{"IMAGE"}
	if cfg.TextModality {
		modalities = []string{"TEXT", "IMAGE"}
	}
	if len(modalities) == 1 && modalities[0] == "IMAGE" {
		a.logger.Debug("降级响应模态 IMAGE -> TEXT+IMAGE")
		modalities = []string{"TEXT", "IMAGE"}
	}

	genCfg := generationConfig{ResponseModalities: modalities}

	imgCfg := imageConfig{}
	resolution := strings.ToUpper(strings.TrimSpace(a.resolvedSize(cfg)))
	switch resolution {
	case "1K", "2K", "4K":
		imgCfg.ImageSize = resolution
	case "":
	default:
		a.logger.Warn("不支持的分辨率, 使用默认值", zap.String("resolution", resolution))
	}
	if strings.Contains(cfg.AspectRatio, ":") {
		imgCfg.AspectRatio = cfg.AspectRatio
	} else if cfg.AspectRatio != "" {
		a.logger.Warn("不支持的长宽比格式", zap.String("aspect_ratio", cfg.AspectRatio))
	}
	if imgCfg != (imageConfig{}) {
		genCfg.ImageConfig = &imgCfg
	}

	req := generateRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: genCfg,
	}
	if cfg.Grounding {
		req.Tools = []searchTool{{}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request payload").
			WithProvider(a.Name()).WithCause(err)
	}

	return &imagegen.ProviderRequest{
		URL: base + "/models/" + model + ":generateContent",
		Headers: map[string]string{
			"x-goog-api-key": bc.APIKey,
			"Content-Type":   "application/json",
		},
		Body: body,
		Kind: imagegen.KindJSON,
	}, nil
}

func (a *Adapter) resolvedSize(cfg *imagegen.RequestConfig) string {
	if cfg.Resolution != "" {
		return cfg.Resolution
	}
	return a.cfg.DefaultSize
}

// ParseResponse 解析官方响应: 区分图像、思考和文本 part.
// SAFETY/RECITATION 返回 Filtered 结果而不是错误.
func (a *Adapter) ParseResponse(ctx context.Context, body []byte, status int, pc imagegen.ParseContext) (*imagegen.Result, error) {
	if status != 200 {
		return nil, imagegen.ClassifyStatus(status, providers.ReadErrMsg(body), a.Name())
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse,
			"response body is not a JSON object").
			WithProvider(a.Name()).WithRetryable(true).WithCause(err)
	}

	if len(resp.Candidates) == 0 {
		if len(resp.PromptFeedback) > 0 {
			a.logger.Warn("请求被安全策略拦截", zap.ByteString("feedback", resp.PromptFeedback))
			return &imagegen.Result{Filtered: true, FinishReason: "PROMPT_BLOCKED"}, nil
		}
		return nil, types.NewError(types.ErrMalformedResponse,
			"response contained no candidates").
			WithProvider(a.Name()).WithRetryable(true)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" || cand.FinishReason == "RECITATION" {
		a.logger.Warn("生成被拦截", zap.String("finish_reason", cand.FinishReason))
		return &imagegen.Result{Filtered: true, FinishReason: cand.FinishReason}, nil
	}

	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return nil, types.NewError(types.ErrMalformedResponse,
			"candidate is missing content parts").
			WithProvider(a.Name()).WithRetryable(true)
	}

	result := &imagegen.Result{FinishReason: cand.FinishReason}
	var texts []string
	nonThought := 0

	for _, p := range cand.Content.Parts {
		if p.Thought {
			// 思考 part: 仅透传续写令牌
			if p.ThoughtSignature != "" && result.ThoughtSignature == "" {
				result.ThoughtSignature = p.ThoughtSignature
			}
			continue
		}
		nonThought++
		if p.InlineData != nil && p.InlineData.Data != "" {
			path, err := a.images.SaveBase64(ctx, p.InlineData.Data)
			if err != nil {
				a.logger.Warn("图像落盘失败", zap.Error(err))
				continue
			}
			result.Images = append(result.Images, imagegen.ImageRef{LocalPath: path})
			continue
		}
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}

	if len(texts) > 0 {
		result.Text = strings.Join(texts, " ")
	}

	if len(result.Images) > 0 {
		return result, nil
	}

	// 所有非思考 part 都是文本: 模型没有生成图像, 重试无意义
	if len(texts) > 0 && len(texts) == nonThought {
		return nil, types.NewError(types.ErrNoImage,
			"the model returned only text, check that the configured model supports image output").
			WithProvider(a.Name())
	}

	return nil, types.NewError(types.ErrMalformedResponse,
		"no image data found in response").
		WithProvider(a.Name()).WithRetryable(true)
}
