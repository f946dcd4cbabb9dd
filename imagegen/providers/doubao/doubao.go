// Package doubao 实现豆包 (火山方舟 Seedream) 图像生成适配器.
package doubao

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
	providerName = "doubao"

	defaultAPIBase = "https://ark.cn-beijing.volces.com"
	defaultModel   = "doubao-seedream-4.5"

	// Seedream 4.5/4.0 支持 1-14 张参考图
	maxReferenceImages = 14
)

// Adapter 调用火山方舟 images/generations 端点.
type Adapter struct {
	cfg    providers.Config
	images imagegen.ImageStore
	logger *zap.Logger
}

// New 创建豆包适配器.
func New(cfg providers.Config, images imagegen.ImageStore, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, images: images, logger: logger}
}

func (a *Adapter) Name() string { return providerName }

type optimizeOptions struct {
	Mode string `json:"mode"`
}

type sequentialOptions struct {
	MaxImages int `json:"max_images"`
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	ResponseFormat string `json:"response_format"`
	Watermark      bool   `json:"watermark"`
	Size           string `json:"size,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`

	// 单图为字符串, 多图 (2-14) 为字符串数组
	Image any `json:"image,omitempty"`

	OptimizePromptOptions            *optimizeOptions   `json:"optimize_prompt_options,omitempty"`
	SequentialImageGeneration        string             `json:"sequential_image_generation,omitempty"`
	SequentialImageGenerationOptions *sequentialOptions `json:"sequential_image_generation_options,omitempty"`
}

type dataError struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type dataItem struct {
	URL     string     `json:"url"`
	B64JSON string     `json:"b64_json"`
	Error   *dataError `json:"error"`
}

type usage struct {
	GeneratedImages int `json:"generated_images"`
	OutputTokens    int `json:"output_tokens"`
	TotalTokens     int `json:"total_tokens"`
}

type generationResponse struct {
	Data  []dataItem      `json:"data"`
	Error json.RawMessage `json:"error"`
	Usage *usage          `json:"usage"`
}

// BuildRequest 构造方舟生成请求. 重试时 response_format 从 url
// 降级为 b64_json, 规避部分图床 URL 短时失效的问题.
func (a *Adapter) BuildRequest(ctx context.Context, cfg *imagegen.RequestConfig, bc imagegen.BuildContext) (*imagegen.ProviderRequest, error) {
	base := providers.ResolveBase(cfg.APIBase, a.cfg.APIBase, defaultAPIBase)

	model := a.cfg.Model
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		model = defaultModel
	}

	responseFormat := "url"
	if bc.IsRetry {
		a.logger.Debug("重试请求, response_format 降级为 b64_json")
		responseFormat = "b64_json"
	}

	watermark := false
	if cfg.Watermark != nil {
		watermark = *cfg.Watermark
	} else if a.cfg.Watermark != nil {
		watermark = *a.cfg.Watermark
	}

	payload := generationRequest{
		Model:          model,
		Prompt:         cfg.Prompt,
		ResponseFormat: responseFormat,
		Watermark:      watermark,
	}

	// 分辨率优先级: 厂商配置 > 请求 > 默认 2K
	switch {
	case a.cfg.DefaultSize != "":
		payload.Size = mapResolution(a.cfg.DefaultSize, model)
	case cfg.Resolution != "":
		payload.Size = mapResolution(cfg.Resolution, model)
	default:
		payload.Size = "2K"
	}

	if cfg.Seed != 0 {
		seed := cfg.Seed
		payload.Seed = &seed
	}

	image, err := a.buildImageField(cfg)
	if err != nil {
		return nil, err
	}
	payload.Image = image

	if mode := a.cfg.OptimizePromptMode; mode == "standard" || mode == "fast" {
		payload.OptimizePromptOptions = &optimizeOptions{Mode: mode}
	}

	if a.cfg.SequentialImageGeneration == "auto" {
		payload.SequentialImageGeneration = "auto"
		if n := a.cfg.SequentialMaxImages; n >= providers.SequentialImagesMin && n <= providers.SequentialImagesMax {
			payload.SequentialImageGenerationOptions = &sequentialOptions{MaxImages: n}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request payload").
			WithProvider(providerName).WithCause(err)
	}

	a.logger.Debug("构造豆包请求",
		zap.String("model", model),
		zap.String("size", payload.Size),
		zap.String("response_format", responseFormat),
		zap.Bool("has_image", payload.Image != nil),
		zap.Bool("is_retry", bc.IsRetry))

	return &imagegen.ProviderRequest{
		URL: base + "/api/v3/images/generations",
		Headers: map[string]string{
			"Authorization": "Bearer " + bc.APIKey,
			"Content-Type":  "application/json",
		},
		Body: body,
		Kind: imagegen.KindJSON,
	}, nil
}

// buildImageField 归一化参考图: 单图字符串, 多图数组.
func (a *Adapter) buildImageField(cfg *imagegen.RequestConfig) (any, error) {
	if len(cfg.ReferenceImages) == 0 {
		return nil, nil
	}

	forceEncoded := cfg.ImageInputMode == imagegen.ImageInputForceEncoded
	processed := make([]string, 0, maxReferenceImages)
	for _, ref := range providers.CapRefs(cfg.ReferenceImages, maxReferenceImages) {
		encoded, err := providers.EncodeRef(ref, forceEncoded, providerName)
		if err != nil {
			return nil, err
		}
		if encoded == "" {
			continue
		}
		if !strings.HasPrefix(encoded, "http://") && !strings.HasPrefix(encoded, "https://") {
			encoded = providers.FormatDataURI(encoded, ref.MimeType)
		}
		processed = append(processed, encoded)
	}

	switch len(processed) {
	case 0:
		return nil, nil
	case 1:
		return processed[0], nil
	default:
		return processed, nil
	}
}

// mapResolution 把通用分辨率映射到方舟 size 参数.
// seedream-4.5 不支持 1K, 自动升级为 2K; 4.0 支持 1K/2K/4K.
// WxH 字面量直接透传.
func mapResolution(resolution, model string) string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(resolution), " ", ""))
	if normalized == "" {
		return ""
	}
	if providers.IsWxH(normalized) {
		return normalized
	}

	modelNorm := strings.NewReplacer("-", ".", "_", ".").Replace(strings.ToLower(model))

	if strings.Contains(modelNorm, "4.0") {
		switch normalized {
		case "1k", "1024":
			return "1K"
		case "2k", "2048":
			return "2K"
		case "4k", "4096":
			return "4K"
		}
		return "2K"
	}

	// 4.5 及未知型号: 1K 升级为 2K
	if normalized == "4k" || normalized == "4096" {
		return "4K"
	}
	return "2K"
}

// ParseResponse 解析方舟响应. 顶层 error 映射为带厂商错误码的
// 分类错误, data 内逐项错误只告警跳过.
func (a *Adapter) ParseResponse(ctx context.Context, body []byte, status int, pc imagegen.ParseContext) (*imagegen.Result, error) {
	var resp generationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status != 200 {
			return nil, imagegen.ClassifyStatus(status, providers.ReadErrMsg(body), providerName)
		}
		return nil, types.NewError(types.ErrMalformedResponse,
			"豆包 API 返回了非预期格式的响应，请稍后重试。").
			WithProvider(providerName).WithRetryable(true).WithCause(err)
	}

	// 顶层错误且无数据: 按厂商错误码分类
	if len(resp.Error) > 0 && len(resp.Data) == 0 {
		var topErr dataError
		if err := json.Unmarshal(resp.Error, &topErr); err != nil {
			return nil, types.NewError(types.ErrMalformedResponse,
				"豆包 API 返回了格式异常的错误信息。").
				WithProvider(providerName).WithRetryable(true)
		}
		if topErr.Message == "" {
			return nil, types.NewError(types.ErrMalformedResponse,
				"豆包 API 返回了不完整的错误信息，请稍后重试。").
				WithProvider(providerName).WithRetryable(true)
		}
		return nil, newVendorError(topErr.Code, topErr.Message, status)
	}

	if status != 200 {
		return nil, imagegen.ClassifyStatus(status, providers.ReadErrMsg(body), providerName)
	}

	result := &imagegen.Result{}
	for _, item := range resp.Data {
		if item.Error != nil && item.Error.Message != "" {
			a.logger.Warn("单张图像生成失败",
				zap.String("code", item.Error.Code),
				zap.String("message", friendlyMessage(item.Error.Code, item.Error.Message)))
			continue
		}
		if item.URL != "" {
			result.Images = append(result.Images, imagegen.ImageRef{URL: item.URL})
			continue
		}
		if item.B64JSON != "" {
			path, err := a.images.SaveBase64(ctx, item.B64JSON)
			if err != nil {
				a.logger.Warn("图像落盘失败", zap.Error(err))
				continue
			}
			result.Images = append(result.Images, imagegen.ImageRef{LocalPath: path})
		}
	}

	if resp.Usage != nil {
		a.logger.Debug("豆包用量",
			zap.Int("generated_images", resp.Usage.GeneratedImages),
			zap.Int("output_tokens", resp.Usage.OutputTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens))
	}

	if len(result.Images) == 0 {
		return nil, types.NewError(types.ErrEmptyResponse,
			"豆包 API 返回了空响应，未生成图像也未返回错误信息。请稍后重试或检查请求参数。").
			WithProvider(providerName).WithRetryable(true)
	}
	return result, nil
}
