// Package glm 实现智谱 AI CogView 图像生成适配器.
// API 文档: https://open.bigmodel.cn/dev/api/image/cogview
package glm

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
	providerName = "glm"

	defaultAPIBase = "https://open.bigmodel.cn/api/paas/v4"
	defaultModel   = "cogView-4-250304"
	defaultSize    = "1024x1024"
)

// 通用尺寸到 CogView 支持格式的映射
var sizeMapping = map[string]string{
	// 1:1 比例
	"1K":        "1024x1024",
	"1024x1024": "1024x1024",
	"512x512":   "512x512",
	"768x768":   "768x768",
	// 16:9 比例
	"1920x1080": "1920x1080",
	"1280x720":  "1280x720",
	// 9:16 比例
	"1080x1920": "1080x1920",
	"720x1280":  "720x1280",
	// 4:3 比例
	"1024x768": "1024x768",
	// 3:4 比例
	"768x1024": "768x1024",
	// 其他常见尺寸
	"2K":        "2048x2048",
	"2048x2048": "2048x2048",
}

// 长宽比到尺寸的映射
var aspectRatioMapping = map[string]string{
	"1:1":  "1024x1024",
	"16:9": "1920x1080",
	"9:16": "1080x1920",
	"4:3":  "1024x768",
	"3:4":  "768x1024",
	"3:2":  "1536x1024",
	"2:3":  "1024x1536",
}

// Adapter 调用智谱 CogView images/generations 端点.
type Adapter struct {
	cfg    providers.Config
	images imagegen.ImageStore
	logger *zap.Logger
}

// New 创建 GLM 适配器.
func New(cfg providers.Config, images imagegen.ImageStore, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, images: images, logger: logger}
}

func (a *Adapter) Name() string { return providerName }

type generationRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

type dataItem struct {
	URL           string `json:"url"`
	B64JSON       string `json:"b64_json"`
	RevisedPrompt string `json:"revised_prompt"`
}

type generationResponse struct {
	Created int64      `json:"created"`
	Data    []dataItem `json:"data"`
}

// BuildRequest 构造 CogView 生成请求.
func (a *Adapter) BuildRequest(ctx context.Context, cfg *imagegen.RequestConfig, bc imagegen.BuildContext) (*imagegen.ProviderRequest, error) {
	base := providers.ResolveBase(cfg.APIBase, a.cfg.APIBase, defaultAPIBase)

	model := cfg.Model
	if model == "" {
		model = a.cfg.Model
	}
	if model == "" {
		model = defaultModel
	}

	size := a.resolveSize(cfg)
	a.logger.Debug("构造 CogView 请求", zap.String("model", model), zap.String("size", size))

	body, err := json.Marshal(generationRequest{Model: model, Prompt: cfg.Prompt, Size: size})
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request payload").
			WithProvider(providerName).WithCause(err)
	}

	return &imagegen.ProviderRequest{
		URL: base + "/images/generations",
		Headers: map[string]string{
			"Authorization": "Bearer " + bc.APIKey,
			"Content-Type":  "application/json",
		},
		Body: body,
		Kind: imagegen.KindJSON,
	}, nil
}

// resolveSize 解析尺寸: resolution 优先于 aspect_ratio, 都缺省时 1024x1024.
func (a *Adapter) resolveSize(cfg *imagegen.RequestConfig) string {
	resolution := strings.TrimSpace(cfg.Resolution)
	if resolution == "" {
		resolution = strings.TrimSpace(a.cfg.DefaultSize)
	}
	if resolution != "" {
		if mapped, ok := sizeMapping[resolution]; ok {
			return mapped
		}
		if lowered := strings.ToLower(resolution); strings.Contains(lowered, "x") {
			return lowered
		}
		a.logger.Debug("未知分辨率, 使用默认尺寸", zap.String("resolution", resolution))
		return defaultSize
	}

	if aspect := strings.TrimSpace(cfg.AspectRatio); aspect != "" {
		if mapped, ok := aspectRatioMapping[aspect]; ok {
			return mapped
		}
		a.logger.Debug("未知长宽比, 使用默认尺寸", zap.String("aspect_ratio", aspect))
		return defaultSize
	}

	return defaultSize
}

// ParseResponse 解析 CogView 响应: data 数组里的 url 或 b64_json.
func (a *Adapter) ParseResponse(ctx context.Context, body []byte, status int, pc imagegen.ParseContext) (*imagegen.Result, error) {
	if status != 200 {
		return nil, imagegen.ClassifyStatus(status, providers.ReadErrMsg(body), providerName)
	}

	var resp generationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse,
			"GLM API 返回了非预期格式的响应").
			WithProvider(providerName).WithRetryable(true).WithCause(err)
	}

	result := &imagegen.Result{}
	for _, item := range resp.Data {
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

	if len(resp.Data) > 0 && resp.Data[0].RevisedPrompt != "" {
		result.Text = resp.Data[0].RevisedPrompt
	}

	if len(result.Images) == 0 {
		a.logger.Warn("CogView 响应中没有图像数据")
		return nil, types.NewError(types.ErrEmptyResponse,
			"GLM API 响应中没有图像数据").
			WithProvider(providerName).WithRetryable(true)
	}
	return result, nil
}
