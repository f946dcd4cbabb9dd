// Package whatai 实现 WhatAI 图像编辑适配器.
// 请求走 multipart/form-data, 端点 https://api.whatai.cc/v1/images/edits
package whatai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/types"
)

const (
	providerName = "whatai"

	defaultAPIBase = "https://api.whatai.cc/v1"
	defaultModel   = "nano-banana"
	defaultSize    = "1K"

	editsPath = "/images/edits"
)

// 尺寸映射
var sizeMapping = map[string]string{
	"1K":        "1K",
	"2K":        "2K",
	"4K":        "4K",
	"1024X1024": "1K",
	"2048X2048": "2K",
	"4096X4096": "4K",
}

// Adapter 通过 multipart 表单与 WhatAI 图像编辑 API 交互.
type Adapter struct {
	cfg    providers.Config
	images imagegen.ImageStore
	logger *zap.Logger
}

// New 创建 WhatAI 适配器.
func New(cfg providers.Config, images imagegen.ImageStore, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, images: images, logger: logger}
}

func (a *Adapter) Name() string { return providerName }

type dataItem struct {
	URL           string `json:"url"`
	B64JSON       string `json:"b64_json"`
	RevisedPrompt string `json:"revised_prompt"`
}

type editResponse struct {
	Created int64           `json:"created"`
	Data    []dataItem      `json:"data"`
	Error   json.RawMessage `json:"error"`
}

// BuildRequest 构造 multipart 编辑请求. 用户把完整的 /images/edits
// 路径填进 api_base 时不再追加路径.
func (a *Adapter) BuildRequest(ctx context.Context, cfg *imagegen.RequestConfig, bc imagegen.BuildContext) (*imagegen.ProviderRequest, error) {
	base := providers.ResolveBase(cfg.APIBase, a.cfg.APIBase, defaultAPIBase)
	url := base + editsPath
	if strings.Contains(base, editsPath) {
		url = base
	}

	model := cfg.Model
	if model == "" {
		model = a.cfg.Model
	}
	if model == "" {
		model = defaultModel
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("model", model); err != nil {
		return nil, encodeError(err)
	}
	if err := form.WriteField("prompt", cfg.Prompt); err != nil {
		return nil, encodeError(err)
	}

	for idx, ref := range cfg.ReferenceImages {
		data, mime, err := providers.RefBytes(ref)
		if err != nil || len(data) == 0 {
			if cfg.ImageInputMode == imagegen.ImageInputForceEncoded {
				e := types.NewError(types.ErrInvalidReferenceImage,
					"参考图转换失败，请检查图片来源后重试。").WithProvider(providerName)
				if err != nil {
					e = e.WithCause(err)
				}
				return nil, e
			}
			a.logger.Warn("无法解析参考图片, 已跳过", zap.Int("index", idx), zap.Error(err))
			continue
		}
		part, err := form.CreateFormFile("image", fmt.Sprintf("image-%d%s", idx, extForMime(mime)))
		if err != nil {
			return nil, encodeError(err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, encodeError(err)
		}
	}

	if err := form.WriteField("response_format", "url"); err != nil {
		return nil, encodeError(err)
	}

	if size := a.resolveSize(cfg); size != "" {
		if err := form.WriteField("image_size", size); err != nil {
			return nil, encodeError(err)
		}
	}
	if cfg.AspectRatio != "" {
		if err := form.WriteField("aspect_ratio", cfg.AspectRatio); err != nil {
			return nil, encodeError(err)
		}
	}

	if err := form.Close(); err != nil {
		return nil, encodeError(err)
	}

	// Content-Type 由 multipart writer 提供, 携带 boundary
	return &imagegen.ProviderRequest{
		URL: url,
		Headers: map[string]string{
			"Authorization": "Bearer " + bc.APIKey,
		},
		Body:        buf.Bytes(),
		ContentType: form.FormDataContentType(),
		Kind:        imagegen.KindMultipart,
	}, nil
}

func encodeError(err error) *types.Error {
	return types.NewError(types.ErrInvalidRequest, "failed to encode multipart form").
		WithProvider(providerName).WithCause(err)
}

func extForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// resolveSize 把分辨率映射到 1K/2K/4K, 未知值回退 1K.
func (a *Adapter) resolveSize(cfg *imagegen.RequestConfig) string {
	resolution := strings.ToUpper(strings.TrimSpace(cfg.Resolution))
	if resolution == "" {
		resolution = strings.ToUpper(strings.TrimSpace(a.cfg.DefaultSize))
	}
	if resolution == "" {
		return defaultSize
	}
	if mapped, ok := sizeMapping[resolution]; ok {
		return mapped
	}
	a.logger.Debug("未知分辨率, 使用默认 1K", zap.String("resolution", resolution))
	return defaultSize
}

// ParseResponse 解析编辑响应: data 数组里的 url 或 b64_json.
func (a *Adapter) ParseResponse(ctx context.Context, body []byte, status int, pc imagegen.ParseContext) (*imagegen.Result, error) {
	if status != 200 {
		return nil, imagegen.ClassifyStatus(status, providers.ReadErrMsg(body), providerName)
	}

	var resp editResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse,
			"WhatAI API 返回了非预期格式的响应").
			WithProvider(providerName).WithRetryable(true).WithCause(err)
	}

	if len(resp.Error) > 0 {
		return nil, types.NewError(types.ErrUpstreamError,
			"WhatAI API 错误: "+providers.ReadErrMsg(body)).
			WithProvider(providerName).WithRetryable(true)
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
		a.logger.Warn("WhatAI 响应中没有图像数据")
		return nil, types.NewError(types.ErrEmptyResponse,
			"WhatAI API 响应中没有图像数据").
			WithProvider(providerName).WithRetryable(true)
	}
	return result, nil
}
