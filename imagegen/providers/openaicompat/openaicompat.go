// Package openaicompat 实现通用 OpenAI 兼容适配器.
// 走 chat/completions 端点, 兼容各类中转网关: 图像可能出现在
// message.images、正文 data URI 或 images API 风格的 data 数组中.
package openaicompat

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/imagegen/providers"
	"github.com/BaSui01/imageflow/types"
)

const (
	defaultAPIBase = "https://api.openai.com/v1"

	// chat 视觉输入通常限制更严, 最多 6 张参考图
	maxReferenceImages = 6

	promptPrefix = "Generate an image: "
)

// 从正文里抽取内联图像的 data URI.
// 载荷在第一个非 base64 字符处截断, 否则紧跟的正文会被吞进载荷导致解码失败.
var inlineImagePattern = regexp.MustCompile(`data:image/([^;]+);base64,([A-Za-z0-9+/]+={0,2})`)

// Adapter 通过 chat/completions 与任意 OpenAI 兼容网关交互.
type Adapter struct {
	name   string
	cfg    providers.Config
	images imagegen.ImageStore
	logger *zap.Logger
}

// New 创建 OpenAI 兼容适配器, name 用于错误归属 (如 "openai_compat", "grok2", "zai").
func New(name string, cfg providers.Config, images imagegen.ImageStore, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = "openai_compat"
	}
	return &Adapter{name: name, cfg: cfg, images: images, logger: logger}
}

func (a *Adapter) Name() string { return a.name }

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageURLRef struct {
	URL string `json:"url"`
}

type imagePart struct {
	Type     string      `json:"type"`
	ImageURL imageURLRef `json:"image_url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type respImage struct {
	ImageURL imageURLRef `json:"image_url"`
}

type respMessage struct {
	Content string      `json:"content"`
	Images  []respImage `json:"images"`
}

type choice struct {
	Message      respMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type dataItem struct {
	URL     string `json:"url"`
	B64JSON string `json:"b64_json"`
}

type chatResponse struct {
	Choices []choice   `json:"choices"`
	Data    []dataItem `json:"data"`
}

// BuildRequest 构造 chat/completions 请求.
func (a *Adapter) BuildRequest(ctx context.Context, cfg *imagegen.RequestConfig, bc imagegen.BuildContext) (*imagegen.ProviderRequest, error) {
	base := providers.ResolveBase(cfg.APIBase, a.cfg.APIBase, defaultAPIBase)
	model := cfg.Model
	if model == "" {
		model = a.cfg.Model
	}
	if model == "" {
		return nil, types.NewError(types.ErrConfiguration,
			"no model configured for provider "+a.name).WithProvider(a.name)
	}

	prompt := promptPrefix + cfg.Prompt

	var content any = prompt
	refs := providers.CapRefs(cfg.ReferenceImages, maxReferenceImages)
	if len(refs) > 0 {
		parts := []any{textPart{Type: "text", Text: prompt}}
		forceEncoded := cfg.ImageInputMode == imagegen.ImageInputForceEncoded
		for _, ref := range refs {
			encoded, err := providers.EncodeRef(ref, forceEncoded, a.name)
			if err != nil {
				return nil, err
			}
			if encoded == "" {
				continue
			}
			// URL 透传, 其余归一化为 data URI
			if !strings.HasPrefix(encoded, "http://") && !strings.HasPrefix(encoded, "https://") {
				encoded = providers.FormatDataURI(encoded, ref.MimeType)
			}
			parts = append(parts, imagePart{Type: "image_url", ImageURL: imageURLRef{URL: encoded}})
		}
		content = parts
	}

	req := chatRequest{
		Model:       model,
		Messages:    []message{{Role: "user", Content: content}},
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: 0.7,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request payload").
			WithProvider(a.name).WithCause(err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + bc.APIKey,
		"Content-Type":  "application/json",
	}
	if a.cfg.HTTPReferer != "" {
		headers["HTTP-Referer"] = a.cfg.HTTPReferer
	}
	if a.cfg.XTitle != "" {
		headers["X-Title"] = a.cfg.XTitle
	}

	return &imagegen.ProviderRequest{
		URL:     base + "/chat/completions",
		Headers: headers,
		Body:    body,
		Kind:    imagegen.KindJSON,
	}, nil
}

// ParseResponse 从三种兼容形态里提取图像.
func (a *Adapter) ParseResponse(ctx context.Context, body []byte, status int, pc imagegen.ParseContext) (*imagegen.Result, error) {
	if status != 200 {
		return nil, imagegen.ClassifyStatus(status, providers.ReadErrMsg(body), a.name)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse,
			"response body is not a JSON object").
			WithProvider(a.name).WithRetryable(true).WithCause(err)
	}

	result := &imagegen.Result{}

	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		result.FinishReason = resp.Choices[0].FinishReason

		for _, img := range msg.Images {
			a.appendImage(ctx, result, img.ImageURL.URL)
		}

		text := msg.Content
		if len(result.Images) == 0 {
			// 部分网关把图像以 data URI 塞进正文
			for _, m := range inlineImagePattern.FindAllString(text, -1) {
				a.appendImage(ctx, result, m)
			}
		}
		text = strings.TrimSpace(inlineImagePattern.ReplaceAllString(text, ""))
		result.Text = text
	}

	// images API 风格的兜底形态
	if len(result.Images) == 0 {
		for _, item := range resp.Data {
			switch {
			case item.URL != "":
				result.Images = append(result.Images, imagegen.ImageRef{URL: item.URL})
			case item.B64JSON != "":
				a.appendImage(ctx, result, item.B64JSON)
			}
		}
	}

	if result.Empty() {
		return nil, types.NewError(types.ErrEmptyResponse,
			"no image or text found in response").
			WithProvider(a.name).WithRetryable(true)
	}
	return result, nil
}

// appendImage 把一个图像引用归类: URL 直接引用, 内联数据落盘.
func (a *Adapter) appendImage(ctx context.Context, result *imagegen.Result, ref string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		result.Images = append(result.Images, imagegen.ImageRef{URL: ref})
		return
	}
	path, err := a.images.SaveBase64(ctx, providers.StripDataURIPrefix(ref))
	if err != nil {
		a.logger.Warn("图像落盘失败", zap.Error(err))
		return
	}
	result.Images = append(result.Images, imagegen.ImageRef{LocalPath: path})
}
