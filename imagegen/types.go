// 包 imagegen 提供多厂商图像生成请求引擎的核心类型与编排逻辑.
package imagegen

import (
	"context"
)

// ImageInputMode 控制参考图的编码方式.
type ImageInputMode string

const (
	// ImageInputAuto URL 直接透传, 字节数据按厂商要求编码
	ImageInputAuto ImageInputMode = "auto"
	// ImageInputForceEncoded 全部参考图强制编码为内联 base64
	ImageInputForceEncoded ImageInputMode = "force_encoded"
)

// ImageInput 是一张参考图: URL 字符串或原始字节二选一.
type ImageInput struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type,omitempty"` // defaults to image/png when Data is set
}

// RequestConfig 代表一次图像生成请求, 每次调用期间不可变.
type RequestConfig struct {
	Provider    string `json:"provider"`
	Model       string `json:"model,omitempty"`
	Prompt      string `json:"prompt"`
	APIBase     string `json:"api_base,omitempty"`     // custom endpoint base, optional
	Resolution  string `json:"resolution,omitempty"`   // 1K, 2K, 4K or literal WxH
	AspectRatio string `json:"aspect_ratio,omitempty"` // 1:1, 16:9, ...

	// Grounding 启用厂商侧搜索增强 (目前仅 Google 支持)
	Grounding bool `json:"grounding,omitempty"`
	// TextModality 请求图像+文本混合输出而不是纯图像
	TextModality bool `json:"text_modality,omitempty"`

	ReferenceImages []ImageInput   `json:"reference_images,omitempty"`
	Seed            int64          `json:"seed,omitempty"`
	ImageInputMode  ImageInputMode `json:"image_input_mode,omitempty"`

	// SmartRetry 允许适配器在重试时切换响应格式 (如 URL → 内联编码)
	SmartRetry bool  `json:"smart_retry,omitempty"`
	Watermark  *bool `json:"watermark,omitempty"`
	Count      int   `json:"count,omitempty"` // number of images, 0 = vendor default
}

// RequestKind 标识请求体的编码类型.
type RequestKind string

const (
	KindJSON      RequestKind = "json"
	KindMultipart RequestKind = "multipart"
)

// ProviderRequest 是一次尝试要发出的完整 HTTP 请求, 每次尝试重建.
type ProviderRequest struct {
	URL         string
	Headers     map[string]string
	Body        []byte
	ContentType string // set for multipart bodies, derived from Kind otherwise
	Kind        RequestKind
}

// ImageRef 指向一张输出图像: 远端 URL 或落盘后的本地路径.
type ImageRef struct {
	URL       string `json:"url,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}

// Result 是归一化后的生成结果.
type Result struct {
	Images []ImageRef `json:"images,omitempty"`
	Text   string     `json:"text,omitempty"`

	// ThoughtSignature 厂商返回的不透明续写令牌, 原样透传
	ThoughtSignature string `json:"thought_signature,omitempty"`

	// Filtered 表示内容被厂商安全策略拦截, 此时 Images/Text 为空
	Filtered     bool   `json:"filtered,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Empty reports whether the result carries neither images nor text.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Images) == 0 && r.Text == "" && !r.Filtered)
}

// BuildContext carries per-attempt inputs into request construction.
type BuildContext struct {
	APIKey  string
	IsRetry bool
}

// ParseContext carries per-attempt inputs into response parsing.
type ParseContext struct {
	IsRetry bool
}

// Adapter 定义厂商适配器契约: 构造请求 + 解析响应.
// 实现约束: ParseResponse 绝不允许同时返回 nil 结果和 nil 错误.
type Adapter interface {
	// Name 返回归一化的厂商名.
	Name() string

	// BuildRequest 按当前配置与重试标志构造一次 HTTP 请求.
	BuildRequest(ctx context.Context, cfg *RequestConfig, bc BuildContext) (*ProviderRequest, error)

	// ParseResponse 将厂商响应归一化为 Result 或分类错误.
	ParseResponse(ctx context.Context, body []byte, status int, pc ParseContext) (*Result, error)
}

// ImageStore persists inline-encoded image bytes and hands back a
// local reference path. The engine does not manage file lifecycle.
type ImageStore interface {
	SaveBytes(ctx context.Context, data []byte, mimeType string) (string, error)
	SaveBase64(ctx context.Context, encoded string) (string, error)
}

// Resolver maps a raw provider identifier to an adapter instance.
// Unknown identifiers resolve to the generic OpenAI-compatible
// adapter rather than failing.
type Resolver interface {
	Resolve(provider string) Adapter
}
