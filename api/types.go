package api

import (
	"time"
)

// =============================================================================
// 图像生成类型
// =============================================================================

// GenerateRequest 代表图像生成请求。
// @Description 图像生成请求结构
type GenerateRequest struct {
	// 供应商标识（例如 doubao、glm、gemini）
	Provider string `json:"provider" example:"doubao" binding:"required"`
	// 型号名称，留空使用供应商默认值
	Model string `json:"model,omitempty" example:"doubao-seedream-4.5"`
	// 生成提示词
	Prompt string `json:"prompt" example:"a cat wearing a space helmet" binding:"required"`
	// API 基础地址覆盖（反代支持）
	APIBase string `json:"api_base,omitempty"`
	// 分辨率（1K/2K/4K 或 WxH）
	Resolution string `json:"resolution,omitempty" example:"2K"`
	// 宽高比（例如 16:9）
	AspectRatio string `json:"aspect_ratio,omitempty" example:"1:1"`
	// 是否启用搜索增强（仅 Google）
	Grounding bool `json:"grounding,omitempty"`
	// 是否同时返回文本
	TextModality bool `json:"text_modality,omitempty"`
	// 参考图列表
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
	// 随机种子
	Seed int64 `json:"seed,omitempty" example:"42"`
	// 参考图编码模式（auto 或 force_encoded）
	ImageInputMode string `json:"image_input_mode,omitempty" example:"auto"`
	// 重试时切换响应格式
	SmartRetry bool `json:"smart_retry,omitempty"`
	// 水印开关
	Watermark *bool `json:"watermark,omitempty"`
	// 生成张数
	Count int `json:"count,omitempty" example:"1"`
	// 限流分组标识，留空不限流
	GroupID string `json:"group_id,omitempty" example:"group-42"`
}

// ReferenceImage 代表一张参考图。
// @Description 参考图结构
type ReferenceImage struct {
	// 图片 URL
	URL string `json:"url,omitempty" example:"https://example.com/ref.png"`
	// Base64 编码的图片数据
	Data string `json:"data,omitempty"`
	// MIME 类型
	MimeType string `json:"mime_type,omitempty" example:"image/png"`
}

// GenerateResponse 表示图像生成响应。
// @Description 图像生成响应结构
type GenerateResponse struct {
	// 处理请求的供应商
	Provider string `json:"provider" example:"doubao"`
	// 生成的图片
	Images []ImageResult `json:"images"`
	// 伴随文本（如有）
	Text string `json:"text,omitempty"`
	// 思维签名（仅 Google）
	ThoughtSignature string `json:"thought_signature,omitempty"`
	// 完成原因
	FinishReason string `json:"finish_reason,omitempty" example:"STOP"`
	// 响应创建时间戳
	CreatedAt time.Time `json:"created_at"`
}

// ImageResult 代表一张生成的图片。
// @Description 图片结果结构
type ImageResult struct {
	// 图片 URL（供应商托管）
	URL string `json:"url,omitempty" example:"https://cdn.example.com/out.png"`
	// 本地保存路径（已下载时）
	LocalPath string `json:"local_path,omitempty" example:"/data/images/out.png"`
}

// =============================================================================
// Key 池类型
// =============================================================================

// KeyPoolResponse 代表单个供应商的 Key 池状态。
// @Description Key 池状态结构
type KeyPoolResponse struct {
	// 供应商标识
	Provider string `json:"provider" example:"doubao"`
	// 池中 Key 总数
	TotalKeys int `json:"total_keys" example:"3"`
	// 每个 Key 的日配额（0 表示不限制）
	DailyLimitPerKey int `json:"daily_limit_per_key" example:"500"`
	// 各 Key 的状态
	Keys []KeyUsageResponse `json:"keys"`
}

// KeyUsageResponse 代表单个 Key 的用量。
// @Description Key 用量结构
type KeyUsageResponse struct {
	// 脱敏后的 Key 标识（仅保留末四位）
	KeySuffix string `json:"key_suffix" example:"***ab12"`
	// 今日已用次数
	UsageToday int `json:"usage_today" example:"42"`
	// 当日额度是否已用尽
	Exhausted bool `json:"exhausted" example:"false"`
}

// KeyPoolListResponse 表示所有供应商的 Key 池列表。
// @Description Key 池列表响应
type KeyPoolListResponse struct {
	// Key 池列表
	Pools []KeyPoolResponse `json:"pools"`
}

// =============================================================================
// 供应商类型
// =============================================================================

// ProviderInfo 代表一个已配置的图像供应商。
// @Description 供应商信息结构
type ProviderInfo struct {
	// 供应商标识
	Name string `json:"name" example:"doubao"`
	// 解析后的适配器名称
	Adapter string `json:"adapter" example:"doubao"`
	// 默认模型
	Model string `json:"model,omitempty" example:"doubao-seedream-4.5"`
	// 是否配置了 API Key
	HasKeys bool `json:"has_keys" example:"true"`
}

// ProviderListResponse 表示供应商列表。
// @Description 供应商列表响应
type ProviderListResponse struct {
	// 供应商名单
	Providers []ProviderInfo `json:"providers"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"Invalid request parameters"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"400"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// 返回错误的供应商
	Provider string `json:"provider,omitempty" example:"doubao"`
	// 供应商原始错误码
	VendorCode string `json:"vendor_code,omitempty" example:"RateLimitExceeded"`
}
