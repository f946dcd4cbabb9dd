package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/imageflow/api"
	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎨 图像生成接口 Handler
// =============================================================================

// GenerateHandler 图像生成接口处理器
type GenerateHandler struct {
	client  *imagegen.Client
	fetcher *imagegen.Fetcher
	opts    imagegen.GenerateOptions
	logger  *zap.Logger
}

// NewGenerateHandler 创建图像生成处理器。
// fetcher 可以为 nil, 此时 URL 形式的结果原样返回不落盘。
func NewGenerateHandler(client *imagegen.Client, fetcher *imagegen.Fetcher, opts imagegen.GenerateOptions, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		client:  client,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
	}
}

// HandleGenerate 处理图像生成请求
// @Summary 图像生成
// @Description 发送图像生成请求, 内部完成重试与 Key 轮换
// @Tags 图像
// @Accept json
// @Produce json
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {object} api.GenerateResponse "生成响应"
// @Failure 400 {object} Response "无效请求"
// @Failure 429 {object} Response "限流"
// @Failure 502 {object} Response "上游错误"
// @Security ApiKeyAuth
// @Router /api/v1/generate [post]
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 验证请求
	if err := h.validateGenerateRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	cfg, convErr := h.convertToRequestConfig(&req)
	if convErr != nil {
		WriteError(w, convErr, h.logger)
		return
	}

	opts := h.opts
	opts.GroupID = req.GroupID

	// 调用生成引擎
	start := time.Now()
	result, err := h.client.Generate(r.Context(), cfg, opts)
	duration := time.Since(start)

	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	// URL 结果按需下载到本地
	images := result.Images
	if h.fetcher != nil {
		images = h.fetcher.Localize(r.Context(), images)
	}

	// 记录日志
	h.logger.Info("image generation",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Int("images", len(images)),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, h.convertToAPIResponse(req.Provider, result, images))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// validateGenerateRequest 验证生成请求
func (h *GenerateHandler) validateGenerateRequest(req *api.GenerateRequest) *types.Error {
	if req.Provider == "" {
		return types.NewError(types.ErrInvalidRequest, "provider is required")
	}

	if req.Prompt == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt is required")
	}

	// 验证参考图编码模式
	switch imagegen.ImageInputMode(req.ImageInputMode) {
	case "", imagegen.ImageInputAuto, imagegen.ImageInputForceEncoded:
	default:
		return types.NewError(types.ErrInvalidRequest, "image_input_mode must be auto or force_encoded")
	}

	// 参考图至少要有 URL 或数据其一
	for i, ref := range req.ReferenceImages {
		if ref.URL == "" && ref.Data == "" {
			return types.NewError(types.ErrInvalidReferenceImage,
				fmt.Sprintf("reference image %d needs either url or data", i))
		}
	}

	if req.Count < 0 {
		return types.NewError(types.ErrInvalidRequest, "count must not be negative")
	}

	return nil
}

// convertToRequestConfig 转换为引擎请求配置, 参考图数据从 base64 还原为字节
func (h *GenerateHandler) convertToRequestConfig(req *api.GenerateRequest) (*imagegen.RequestConfig, *types.Error) {
	refs := make([]imagegen.ImageInput, len(req.ReferenceImages))
	for i, ref := range req.ReferenceImages {
		var data []byte
		if ref.Data != "" {
			decoded, err := base64.StdEncoding.DecodeString(ref.Data)
			if err != nil {
				return nil, types.NewError(types.ErrInvalidReferenceImage,
					fmt.Sprintf("reference image %d has invalid base64 data", i)).WithCause(err)
			}
			data = decoded
		}
		refs[i] = imagegen.ImageInput{
			URL:      ref.URL,
			Data:     data,
			MimeType: ref.MimeType,
		}
	}

	return &imagegen.RequestConfig{
		Provider:        req.Provider,
		Model:           req.Model,
		Prompt:          req.Prompt,
		APIBase:         req.APIBase,
		Resolution:      req.Resolution,
		AspectRatio:     req.AspectRatio,
		Grounding:       req.Grounding,
		TextModality:    req.TextModality,
		ReferenceImages: refs,
		Seed:            req.Seed,
		ImageInputMode:  imagegen.ImageInputMode(req.ImageInputMode),
		SmartRetry:      req.SmartRetry,
		Watermark:       req.Watermark,
		Count:           req.Count,
	}, nil
}

// convertToAPIResponse 转换为 API 响应
func (h *GenerateHandler) convertToAPIResponse(provider string, result *imagegen.Result, images []imagegen.ImageRef) *api.GenerateResponse {
	apiImages := make([]api.ImageResult, len(images))
	for i, img := range images {
		apiImages[i] = api.ImageResult{
			URL:       img.URL,
			LocalPath: img.LocalPath,
		}
	}

	return &api.GenerateResponse{
		Provider:         provider,
		Images:           apiImages,
		Text:             result.Text,
		ThoughtSignature: result.ThoughtSignature,
		FinishReason:     result.FinishReason,
		CreatedAt:        time.Now(),
	}
}

// handleEngineError 处理引擎错误
func (h *GenerateHandler) handleEngineError(w http.ResponseWriter, err error) {
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, typedErr, h.logger)
		return
	}

	// 未知错误, 交给分类器统一包装
	WriteError(w, imagegen.Classify(err, ""), h.logger)
}
