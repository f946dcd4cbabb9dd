package doubao

import (
	"strings"

	"github.com/BaSui01/imageflow/types"
)

// 火山方舟错误码分类, 参考 https://www.volcengine.com/docs/82379/1299023

// 不可重试: 需要用户修改输入或配置
var nonRetryableCodes = map[string]struct{}{
	// 参数错误
	"MissingParameter":               {},
	"InvalidParameter":               {},
	"InvalidEndpoint.ClosedEndpoint": {},
	// 敏感内容检测
	"InputTextRiskDetection":                   {},
	"InputImageRiskDetection":                  {},
	"OutputTextRiskDetection":                  {},
	"OutputImageRiskDetection":                 {},
	"SensitiveContentDetected":                 {},
	"SensitiveContentDetected.SevereViolation": {},
	"SensitiveContentDetected.Violence":        {},
	"InputTextSensitiveContentDetected":        {},
	"InputImageSensitiveContentDetected":       {},
	"InputVideoSensitiveContentDetected":       {},
	"OutputTextSensitiveContentDetected":       {},
	"OutputImageSensitiveContentDetected":      {},
	"OutputVideoSensitiveContentDetected":      {},
	// 图片格式错误
	"InvalidImageURL.EmptyURL":                {},
	"InvalidImageURL.InvalidFormat":           {},
	"InvalidArgumentError.InvalidImageDetail": {},
	"InvalidArgumentError.InvalidPixelLimit":  {},
	// 认证/权限错误
	"AuthenticationError":              {},
	"InvalidAccountStatus":             {},
	"AccessDenied":                     {},
	"OperationDenied.PermissionDenied": {},
	"OperationDenied.ServiceNotOpen":   {},
	"OperationDenied.ServiceOverdue":   {},
	"AccountOverdueError":              {},
	// 资源不存在
	"InvalidEndpointOrModel.NotFound":              {},
	"ModelNotOpen":                                 {},
	"InvalidEndpointOrModel.ModelIDAccessDisabled": {},
	// 订阅问题
	"InvalidSubscription": {},
	"UnsupportedModel":    {},
}

// 可重试: 临时性错误
var retryableCodes = map[string]struct{}{
	// 速率限制
	"RateLimitExceeded.EndpointRPMExceeded": {},
	"RateLimitExceeded.EndpointTPMExceeded": {},
	"ModelAccountRpmRateLimitExceeded":      {},
	"ModelAccountTpmRateLimitExceeded":      {},
	"APIAccountRpmRateLimitExceeded":        {},
	"ModelAccountIpmRateLimitExceeded":      {},
	"AccountRateLimitExceeded":              {},
	"InflightBatchsizeExceeded":             {},
	// 配额超限
	"QuotaExceeded":    {},
	"SetLimitExceeded": {},
	// 服务端错误
	"ServerOverloaded":              {},
	"InternalServiceError":          {},
	"ContentSecurityDetectionError": {},
}

// 错误码到用户友好消息的映射
var friendlyMessages = map[string]string{
	// 参数错误
	"MissingParameter":               "请求缺少必要参数，请检查配置。",
	"InvalidParameter":               "请求参数无效，请检查配置。",
	"InvalidEndpoint.ClosedEndpoint": "推理接入点已关闭或暂时不可用，请稍后重试。",
	// 敏感内容
	"InputTextRiskDetection":                   "输入文本可能包含敏感信息，请修改后重试。",
	"InputImageRiskDetection":                  "输入图片可能包含敏感信息，请更换后重试。",
	"OutputTextRiskDetection":                  "生成的文字可能包含敏感信息，请修改输入后重试。",
	"OutputImageRiskDetection":                 "生成的图片可能包含敏感信息，请修改输入后重试。",
	"SensitiveContentDetected":                 "输入内容可能包含敏感信息，请使用其他提示词。",
	"SensitiveContentDetected.SevereViolation": "输入内容可能包含严重违规信息，请使用其他提示词。",
	"SensitiveContentDetected.Violence":        "输入内容可能包含激进行为相关信息，请使用其他提示词。",
	"InputTextSensitiveContentDetected":        "输入文本可能包含敏感信息，请修改后重试。",
	"InputImageSensitiveContentDetected":       "输入图像可能包含敏感信息，请更换后重试。",
	"OutputTextSensitiveContentDetected":       "生成的文字可能包含敏感信息，请修改输入后重试。",
	"OutputImageSensitiveContentDetected":      "生成的图像可能包含敏感信息，请修改输入后重试。",
	// 图片格式
	"InvalidImageURL.EmptyURL":      "图片 URL 为空，请提供有效的图片。",
	"InvalidImageURL.InvalidFormat": "图片格式无效或数据损坏，请更换图片。",
	// 认证/权限
	"AuthenticationError":            "API 密钥无效，请检查配置。",
	"InvalidAccountStatus":           "账号状态异常，请联系管理员。",
	"AccessDenied":                   "没有访问权限，请检查权限设置。",
	"AccountOverdueError":            "账号已欠费，请前往火山引擎费用中心充值。",
	"OperationDenied.ServiceNotOpen": "模型服务未开通，请前往火山方舟控制台开通。",
	"OperationDenied.ServiceOverdue": "账单已逾期，请前往火山费用中心充值。",
	// 资源不存在
	"InvalidEndpointOrModel.NotFound": "模型或推理接入点不存在，请检查配置。",
	"ModelNotOpen":                    "模型服务未开通，请前往火山方舟控制台开通。",
	// 速率限制
	"RateLimitExceeded.EndpointRPMExceeded": "请求频率超限 (RPM)，请稍后重试。",
	"RateLimitExceeded.EndpointTPMExceeded": "Token 用量超限 (TPM)，请稍后重试。",
	"ModelAccountRpmRateLimitExceeded":      "账户模型 RPM 限制已超出，请稍后重试。",
	"ModelAccountTpmRateLimitExceeded":      "账户模型 TPM 限制已超出，请稍后重试。",
	"ModelAccountIpmRateLimitExceeded":      "账户模型 IPM 限制已超出，请稍后重试。",
	"AccountRateLimitExceeded":              "请求频率过高，请降低请求频率后重试。",
	"ServerOverloaded":                      "服务资源紧张，请稍后重试。",
	"QuotaExceeded":                         "配额已用尽，请稍后重试或联系管理员。",
	"InternalServiceError":                  "服务内部错误，请稍后重试。",
}

// friendlyMessage 返回用户友好消息: 精确匹配优先, 带参数的错误码
// (如 MissingParameter.xxx) 走前缀匹配, 都失配时回退原始消息.
func friendlyMessage(code, original string) string {
	if msg, ok := friendlyMessages[code]; ok {
		return msg
	}
	for prefix, msg := range friendlyMessages {
		if strings.HasPrefix(code, prefix) {
			return msg
		}
	}
	return original
}

func codeInSet(code string, set map[string]struct{}) bool {
	if _, ok := set[code]; ok {
		return true
	}
	for prefix := range set {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// isRetryableCode 判断厂商错误是否可重试.
func isRetryableCode(code string, httpStatus int) bool {
	if httpStatus >= 500 && httpStatus < 600 {
		return true
	}
	if httpStatus == 429 {
		return true
	}
	if codeInSet(code, retryableCodes) {
		return true
	}
	if codeInSet(code, nonRetryableCodes) {
		return false
	}
	// 未知错误码默认不可重试
	return false
}

// classifyCode 将厂商错误码映射到统一错误分类.
func classifyCode(code string) types.ErrorCode {
	switch {
	case strings.Contains(code, "RiskDetection"),
		strings.Contains(code, "SensitiveContentDetected"):
		return types.ErrContentFiltered
	case strings.Contains(code, "RateLimit"), code == "InflightBatchsizeExceeded":
		return types.ErrRateLimited
	case code == "QuotaExceeded", code == "SetLimitExceeded":
		return types.ErrQuotaExceeded
	case code == "AuthenticationError", code == "InvalidAccountStatus",
		code == "AccountOverdueError", code == "InvalidSubscription":
		return types.ErrUnauthorized
	case code == "AccessDenied", strings.HasPrefix(code, "OperationDenied"):
		return types.ErrForbidden
	default:
		return types.ErrUpstreamError
	}
}

// newVendorError 构建带厂商错误码的统一错误.
func newVendorError(code, message string, httpStatus int) *types.Error {
	e := types.NewError(classifyCode(code), friendlyMessage(code, message)).
		WithProvider(providerName).
		WithVendorCode(code).
		WithRetryable(isRetryableCode(code, httpStatus))
	if httpStatus != 0 {
		e = e.WithHTTPStatus(httpStatus)
	}
	return e
}
