package providers

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BaSui01/imageflow/imagegen"
	"github.com/BaSui01/imageflow/types"
)

// CapRefs 按厂商上限截断参考图序列, 超出部分从尾部丢弃而不是报错.
func CapRefs(refs []imagegen.ImageInput, max int) []imagegen.ImageInput {
	if len(refs) <= max {
		return refs
	}
	return refs[:max]
}

// ResolveBase 返回请求级 api_base、适配器配置、厂商默认三者中优先级最高的.
func ResolveBase(requestBase, configBase, defaultBase string) string {
	base := strings.TrimRight(strings.TrimSpace(requestBase), "/")
	if base == "" {
		base = strings.TrimRight(strings.TrimSpace(configBase), "/")
	}
	if base == "" {
		base = strings.TrimRight(defaultBase, "/")
	}
	return base
}

var (
	dataURIPattern = regexp.MustCompile(`^data:([^;]+);base64,`)
	wxhPattern     = regexp.MustCompile(`^\d{3,5}x\d{3,5}$`)
	base64Pattern  = regexp.MustCompile(`^[A-Za-z0-9+/=_-]+$`)
)

// IsWxH 判断分辨率是否为字面 WxH 格式 (如 2048x1152).
func IsWxH(resolution string) bool {
	return wxhPattern.MatchString(resolution)
}

// SplitDataURI 拆出 data URI 的 MIME 类型与 base64 数据.
func SplitDataURI(uri string) (mimeType, data string, ok bool) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", "", false
	}
	return m[1], uri[len(m[0]):], true
}

// FormatDataURI 为裸 base64 补齐 data URI 前缀.
func FormatDataURI(encoded, mimeType string) string {
	cleaned := strings.TrimSpace(encoded)
	if strings.HasPrefix(cleaned, "data:image/") {
		return cleaned
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + cleaned
}

// StripDataURIPrefix 去掉 data URI 前缀, 返回纯 base64 数据.
func StripDataURIPrefix(value string) string {
	cleaned := strings.TrimSpace(value)
	if idx := strings.Index(cleaned, ";base64,"); idx >= 0 {
		return strings.TrimSpace(cleaned[idx+len(";base64,"):])
	}
	return cleaned
}

// LooksLikeBase64 粗略判断字符串是否为 base64 数据.
// 宽松处理, 严格校验交给厂商侧.
func LooksLikeBase64(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" || len(v) < 64 {
		return false
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return false
	}
	if strings.ContainsAny(v, " \n\r") {
		v = strings.Join(strings.Fields(v), "")
	}
	return base64Pattern.MatchString(v)
}

// EncodeRef 将一张参考图归一化为厂商接受的字符串: URL 透传或
// data URI. forceEncoded 时 URL 不再透传, 编码失败返回不可重试的
// invalid_reference_image 错误.
func EncodeRef(ref imagegen.ImageInput, forceEncoded bool, provider string) (string, error) {
	if len(ref.Data) > 0 {
		mime := ref.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return FormatDataURI(base64.StdEncoding.EncodeToString(ref.Data), mime), nil
	}

	raw := strings.TrimSpace(ref.URL)
	if raw == "" {
		return "", nil
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if forceEncoded {
			return "", types.NewError(types.ErrInvalidReferenceImage,
				"reference image must be inline-encoded but only a URL was supplied").
				WithProvider(provider)
		}
		return raw, nil
	}

	if strings.HasPrefix(raw, "data:image/") && strings.Contains(raw, ";base64,") {
		return raw, nil
	}

	if LooksLikeBase64(raw) {
		cleaned := strings.ReplaceAll(StripDataURIPrefix(raw), "\n", "")
		if forceEncoded {
			if _, err := base64.StdEncoding.DecodeString(cleaned); err != nil {
				if _, err := base64.RawStdEncoding.DecodeString(cleaned); err != nil {
					return "", types.NewError(types.ErrInvalidReferenceImage,
						"reference image failed base64 validation, replace the image and retry").
						WithProvider(provider).WithCause(err)
				}
			}
		}
		return FormatDataURI(cleaned, ref.MimeType), nil
	}

	if forceEncoded {
		return "", types.NewError(types.ErrInvalidReferenceImage,
			"reference image could not be converted to inline data, check the image source").
			WithProvider(provider)
	}
	return "", nil
}

// RefBytes 将参考图解码为原始字节, 供 multipart 上传使用.
func RefBytes(ref imagegen.ImageInput) ([]byte, string, error) {
	if len(ref.Data) > 0 {
		mime := ref.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return ref.Data, mime, nil
	}

	raw := strings.TrimSpace(ref.URL)
	if mime, data, ok := SplitDataURI(raw); ok {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, "", err
		}
		return decoded, mime, nil
	}
	if LooksLikeBase64(raw) {
		decoded, err := base64.StdEncoding.DecodeString(StripDataURIPrefix(raw))
		if err != nil {
			return nil, "", err
		}
		return decoded, "image/png", nil
	}
	return nil, "", nil
}

// errorEnvelope 匹配各家厂商通用的顶层错误对象.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ReadErrMsg 尽力从响应体中提取错误消息.
func ReadErrMsg(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
