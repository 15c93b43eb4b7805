package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/cardflow/types"
)

// DefaultErrorBodyLimit 错误信息中保留的响应体默认字符数
const DefaultErrorBodyLimit = 200

// TextRequest 文本生成请求
type TextRequest struct {
	Messages    []types.Message
	MaxTokens   int
	// Temperature 为 nil 时不发送，由后端取默认值；0 会被原样发送
	Temperature *float32
}

// ImageRequest 图像生成请求
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Size           string // 形如 1024x1024
	Steps          int
	Seed           int64
}

// Adapter 供应商家族适配器。每个家族恰好注册一个实现。
type Adapter interface {
	// Family 返回适配器所服务的供应商家族
	Family() types.ProviderFamily
	// CompleteText 返回助手消息文本
	CompleteText(ctx context.Context, cfg *types.BackendConfig, req *TextRequest) (string, error)
	// GenerateImage 返回图片 URL 或 data URI
	GenerateImage(ctx context.Context, cfg *types.BackendConfig, req *ImageRequest) (string, error)
}

// MapHTTPError 将非 2xx 响应映射为 PROVIDER_REQUEST 错误
// 这是所有适配器使用的通用错误映射函数
func MapHTTPError(status int, msg string, provider types.ProviderFamily) *types.Error {
	retryable := status == http.StatusTooManyRequests || status >= 500
	return types.Errorf(types.ErrProviderRequest, "provider returned HTTP %d: %s", status, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(string(provider)).
		WithDetail(msg)
}

// FormatError 构造 PROVIDER_RESPONSE_FORMAT 错误
func FormatError(provider types.ProviderFamily, format string, args ...any) *types.Error {
	return types.Errorf(types.ErrProviderResponseFormat, format, args...).
		WithProvider(string(provider))
}

// UnsupportedCapability 构造能力不支持错误
func UnsupportedCapability(provider types.ProviderFamily, capability types.Capability) *types.Error {
	return types.Errorf(types.ErrUnsupportedCapability,
		"provider family %s does not support %s generation", provider, capability).
		WithProvider(string(provider))
}

// errorMessagePaths 各家族错误信息所在字段，按顺序尝试
var errorMessagePaths = []string{
	"error.message",
	"errors.message",
	"message",
	"output.message",
	"msg",
	"error",
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本；结果按 limit 截断
func ReadErrorMessage(body []byte, limit int) string {
	if gjson.ValidBytes(body) {
		for _, path := range errorMessagePaths {
			r := gjson.GetBytes(body, path)
			if r.Type == gjson.String && r.Str != "" {
				msg := r.Str
				if typ := gjson.GetBytes(body, "error.type"); path == "error.message" && typ.Str != "" {
					msg = fmt.Sprintf("%s (type: %s)", msg, typ.Str)
				}
				if code := gjson.GetBytes(body, "code"); path == "message" && code.Type == gjson.String && code.Str != "" {
					msg = fmt.Sprintf("%s (code: %s)", msg, code.Str)
				}
				return Truncate(msg, limit)
			}
		}
	}
	return Truncate(strings.TrimSpace(string(body)), limit)
}

// Truncate 按字符数截断，超出部分以 ... 结尾
func Truncate(s string, limit int) string {
	if limit <= 0 {
		limit = DefaultErrorBodyLimit
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// FirstString 返回第一个非空字符串字段
func FirstString(body []byte, paths ...string) (string, string, bool) {
	for _, path := range paths {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return r.Str, path, true
		}
	}
	return "", "", false
}
