package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/internal/tlsutil"
	"github.com/BaSui01/cardflow/types"
)

// maxResponseBytes 单次响应体上限，b64_json 图片可达数 MB
const maxResponseBytes = 32 << 20

// Options 适配器公共选项
type Options struct {
	// Timeout 单次 HTTP 请求超时，默认 120s
	Timeout time.Duration
	// ErrorBodyLimit 错误信息保留的响应体字符数，默认 200
	ErrorBodyLimit int
	// HTTPClient 自定义客户端（测试注入），为空时创建 TLS 加固客户端
	HTTPClient *http.Client
}

// Call 一次供应商 HTTP 调用
type Call struct {
	Method  string
	URL     string
	APIKey  string
	Headers map[string]string
	Body    any
}

// HTTPClient 供应商 HTTP 调用封装：Bearer 鉴权、JSON 编解码、错误映射
type HTTPClient struct {
	client     *http.Client
	errorLimit int
	logger     *zap.Logger
}

// NewHTTPClient 创建供应商 HTTP 客户端
func NewHTTPClient(opts Options, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.ErrorBodyLimit <= 0 {
		opts.ErrorBodyLimit = DefaultErrorBodyLimit
	}
	client := opts.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(opts.Timeout)
	}
	return &HTTPClient{client: client, errorLimit: opts.ErrorBodyLimit, logger: logger}
}

// ErrorLimit 返回错误信息截断长度
func (c *HTTPClient) ErrorLimit() int {
	return c.errorLimit
}

// Do 发送请求并返回 2xx 响应体；非 2xx 映射为 PROVIDER_REQUEST
func (c *HTTPClient) Do(ctx context.Context, family types.ProviderFamily, call Call) ([]byte, error) {
	var body io.Reader
	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to encode request").WithCause(err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).WithProvider(string(family))
	}
	req.Header.Set("Authorization", "Bearer "+call.APIKey)
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, types.FromContext(ctxErr)
		}
		return nil, types.NewError(types.ErrProviderRequest, "provider request failed").
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(string(family))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, types.FromContext(ctxErr)
		}
		return nil, types.NewError(types.ErrProviderRequest, "failed to read provider response").
			WithCause(err).WithProvider(string(family))
	}

	c.logger.Debug("供应商请求完成",
		zap.String("provider", string(family)),
		zap.String("method", call.Method),
		zap.String("url", call.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ReadErrorMessage(data, c.errorLimit)
		return nil, MapHTTPError(resp.StatusCode, msg, family)
	}
	return data, nil
}

// RequireJSON 校验 2xx 响应体为合法 JSON
func RequireJSON(family types.ProviderFamily, data []byte, limit int) error {
	if !json.Valid(data) {
		return FormatError(family, "provider returned non-JSON body: %s", Truncate(string(data), limit))
	}
	return nil
}
