// =============================================================================
// cardflow OpenAI-Compatible Adapter
// =============================================================================
// 文本走 {base}/chat/completions，图像走 {base}/images/generations。
// 图像请求体字段因子方言而异（openai / siliconflow），由 ImageDialect 决定。
// =============================================================================

package openaicompat

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/types"
)

// Config holds the configuration for the OpenAI-compatible adapter.
type Config struct {
	providers.Options

	// Dialects 额外或覆盖的图像方言，按 Name 注册
	Dialects []ImageDialect
}

// Provider is the OpenAI-compatible adapter.
type Provider struct {
	http     *providers.HTTPClient
	dialects map[string]ImageDialect
	logger   *zap.Logger
}

// New creates a new OpenAI-compatible adapter with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "provider"), zap.String("provider", string(types.FamilyOpenAICompatible)))

	p := &Provider{
		http:     providers.NewHTTPClient(cfg.Options, logger),
		dialects: make(map[string]ImageDialect),
		logger:   logger,
	}
	for _, d := range append([]ImageDialect{OpenAIDialect{}, SiliconFlowDialect{}}, cfg.Dialects...) {
		p.dialects[d.Name()] = d
	}
	return p
}

// Family returns the provider family.
func (p *Provider) Family() types.ProviderFamily { return types.FamilyOpenAICompatible }

// chatMessage OpenAI 兼容消息格式
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest OpenAI 兼容聊天完成请求
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
}

// CompleteText performs a non-streaming chat completion and returns the assistant text.
func (p *Provider) CompleteText(ctx context.Context, cfg *types.BackendConfig, req *providers.TextRequest) (string, error) {
	body := chatRequest{
		Model:       cfg.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	data, err := p.http.Do(ctx, p.Family(), providers.Call{
		Method: http.MethodPost,
		URL:    cfg.Endpoint("/chat/completions"),
		APIKey: cfg.APIKey,
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	if err := providers.RequireJSON(p.Family(), data, p.http.ErrorLimit()); err != nil {
		return "", err
	}

	content := gjson.GetBytes(data, "choices.0.message.content")
	if content.Type != gjson.String {
		msg := providers.ReadErrorMessage(data, p.http.ErrorLimit())
		return "", providers.FormatError(p.Family(), "chat completion has no message content").WithDetail(msg)
	}

	p.logger.Debug("文本生成完成",
		zap.String("model", cfg.Model),
		zap.String("finish_reason", gjson.GetBytes(data, "choices.0.finish_reason").Str),
		zap.Int64("total_tokens", gjson.GetBytes(data, "usage.total_tokens").Int()))
	return content.Str, nil
}

// GenerateImage requests one image and returns its URL or a data URI.
func (p *Provider) GenerateImage(ctx context.Context, cfg *types.BackendConfig, req *providers.ImageRequest) (string, error) {
	dialect := p.dialect(cfg.Variant)

	data, err := p.http.Do(ctx, p.Family(), providers.Call{
		Method: http.MethodPost,
		URL:    cfg.Endpoint("/images/generations"),
		APIKey: cfg.APIKey,
		Body:   dialect.ImageBody(cfg, req),
	})
	if err != nil {
		return "", err
	}
	if err := providers.RequireJSON(p.Family(), data, p.http.ErrorLimit()); err != nil {
		return "", err
	}
	return ExtractImage(data, p.http.ErrorLimit())
}

// ExtractImage 依次读取 data[0].url、images[0].url、data[0].b64_json
func ExtractImage(data []byte, errorLimit int) (string, error) {
	if url, _, ok := providers.FirstString(data, "data.0.url", "images.0.url"); ok {
		return url, nil
	}
	if b64, _, ok := providers.FirstString(data, "data.0.b64_json"); ok {
		return "data:image/png;base64," + b64, nil
	}
	msg := providers.ReadErrorMessage(data, errorLimit)
	return "", providers.FormatError(types.FamilyOpenAICompatible, "image response has no url or b64_json").WithDetail(msg)
}

func (p *Provider) dialect(variant string) ImageDialect {
	if d, ok := p.dialects[strings.ToLower(variant)]; ok {
		return d
	}
	return p.dialects[DialectOpenAI]
}
