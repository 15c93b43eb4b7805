// Package dashscope implements the Alibaba Cloud DashScope (百炼) async
// text-to-image adapter.
//
// 提交：POST {base}/services/aigc/text2image/image-synthesis，头 X-DashScope-Async: enable
// 轮询：GET  {base}/tasks/{task_id}，直到 SUCCEEDED / FAILED
package dashscope

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/llm/poller"
	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/types"
)

// DefaultBaseURL 百炼 API 默认地址
const DefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"

// Config holds the DashScope adapter configuration.
type Config struct {
	providers.Options
}

// Provider DashScope 适配器，仅支持图像
type Provider struct {
	http   *providers.HTTPClient
	poller *poller.Poller
	logger *zap.Logger
}

// New creates a DashScope adapter. The poller drives submitted tasks.
func New(cfg Config, p *poller.Poller, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = poller.New(0, 0, logger)
	}
	logger = logger.With(zap.String("component", "provider"), zap.String("provider", string(types.FamilyDashScope)))
	return &Provider{
		http:   providers.NewHTTPClient(cfg.Options, logger),
		poller: p,
		logger: logger,
	}
}

// Family returns the provider family.
func (p *Provider) Family() types.ProviderFamily { return types.FamilyDashScope }

// CompleteText is not supported by this family.
func (p *Provider) CompleteText(context.Context, *types.BackendConfig, *providers.TextRequest) (string, error) {
	return "", providers.UnsupportedCapability(p.Family(), types.CapabilityText)
}

type synthesisRequest struct {
	Model      string              `json:"model"`
	Input      synthesisInput      `json:"input"`
	Parameters synthesisParameters `json:"parameters"`
}

type synthesisInput struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

type synthesisParameters struct {
	Size string `json:"size,omitempty"`
	N    int    `json:"n"`
	Seed int64  `json:"seed,omitempty"`
}

// GenerateImage submits a synthesis task and polls it to completion.
func (p *Provider) GenerateImage(ctx context.Context, cfg *types.BackendConfig, req *providers.ImageRequest) (string, error) {
	if strings.Contains(strings.ToLower(cfg.Model), "image-edit") {
		return "", types.Errorf(types.ErrUnsupportedModel,
			"model %s is an image-edit model and cannot generate from text", cfg.Model).
			WithProvider(string(p.Family()))
	}

	base := cfg.BaseURL
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseURL
	}
	endpoint := func(path string) string { return strings.TrimRight(base, "/") + path }

	data, err := p.http.Do(ctx, p.Family(), providers.Call{
		Method:  http.MethodPost,
		URL:     endpoint("/services/aigc/text2image/image-synthesis"),
		APIKey:  cfg.APIKey,
		Headers: map[string]string{"X-DashScope-Async": "enable"},
		Body: synthesisRequest{
			Model: cfg.Model,
			Input: synthesisInput{Prompt: req.Prompt, NegativePrompt: req.NegativePrompt},
			Parameters: synthesisParameters{
				Size: dashScopeSize(req.Size),
				N:    1,
				Seed: req.Seed,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if err := providers.RequireJSON(p.Family(), data, p.http.ErrorLimit()); err != nil {
		return "", err
	}

	taskID := gjson.GetBytes(data, "output.task_id").Str
	if taskID == "" {
		msg := providers.ReadErrorMessage(data, p.http.ErrorLimit())
		return "", providers.FormatError(p.Family(), "submit response has no output.task_id").WithDetail(msg)
	}

	job := poller.NewJob(taskID, p.Family(), endpoint("/tasks/"+taskID))
	p.logger.Info("异步出图任务已提交", zap.String("task_id", taskID), zap.String("model", cfg.Model))

	return poller.Poll(ctx, p.poller, job, func(ctx context.Context) (poller.Check[string], error) {
		return p.status(ctx, cfg.APIKey, job.PollURL)
	})
}

// status 查询一次任务状态
func (p *Provider) status(ctx context.Context, apiKey, pollURL string) (poller.Check[string], error) {
	data, err := p.http.Do(ctx, p.Family(), providers.Call{Method: http.MethodGet, URL: pollURL, APIKey: apiKey})
	if err != nil {
		return poller.Check[string]{}, err
	}
	if err := providers.RequireJSON(p.Family(), data, p.http.ErrorLimit()); err != nil {
		return poller.Check[string]{}, err
	}

	switch status := gjson.GetBytes(data, "output.task_status").Str; status {
	case "SUCCEEDED":
		imageURL := gjson.GetBytes(data, "output.results.0.url").Str
		if imageURL == "" {
			// 成功但无结果视为致命格式错误
			return poller.Check[string]{}, providers.FormatError(p.Family(), "task succeeded without output.results[0].url")
		}
		return poller.Check[string]{Status: poller.StatusSucceeded, Result: imageURL}, nil
	case "FAILED", "CANCELED", "UNKNOWN":
		msg, _, _ := providers.FirstString(data, "output.message", "message", "output.code", "code")
		if msg == "" {
			msg = "task " + strings.ToLower(status)
		}
		return poller.Check[string]{Status: poller.StatusFailed, Message: providers.Truncate(msg, p.http.ErrorLimit())}, nil
	case "PENDING":
		return poller.Check[string]{Status: poller.StatusPending}, nil
	default:
		return poller.Check[string]{Status: poller.StatusRunning}, nil
	}
}

// dashScopeSize 1024x1024 → 1024*1024
func dashScopeSize(size string) string {
	if size == "" {
		return "1024*1024"
	}
	return strings.ReplaceAll(strings.ToLower(size), "x", "*")
}
