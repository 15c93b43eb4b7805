// Package modelscope implements the ModelScope (魔搭) API-Inference
// text-to-image adapter.
//
// 提交：POST {base}/v1/images/generations，头 X-ModelScope-Async-Mode: true
// 轮询：GET  {base}/v1/tasks/{task_id}，头 X-ModelScope-Task-Type: image_generation
//
// 提交响应若已携带图片（data[0].url 或 output_images[0]）则直接返回。
package modelscope

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

// DefaultBaseURL 魔搭 API-Inference 默认地址
const DefaultBaseURL = "https://api-inference.modelscope.cn"

// Config holds the ModelScope adapter configuration.
type Config struct {
	providers.Options
}

// Provider ModelScope 适配器，仅支持图像
type Provider struct {
	http   *providers.HTTPClient
	poller *poller.Poller
	logger *zap.Logger
}

// New creates a ModelScope adapter.
func New(cfg Config, p *poller.Poller, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = poller.New(0, 0, logger)
	}
	logger = logger.With(zap.String("component", "provider"), zap.String("provider", string(types.FamilyModelScope)))
	return &Provider{
		http:   providers.NewHTTPClient(cfg.Options, logger),
		poller: p,
		logger: logger,
	}
}

// Family returns the provider family.
func (p *Provider) Family() types.ProviderFamily { return types.FamilyModelScope }

// CompleteText is not supported by this family.
func (p *Provider) CompleteText(context.Context, *types.BackendConfig, *providers.TextRequest) (string, error) {
	return "", providers.UnsupportedCapability(p.Family(), types.CapabilityText)
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	Steps          int    `json:"steps,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
}

// syncImagePaths 同步返回时图片可能出现的位置
var syncImagePaths = []string{"data.0.url", "output_images.0"}

// GenerateImage submits a generation request. A synchronous result is
// returned directly; otherwise the task is polled to completion.
func (p *Provider) GenerateImage(ctx context.Context, cfg *types.BackendConfig, req *providers.ImageRequest) (string, error) {
	base := apiBase(cfg.BaseURL)

	data, err := p.http.Do(ctx, p.Family(), providers.Call{
		Method:  http.MethodPost,
		URL:     base + "/v1/images/generations",
		APIKey:  cfg.APIKey,
		Headers: map[string]string{"X-ModelScope-Async-Mode": "true"},
		Body: generationRequest{
			Model:          cfg.Model,
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Size:           req.Size,
			Steps:          req.Steps,
			Seed:           req.Seed,
		},
	})
	if err != nil {
		return "", err
	}
	if err := providers.RequireJSON(p.Family(), data, p.http.ErrorLimit()); err != nil {
		return "", err
	}

	if imageURL, path, ok := providers.FirstString(data, syncImagePaths...); ok {
		p.logger.Debug("出图同步返回", zap.String("field", path), zap.String("model", cfg.Model))
		return imageURL, nil
	}

	taskID := gjson.GetBytes(data, "task_id").String()
	if taskID == "" {
		msg := providers.ReadErrorMessage(data, p.http.ErrorLimit())
		return "", providers.FormatError(p.Family(), "submit response has neither an image nor a task_id").WithDetail(msg)
	}

	job := poller.NewJob(taskID, p.Family(), base+"/v1/tasks/"+taskID)
	p.logger.Info("异步出图任务已提交", zap.String("task_id", taskID), zap.String("model", cfg.Model))

	return poller.Poll(ctx, p.poller, job, func(ctx context.Context) (poller.Check[string], error) {
		return p.status(ctx, cfg.APIKey, job.PollURL)
	})
}

// status 查询一次任务状态
func (p *Provider) status(ctx context.Context, apiKey, pollURL string) (poller.Check[string], error) {
	data, err := p.http.Do(ctx, p.Family(), providers.Call{
		Method:  http.MethodGet,
		URL:     pollURL,
		APIKey:  apiKey,
		Headers: map[string]string{"X-ModelScope-Task-Type": "image_generation"},
	})
	if err != nil {
		return poller.Check[string]{}, err
	}
	if err := providers.RequireJSON(p.Family(), data, p.http.ErrorLimit()); err != nil {
		return poller.Check[string]{}, err
	}

	switch status := gjson.GetBytes(data, "task_status").Str; status {
	case "SUCCEED":
		imageURL := gjson.GetBytes(data, "output_images.0").Str
		if imageURL == "" {
			return poller.Check[string]{}, providers.FormatError(p.Family(), "task succeeded without output_images[0]")
		}
		return poller.Check[string]{Status: poller.StatusSucceeded, Result: imageURL}, nil
	case "FAILED":
		msg, _, _ := providers.FirstString(data, "errors.message", "message", "errors.code")
		if msg == "" {
			msg = "task failed"
		}
		return poller.Check[string]{Status: poller.StatusFailed, Message: providers.Truncate(msg, p.http.ErrorLimit())}, nil
	case "PENDING":
		return poller.Check[string]{Status: poller.StatusPending}, nil
	default:
		return poller.Check[string]{Status: poller.StatusRunning}, nil
	}
}

// apiBase 去掉末尾的 / 与 /v1，统一由适配器拼接版本前缀
func apiBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	return strings.TrimSuffix(base, "/v1")
}
