package openaicompat

import (
	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/types"
)

// 内置图像方言名称，对应 BackendConfig.Variant
const (
	DialectOpenAI      = "openai"
	DialectSiliconFlow = "siliconflow"
)

const (
	defaultImageSize  = "1024x1024"
	defaultImageSteps = 20
)

// ImageDialect 构造图像生成请求体
type ImageDialect interface {
	Name() string
	ImageBody(cfg *types.BackendConfig, req *providers.ImageRequest) any
}

// OpenAIDialect 使用 size + response_format
type OpenAIDialect struct{}

type openAIImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

// Name returns the dialect name.
func (OpenAIDialect) Name() string { return DialectOpenAI }

// ImageBody builds the request body.
func (OpenAIDialect) ImageBody(cfg *types.BackendConfig, req *providers.ImageRequest) any {
	size := req.Size
	if size == "" {
		size = defaultImageSize
	}
	return openAIImageRequest{
		Model:          cfg.Model,
		Prompt:         req.Prompt,
		N:              1,
		Size:           size,
		ResponseFormat: "url",
	}
}

// SiliconFlowDialect 使用 image_size + num_inference_steps
type SiliconFlowDialect struct{}

type siliconFlowImageRequest struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	NegativePrompt    string `json:"negative_prompt,omitempty"`
	ImageSize         string `json:"image_size"`
	NumInferenceSteps int    `json:"num_inference_steps"`
	BatchSize         int    `json:"batch_size"`
	Seed              int64  `json:"seed,omitempty"`
}

// Name returns the dialect name.
func (SiliconFlowDialect) Name() string { return DialectSiliconFlow }

// ImageBody builds the request body.
func (SiliconFlowDialect) ImageBody(cfg *types.BackendConfig, req *providers.ImageRequest) any {
	size := req.Size
	if size == "" {
		size = defaultImageSize
	}
	steps := req.Steps
	if steps <= 0 {
		steps = defaultImageSteps
	}
	return siliconFlowImageRequest{
		Model:             cfg.Model,
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		ImageSize:         size,
		NumInferenceSteps: steps,
		BatchSize:         1,
		Seed:              req.Seed,
	}
}
