package orchestrator

import (
	"github.com/BaSui01/cardflow/structured"
	"github.com/BaSui01/cardflow/types"
)

// ServedBy 实际服务本次请求的后端配置
type ServedBy struct {
	ConfigID   uint   `json:"configId"`
	ConfigName string `json:"configName"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
}

// Served 操作结果及其服务方
type Served[T any] struct {
	Data     T
	ServedBy ServedBy
}

func servedBy(cfg *types.BackendConfig) ServedBy {
	return ServedBy{
		ConfigID:   cfg.ProfileID,
		ConfigName: cfg.Name,
		Model:      cfg.Model,
		Provider:   string(cfg.Family),
	}
}

// OutlineRequest 大纲生成请求；SourceText、SourceURL、Title 至少提供一个
type OutlineRequest struct {
	ConfigID   *uint  `json:"configId,omitempty"`
	SourceText string `json:"sourceText,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
	Title      string `json:"title,omitempty"`
	PageCount  int    `json:"pageCount,omitempty"`
	Style      string `json:"style,omitempty"`
	Language   string `json:"language,omitempty"`
}

// CardPromptsRequest 逐卡提示词生成请求
type CardPromptsRequest struct {
	ConfigID *uint                   `json:"configId,omitempty"`
	Cards    []structured.CardRecord `json:"cards"`
	Styles   []string                `json:"styles,omitempty"`
}

// CardPromptResult 单张卡片的提示词结果
type CardPromptResult struct {
	Index       int    `json:"index"`
	PageNumber  int    `json:"pageNumber"`
	ImagePrompt string `json:"imagePrompt"`
	Explain     string `json:"explain,omitempty"`
	// Fallback 为真表示生成失败，ImagePrompt 为确定性兜底提示词
	Fallback bool   `json:"fallback"`
	Error    string `json:"error,omitempty"`
}

// QuickPromptsRequest 快速模式批量提示词请求
type QuickPromptsRequest struct {
	ConfigID *uint    `json:"configId,omitempty"`
	Topic    string   `json:"topic"`
	Count    int      `json:"count,omitempty"`
	Styles   []string `json:"styles,omitempty"`
}

// ImageRequest 出图请求
type ImageRequest struct {
	ConfigID       *uint  `json:"configId,omitempty"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
	Size           string `json:"size,omitempty"`
}

// ImageResult 出图结果，URL 可能是 data URI
type ImageResult struct {
	URL string `json:"url"`
}

// ChatRequest 通用对话请求
type ChatRequest struct {
	ConfigID    *uint           `json:"configId,omitempty"`
	Capability  string          `json:"capability,omitempty"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"maxTokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// TranslateRequest 翻译请求
type TranslateRequest struct {
	ConfigID       *uint  `json:"configId,omitempty"`
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// TranslateResult 翻译结果
type TranslateResult struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

// ConnectionResult 连接测试结果
type ConnectionResult struct {
	Capability types.Capability `json:"capability"`
	Sample     string           `json:"sample"`
	LatencyMS  int64            `json:"latencyMs"`
}
