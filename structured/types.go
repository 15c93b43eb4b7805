package structured

import "fmt"

// Stage 恢复阶段
type Stage string

const (
	StageExtract           Stage = "extract"
	StageStripControl      Stage = "strip_control"
	StageEscapeStrings     Stage = "escape_strings"
	StageRepairImagePrompt Stage = "repair_image_prompt"
)

// Point 卡片要点
type Point struct {
	Emoji  string `json:"emoji"`
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

// CardRecord 恢复出的单张卡片
type CardRecord struct {
	PageNumber               int     `json:"pageNumber"`
	PageType                 string  `json:"pageType"`
	Title                    string  `json:"title"`
	Subtitle                 string  `json:"subtitle"`
	Content                  string  `json:"content"`
	Points                   []Point `json:"points"`
	ImagePrompt              string  `json:"imagePrompt"`
	ImagePromptExplain       string  `json:"imagePromptExplain"`
	ImagePromptAutoGenerated bool    `json:"imagePromptAutoGenerated"`
}

// CardResult Recover 的结果
type CardResult struct {
	Cards []CardRecord `json:"cards"`
	// AutoGenerated 合成了 imagePrompt 的卡片数量
	AutoGenerated int `json:"autoGenerated"`
	// Stage 解析成功时所处的阶段
	Stage Stage `json:"stage"`
	// Matcher 命中的形状匹配器
	Matcher string `json:"matcher"`
}

// PromptItem 一条图像提示词
type PromptItem struct {
	Prompt  string `json:"prompt"`
	Explain string `json:"explain,omitempty"`
}

// PromptResult RecoverPrompts 的结果
type PromptResult struct {
	Prompts   []PromptItem `json:"prompts"`
	Requested int          `json:"requested"`
	Stage     Stage        `json:"stage"`
	Matcher   string       `json:"matcher"`
}

// Attempt 一次恢复调用的诊断信息，只在失败时返回
type Attempt struct {
	RawText       string `json:"rawText"`
	ExtractedJSON string `json:"extractedJson"`
	Stage         Stage  `json:"stage"`
	ParseError    string `json:"parseError,omitempty"`
}

// AttemptError 携带 Attempt 的错误，位于 RECOVERY_PARSE 错误的 Cause 链上
type AttemptError struct {
	Attempt Attempt
}

func (e *AttemptError) Error() string {
	if e.Attempt.ParseError == "" {
		return fmt.Sprintf("recovery failed at stage %s", e.Attempt.Stage)
	}
	return fmt.Sprintf("recovery failed at stage %s: %s", e.Attempt.Stage, e.Attempt.ParseError)
}
