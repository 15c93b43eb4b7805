package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/structured"
)

// 系统提示词模板键，可在配置存储中覆盖
const (
	KeyOutlineSystem     = "outline_system"
	KeyCardPromptSystem  = "card_prompt_system"
	KeyQuickPromptSystem = "quick_prompt_system"
	KeyTranslateSystem   = "translate_system"
)

const defaultOutlineSystem = `你是一名知识卡片策划。根据用户提供的资料，输出一组知识卡片的大纲。
只输出一个 JSON 数组，不要输出任何解释。数组中每个元素为一张卡片：
{
  "pageNumber": 1,
  "pageType": "cover | concept | process | comparison | checklist | timeline | summary",
  "title": "卡片标题",
  "subtitle": "副标题，可为空",
  "content": "正文，简洁",
  "points": [{"emoji": "🔹", "label": "要点", "detail": "说明"}],
  "imagePrompt": "英文配图提示词",
  "imagePromptExplain": "一句话说明配图思路"
}
第一张为 cover，最后一张为 summary。字符串中的换行请写成 \n。`

const defaultCardPromptSystem = `你是一名插画提示词工程师。根据一张知识卡片的内容，写一条英文的文生图提示词。
只输出 JSON 对象：{"imagePrompt": "...", "explain": "一句话说明"}。
提示词描述画面、构图与风格，不要要求在画面中生成文字。`

const defaultQuickPromptSystem = `你是一名插画提示词工程师。围绕用户给出的主题，写若干条互不重复的英文文生图提示词。
只输出 JSON：{"prompts": [{"prompt": "...", "explain": "一句话说明"}]}。`

const defaultTranslateSystem = `你是一名专业译者。把用户给出的文本翻译为目标语言，只输出译文，保留原有的换行与格式。`

var defaultSystemPrompts = map[string]string{
	KeyOutlineSystem:     defaultOutlineSystem,
	KeyCardPromptSystem:  defaultCardPromptSystem,
	KeyQuickPromptSystem: defaultQuickPromptSystem,
	KeyTranslateSystem:   defaultTranslateSystem,
}

// fallbackImagePhrase 逐卡生成失败时的兜底描述
const fallbackImagePhrase = "minimalist background illustration for a knowledge card about %s, clean layout, soft colors, no text"

// systemPrompt 优先使用存储中的模板，查询失败时退回内置模板
func (s *Service) systemPrompt(ctx context.Context, key string) string {
	if s.prompts != nil {
		content, ok, err := s.prompts.PromptTemplate(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("读取提示词模板失败，使用内置模板", zap.String("key", key), zap.Error(err))
		case ok && strings.TrimSpace(content) != "":
			return content
		}
	}
	return defaultSystemPrompts[key]
}

// styleSnippets 查询风格片段；失败不影响主流程
func (s *Service) styleSnippets(ctx context.Context, styles []string) []string {
	if s.prompts == nil || len(styles) == 0 {
		return nil
	}
	snippets, err := s.prompts.StyleSnippets(ctx, styles)
	if err != nil {
		s.logger.Warn("读取风格片段失败", zap.Strings("styles", styles), zap.Error(err))
		return nil
	}
	return snippets
}

func outlineUserPrompt(req OutlineRequest, source string, pageCount int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "请生成 %d 张知识卡片。\n", pageCount)
	if req.Title != "" {
		fmt.Fprintf(&sb, "主题：%s\n", req.Title)
	}
	if req.Style != "" {
		fmt.Fprintf(&sb, "风格：%s\n", req.Style)
	}
	if req.Language != "" {
		fmt.Fprintf(&sb, "输出语言：%s\n", req.Language)
	}
	if source != "" {
		sb.WriteString("资料：\n")
		sb.WriteString(source)
	}
	return sb.String()
}

func cardUserPrompt(card structured.CardRecord, snippets []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "页面类型：%s\n标题：%s\n", card.PageType, card.Title)
	if card.Subtitle != "" {
		fmt.Fprintf(&sb, "副标题：%s\n", card.Subtitle)
	}
	if card.Content != "" {
		fmt.Fprintf(&sb, "正文：%s\n", card.Content)
	}
	for _, p := range card.Points {
		fmt.Fprintf(&sb, "- %s %s：%s\n", p.Emoji, p.Label, p.Detail)
	}
	if len(snippets) > 0 {
		fmt.Fprintf(&sb, "风格要求：%s\n", strings.Join(snippets, ", "))
	}
	return sb.String()
}

func quickUserPrompt(topic string, count int, snippets []string) string {
	prompt := fmt.Sprintf("主题：%s\n数量：%d", topic, count)
	if len(snippets) > 0 {
		prompt += "\n风格要求：" + strings.Join(snippets, ", ")
	}
	return prompt
}

// fallbackPrompt 风格片段 + 通用描述，输入相同则输出相同
func fallbackPrompt(card structured.CardRecord, snippets []string) string {
	title := strings.TrimSpace(card.Title)
	if title == "" {
		title = "a general topic"
	}
	parts := append(append([]string(nil), snippets...), fmt.Sprintf(fallbackImagePhrase, title))
	return strings.Join(parts, ", ")
}

// truncateRunes 按字符数截断
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
