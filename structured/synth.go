package structured

import (
	"fmt"
	"strings"
)

// 页面类型
const (
	PageCover      = "cover"
	PageProcess    = "process"
	PageComparison = "comparison"
	PageConcept    = "concept"
	PageChecklist  = "checklist"
	PageTimeline   = "timeline"
	PageSummary    = "summary"
)

// 合成提示词的固定后缀
const (
	typographySuffix = "clean modern sans-serif typography, space reserved for text"
	colorSuffix      = "harmonious soft pastel color palette"
	qualitySuffix    = "high quality, 4k, highly detailed, no watermark"
)

var pageTemplates = map[string]string{
	PageCover:      "Eye-catching cover poster for a knowledge card series titled '%s', bold central visual with generous whitespace",
	PageProcess:    "Step-by-step process flow infographic about '%s', numbered stages connected by arrows",
	PageComparison: "Side-by-side comparison infographic about '%s', two contrasting columns with clear visual separation",
	PageConcept:    "Concept illustration explaining '%s', one central metaphor surrounded by supporting icons",
	PageChecklist:  "Tidy checklist layout for '%s', rows of items with check-mark icons",
	PageTimeline:   "Timeline infographic of '%s', chronological milestones along a horizontal line",
	PageSummary:    "Summary recap card for '%s', key takeaways arranged in a clean grid",
}

// pageTypeAliases 模型常用的同义 pageType
var pageTypeAliases = map[string]string{
	"intro":      PageCover,
	"title":      PageCover,
	"steps":      PageProcess,
	"step":       PageProcess,
	"flow":       PageProcess,
	"howto":      PageProcess,
	"compare":    PageComparison,
	"vs":         PageComparison,
	"content":    PageConcept,
	"definition": PageConcept,
	"list":       PageChecklist,
	"tips":       PageChecklist,
	"history":    PageTimeline,
	"conclusion": PageSummary,
	"ending":     PageSummary,
	"recap":      PageSummary,
}

// CanonicalPageType 归一化 pageType，未知类型归为 concept
func CanonicalPageType(pageType string) string {
	t := strings.ToLower(strings.TrimSpace(pageType))
	if _, ok := pageTemplates[t]; ok {
		return t
	}
	if alias, ok := pageTypeAliases[t]; ok {
		return alias
	}
	return PageConcept
}

// SynthesizeImagePrompt builds a deterministic image prompt from the card's
// page type, title, subtitle and point labels.
func SynthesizeImagePrompt(card CardRecord) string {
	title := strings.TrimSpace(card.Title)
	if title == "" {
		title = "knowledge card"
	}

	parts := []string{fmt.Sprintf(pageTemplates[CanonicalPageType(card.PageType)], title)}
	if sub := strings.TrimSpace(card.Subtitle); sub != "" {
		parts = append(parts, fmt.Sprintf("subtitle '%s'", sub))
	}

	labels := make([]string, 0, len(card.Points))
	for _, p := range card.Points {
		if l := strings.TrimSpace(p.Label); l != "" {
			labels = append(labels, l)
		}
	}
	if len(labels) > 0 {
		parts = append(parts, "featuring: "+strings.Join(labels, ", "))
	}

	parts = append(parts, typographySuffix, colorSuffix, qualitySuffix)
	return strings.Join(parts, ", ")
}
