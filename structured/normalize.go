package structured

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultEmoji 要点缺省 emoji
const DefaultEmoji = "🔹"

// normalizeCards 将数组元素归一化为卡片，返回合成 imagePrompt 的数量
func normalizeCards(items []json.RawMessage) ([]CardRecord, int) {
	cards := make([]CardRecord, 0, len(items))
	for _, item := range items {
		card, ok := normalizeCard(item)
		if !ok {
			continue
		}
		cards = append(cards, card)
	}

	assignPageNumbers(cards)

	autoGenerated := 0
	for i := range cards {
		if strings.TrimSpace(cards[i].ImagePrompt) != "" {
			continue
		}
		cards[i].ImagePrompt = SynthesizeImagePrompt(cards[i])
		cards[i].ImagePromptAutoGenerated = true
		autoGenerated++
	}
	return cards, autoGenerated
}

// normalizeCard 对象逐字段读取；纯字符串元素视为仅有标题的卡片
func normalizeCard(raw json.RawMessage) (CardRecord, bool) {
	if s, ok := asString(raw); ok {
		return CardRecord{Title: s, Points: []Point{}}, true
	}
	var obj map[string]json.RawMessage
	if firstByte(raw) != '{' || json.Unmarshal(raw, &obj) != nil {
		return CardRecord{}, false
	}

	return CardRecord{
		PageNumber:         asPageNumber(obj["pageNumber"]),
		PageType:           scalarString(obj["pageType"]),
		Title:              scalarString(obj["title"]),
		Subtitle:           scalarString(obj["subtitle"]),
		Content:            contentString(obj["content"]),
		Points:             normalizePoints(obj["points"]),
		ImagePrompt:        scalarString(obj["imagePrompt"]),
		ImagePromptExplain: scalarString(obj["imagePromptExplain"]),
	}, true
}

// assignPageNumbers 缺失的页码取位置；出现非正数或重复时整体按位置重排
func assignPageNumbers(cards []CardRecord) {
	seen := make(map[int]bool, len(cards))
	renumber := false
	for i := range cards {
		if cards[i].PageNumber == 0 {
			cards[i].PageNumber = i + 1
		}
		n := cards[i].PageNumber
		if n < 0 || seen[n] {
			renumber = true
		}
		seen[n] = true
	}
	if !renumber {
		return
	}
	for i := range cards {
		cards[i].PageNumber = i + 1
	}
}

func normalizePoints(raw json.RawMessage) []Point {
	items, ok := asArray(raw)
	if !ok {
		return []Point{}
	}
	points := make([]Point, 0, len(items))
	for _, item := range items {
		if s, ok := asString(item); ok {
			points = append(points, Point{Emoji: DefaultEmoji, Label: s})
			continue
		}
		var obj map[string]json.RawMessage
		if json.Unmarshal(item, &obj) != nil || obj == nil {
			continue
		}
		p := Point{
			Emoji:  firstField(obj, "emoji", "icon"),
			Label:  firstField(obj, "label", "title", "text", "name"),
			Detail: firstField(obj, "detail", "description", "desc"),
		}
		if p.Emoji == "" {
			p.Emoji = DefaultEmoji
		}
		points = append(points, p)
	}
	return points
}

func firstField(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func asString(raw json.RawMessage) (string, bool) {
	if firstByte(raw) != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// scalarString 字符串原样返回，数字与布尔取其文本
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if s, ok := asString(raw); ok {
		return s
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// contentString content 可能是字符串数组，按行拼接
func contentString(raw json.RawMessage) string {
	items, ok := asArray(raw)
	if !ok {
		return scalarString(raw)
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if s := scalarString(item); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

// asPageNumber 接受整数或数字字符串；缺失或无法解析时为 0，非法值为 -1
func asPageNumber(raw json.RawMessage) int {
	s := strings.TrimSpace(scalarString(raw))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0
	}
	if f <= 0 || f > math.MaxInt32 {
		// 显式的非正数或越界同样触发重排
		return -1
	}
	return int(f)
}
