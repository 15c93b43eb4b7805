package structured

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	propertyWords = []string{"alpha", "知识", "卡片", "测试", "line", "emoji🙂", "quote's", "<tag>", "a&b", "100%", "{brace}", "[x]"}
	propertyTypes = []string{PageCover, PageProcess, PageComparison, PageConcept, PageChecklist, PageTimeline, PageSummary}
	propertyEmoji = []string{"🔹", "🚀", "✅"}
)

// genText 由词表拼接，withNewlines 为真时可能以换行分隔
func genText(rt *rapid.T, label string, withNewlines bool) string {
	n := rapid.IntRange(1, 4).Draw(rt, label+"_n")
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sep := " "
			if withNewlines && rapid.Bool().Draw(rt, fmt.Sprintf("%s_nl_%d", label, i)) {
				sep = "\n"
			}
			sb.WriteString(sep)
		}
		sb.WriteString(rapid.SampledFrom(propertyWords).Draw(rt, fmt.Sprintf("%s_w_%d", label, i)))
	}
	return sb.String()
}

func genCards(rt *rapid.T, withNewlines bool) []CardRecord {
	n := rapid.IntRange(1, 6).Draw(rt, "cards")
	cards := make([]CardRecord, n)
	for i := range cards {
		np := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("points_%d", i))
		points := make([]Point, np)
		for j := range points {
			points[j] = Point{
				Emoji:  rapid.SampledFrom(propertyEmoji).Draw(rt, fmt.Sprintf("emoji_%d_%d", i, j)),
				Label:  genText(rt, fmt.Sprintf("label_%d_%d", i, j), false),
				Detail: genText(rt, fmt.Sprintf("detail_%d_%d", i, j), withNewlines),
			}
		}
		cards[i] = CardRecord{
			PageNumber:         i + 1,
			PageType:           rapid.SampledFrom(propertyTypes).Draw(rt, fmt.Sprintf("type_%d", i)),
			Title:              genText(rt, fmt.Sprintf("title_%d", i), false),
			Subtitle:           genText(rt, fmt.Sprintf("subtitle_%d", i), false),
			Content:            genText(rt, fmt.Sprintf("content_%d", i), withNewlines),
			Points:             points,
			ImagePrompt:        "prompt " + genText(rt, fmt.Sprintf("prompt_%d", i), withNewlines),
			ImagePromptExplain: genText(rt, fmt.Sprintf("explain_%d", i), withNewlines),
		}
	}
	return cards
}

func marshalCards(rt *rapid.T, cards []CardRecord) string {
	var v any = cards
	if rapid.Bool().Draw(rt, "wrapped") {
		v = map[string]any{"cards": cards}
	}
	data, err := json.Marshal(v)
	require.NoError(rt, err)
	return string(data)
}

// TestProperty_RecoverRoundTrip 序列化后的卡片经包装或字面换行破坏后仍能完整恢复
func TestProperty_RecoverRoundTrip(t *testing.T) {
	wrappers := map[string]func(doc string) string{
		"fenced": func(doc string) string {
			return "Sure! Here is your outline:\n```json\n" + doc + "\n```\nLet me know {if} you need changes."
		},
		"prose": func(doc string) string {
			return "Result: " + doc + " (end)"
		},
		"bare": func(doc string) string { return doc },
		"bracketed prose": func(doc string) string {
			return "以下是关于{主题}的大纲，参考 [1]：\n" + doc
		},
	}

	for name, wrap := range wrappers {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				cards := genCards(rt, false)

				res, err := Recover(wrap(marshalCards(rt, cards)))

				require.NoError(rt, err)
				assert.Equal(rt, cards, res.Cards)
				assert.Zero(rt, res.AutoGenerated)
				assert.Equal(rt, StageExtract, res.Stage)
			})
		})
	}

	t.Run("literal newlines", func(t *testing.T) {
		rapid.Check(t, func(rt *rapid.T) {
			cards := genCards(rt, true)
			doc := strings.ReplaceAll(marshalCards(rt, cards), `\n`, "\n")

			res, err := Recover("```json\n" + doc + "\n```")

			require.NoError(rt, err)
			assert.Equal(rt, cards, res.Cards)
			if strings.Contains(doc, "\n") {
				assert.Equal(rt, StageEscapeStrings, res.Stage)
			}
		})
	})
}

// TestProperty_PageNumbersUniquePositive 任意页码输入下结果页码均为正且唯一
func TestProperty_PageNumbersUniquePositive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(rt, "n")
		items := make([]map[string]any, n)
		for i := range items {
			item := map[string]any{"title": "t", "imagePrompt": "p"}
			switch rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("kind_%d", i)) {
			case 0:
				item["pageNumber"] = rapid.IntRange(-3, 6).Draw(rt, fmt.Sprintf("num_%d", i))
			case 1:
				item["pageNumber"] = fmt.Sprint(rapid.IntRange(-3, 6).Draw(rt, fmt.Sprintf("str_%d", i)))
			case 2:
				item["pageNumber"] = "n/a"
			}
			items[i] = item
		}
		data, err := json.Marshal(items)
		require.NoError(rt, err)

		res, err := Recover(string(data))
		require.NoError(rt, err)

		seen := map[int]bool{}
		for _, c := range res.Cards {
			assert.Positive(rt, c.PageNumber)
			assert.False(rt, seen[c.PageNumber], "duplicate page number %d", c.PageNumber)
			seen[c.PageNumber] = true
		}
	})
}
