package structured

import (
	"regexp"
	"strings"
)

// stripControl 剔除 \n \r \t 以外的控制字符
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		default:
			return r
		}
	}, s)
}

// escapeStringWhitespace 将字符串值内的字面换行、回车、制表转义，字符串外的空白不变
func escapeStringWhitespace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 16)

	inString, escaped := false, false
	for _, r := range s {
		if !inString {
			if r == '"' {
				inString = true
			}
			sb.WriteRune(r)
			continue
		}
		switch {
		case escaped:
			escaped = false
			sb.WriteRune(r)
		case r == '\\':
			escaped = true
			sb.WriteRune(r)
		case r == '"':
			inString = false
			sb.WriteRune(r)
		default:
			writeEscapedWhitespace(&sb, r)
		}
	}
	return sb.String()
}

func writeEscapedWhitespace(sb *strings.Builder, r rune) {
	switch r {
	case '\n':
		sb.WriteString(`\n`)
	case '\r':
		sb.WriteString(`\r`)
	case '\t':
		sb.WriteString(`\t`)
	default:
		sb.WriteRune(r)
	}
}

// imagePromptField 从 "imagePrompt" 的值起始，惰性匹配到下一个已知字段或右花括号
var imagePromptField = regexp.MustCompile(`(?s)("imagePrompt"\s*:\s*")(.*?)("\s*(?:,\s*"(?:pageNumber|pageType|title|subtitle|content|points|imagePromptExplain|imagePromptAutoGenerated|explain|prompt)"|\}))`)

// repairImagePrompt 将 imagePrompt 值中未转义的双引号替换为单引号，并转义空白
func repairImagePrompt(s string) string {
	return imagePromptField.ReplaceAllStringFunc(s, func(m string) string {
		sub := imagePromptField.FindStringSubmatch(m)
		return sub[1] + repairValue(sub[2]) + sub[3]
	})
}

func repairValue(v string) string {
	var sb strings.Builder
	sb.Grow(len(v))

	escaped := false
	for _, r := range v {
		switch {
		case escaped:
			escaped = false
			sb.WriteRune(r)
		case r == '\\':
			escaped = true
			sb.WriteRune(r)
		case r == '"':
			sb.WriteRune('\'')
		default:
			writeEscapedWhitespace(&sb, r)
		}
	}
	return sb.String()
}
