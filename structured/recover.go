package structured

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/BaSui01/cardflow/types"
)

// Recover extracts the card array from raw model text and normalizes every
// card. Each extraction candidate runs through the repair stages until one
// yields cards. Failures are RECOVERY_PARSE errors carrying an *AttemptError.
func Recover(raw string) (*CardResult, error) {
	return recoverWith(raw, func(doc json.RawMessage, att Attempt) (*CardResult, error) {
		shape := MatchShape(doc, CardMatchers())
		if !shape.Found {
			return nil, recoveryError(att, "no card array found in model output")
		}
		cards, auto := normalizeCards(shape.Items)
		if len(cards) == 0 {
			return nil, recoveryError(att, "model output contains no cards")
		}
		return &CardResult{
			Cards:         cards,
			AutoGenerated: auto,
			Stage:         att.Stage,
			Matcher:       shape.Matcher,
		}, nil
	})
}

// RecoverPrompts extracts up to n image prompts (n <= 0 keeps all).
// Elements may be strings or objects with prompt, imagePrompt or text.
func RecoverPrompts(raw string, n int) (*PromptResult, error) {
	return recoverWith(raw, func(doc json.RawMessage, att Attempt) (*PromptResult, error) {
		shape := MatchShape(doc, PromptMatchers())
		if !shape.Found {
			return nil, recoveryError(att, "no prompt array found in model output")
		}
		prompts := make([]PromptItem, 0, len(shape.Items))
		for _, item := range shape.Items {
			if p, ok := normalizePrompt(item); ok {
				prompts = append(prompts, p)
			}
		}
		if len(prompts) == 0 {
			return nil, recoveryError(att, "model output contains no prompts")
		}
		if n > 0 && len(prompts) > n {
			prompts = prompts[:n]
		}
		return &PromptResult{Prompts: prompts, Requested: n, Stage: att.Stage, Matcher: shape.Matcher}, nil
	})
}

// ParseSinglePrompt reads one image prompt from either a JSON object
// (imagePrompt/prompt plus explain/imagePromptExplain) or plain text.
func ParseSinglePrompt(raw string) (PromptItem, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PromptItem{}, recoveryError(Attempt{RawText: raw, Stage: StageExtract}, "model returned an empty prompt")
	}

	if _, ok := Candidates(trimmed); ok {
		p, err := recoverWith(trimmed, func(doc json.RawMessage, att Attempt) (PromptItem, error) {
			if p, ok := normalizePrompt(doc); ok {
				return p, nil
			}
			if items, ok := asArray(doc); ok && len(items) > 0 {
				if p, ok := normalizePrompt(items[0]); ok {
					return p, nil
				}
			}
			return PromptItem{}, recoveryError(att, "no prompt found in model output")
		})
		if err == nil {
			return p, nil
		}
	}

	text := trimmed
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	text = strings.TrimSpace(strings.Trim(text, "\"'`"))
	if text == "" {
		return PromptItem{}, recoveryError(Attempt{RawText: raw, Stage: StageExtract}, "model returned an empty prompt")
	}
	return PromptItem{Prompt: text}, nil
}

// Diagnostics 从错误链中取出恢复诊断
func Diagnostics(err error) (Attempt, bool) {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Attempt, true
	}
	return Attempt{}, false
}

// recoverWith 按顺序尝试每个候选：候选解析成功后交给 build，build 拒绝则换下一个候选。
// 全部失败时返回最长候选的错误。
func recoverWith[T any](raw string, build func(doc json.RawMessage, att Attempt) (T, error)) (T, error) {
	var (
		zero    T
		failure error
		longest = -1
	)
	cands, _ := Candidates(raw)
	for _, cand := range cands {
		doc, att, err := parse(raw, cand)
		if err == nil {
			var res T
			if res, err = build(doc, att); err == nil {
				return res, nil
			}
		}
		if len(cand) > longest {
			failure, longest = err, len(cand)
		}
	}
	return zero, failure
}

// parse 对单个候选依次执行各修复阶段，返回首个可解析的 JSON 文档
func parse(raw, candidate string) (json.RawMessage, Attempt, error) {
	att := Attempt{RawText: raw, ExtractedJSON: candidate}

	try := func(stage Stage, text string) (json.RawMessage, bool) {
		att.Stage = stage
		var doc json.RawMessage
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			att.ParseError = err.Error()
			return nil, false
		}
		att.ParseError = ""
		return doc, true
	}

	if doc, ok := try(StageExtract, candidate); ok {
		return doc, att, nil
	}
	stripped := stripControl(candidate)
	if doc, ok := try(StageStripControl, stripped); ok {
		return doc, att, nil
	}
	if doc, ok := try(StageEscapeStrings, escapeStringWhitespace(stripped)); ok {
		return doc, att, nil
	}
	// 引号修复在转义之前，否则奇数个内嵌引号会让转义扫描错位
	if doc, ok := try(StageRepairImagePrompt, escapeStringWhitespace(repairImagePrompt(stripped))); ok {
		return doc, att, nil
	}
	return nil, att, recoveryError(att, "model output is not valid JSON")
}

func normalizePrompt(raw json.RawMessage) (PromptItem, bool) {
	if s, ok := asString(raw); ok {
		s = strings.TrimSpace(s)
		return PromptItem{Prompt: s}, s != ""
	}
	var obj map[string]json.RawMessage
	if firstByte(raw) != '{' || json.Unmarshal(raw, &obj) != nil {
		return PromptItem{}, false
	}
	p := PromptItem{
		Prompt:  strings.TrimSpace(firstField(obj, "prompt", "imagePrompt", "text")),
		Explain: strings.TrimSpace(firstField(obj, "explain", "imagePromptExplain", "description")),
	}
	return p, p.Prompt != ""
}

func recoveryError(att Attempt, msg string) *types.Error {
	detail := att.ParseError
	if detail == "" {
		detail = msg
	}
	return types.NewError(types.ErrRecoveryParse, msg).
		WithDetail(detail).
		WithCause(&AttemptError{Attempt: att})
}
