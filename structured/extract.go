package structured

import (
	"regexp"
	"strings"
)

var (
	fencedBlock  = regexp.MustCompile("(?s)```[A-Za-z]*[ \\t]*\\r?\\n?(.*?)```")
	greedyRegion = regexp.MustCompile(`(?s)[\[{].*[\]}]`)
)

// maxCandidates 单次恢复最多尝试的候选数
const maxCandidates = 8

// Extract returns the first JSON candidate in raw model text. See Candidates.
func Extract(raw string) (string, bool) {
	cands, ok := Candidates(raw)
	return cands[0], ok
}

// Candidates returns the JSON candidates in raw model text, in the order
// recovery tries them: fenced code blocks that contain a bracket, then each
// balanced top-level object or array from left to right, then the widest
// bracketed region. Without any bracket the trimmed text is the only
// candidate and ok is false.
func Candidates(raw string) ([]string, bool) {
	var out []string
	seen := make(map[string]bool)
	add := func(c string) {
		if c == "" || seen[c] || len(out) >= maxCandidates {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		if inner := strings.TrimSpace(m[1]); strings.ContainsAny(inner, "{[") {
			add(inner)
		}
	}
	for _, region := range balancedRegions(raw) {
		add(region)
	}
	add(greedyRegion.FindString(raw))

	if len(out) == 0 {
		return []string{strings.TrimSpace(raw)}, false
	}
	return out, true
}

// balancedRegions 从左到右收集顶层平衡的 {…} / […]。
// 某个起点无法配对时，取该起点到最后一个闭括号的区域并停止扫描。
func balancedRegions(s string) []string {
	var regions []string
	for pos := 0; pos < len(s) && len(regions) < maxCandidates; {
		off := strings.IndexAny(s[pos:], "{[")
		if off < 0 {
			break
		}
		start := pos + off
		end, ok := balancedEnd(s, start)
		if !ok {
			if last := strings.LastIndexAny(s, "}]"); last > start {
				regions = append(regions, s[start:last+1])
			}
			break
		}
		regions = append(regions, s[start:end])
		pos = end
	}
	return regions
}

// balancedEnd 从 start 处的括号扫描到与之配对的位置之后，跳过字符串内的括号
func balancedEnd(s string, start int) (int, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
