package structured

import (
	"bytes"
	"encoding/json"
)

// 匹配器名称
const (
	MatchTopLevelArray      = "top_level_array"
	MatchFirstArrayProperty = "first_array_property"
)

// ShapeMatch 形状匹配结果
type ShapeMatch struct {
	Found   bool
	Matcher string
	// Path 数组所在的顶层键，top_level_array 时为空
	Path  string
	Items []json.RawMessage
}

// Matcher 从已解析的文档中定位数组
type Matcher struct {
	Name  string
	Match func(doc json.RawMessage) (path string, items []json.RawMessage, ok bool)
}

// TopLevelArray 匹配顶层数组
func TopLevelArray() Matcher {
	return Matcher{Name: MatchTopLevelArray, Match: func(doc json.RawMessage) (string, []json.RawMessage, bool) {
		items, ok := asArray(doc)
		return "", items, ok
	}}
}

// Key 匹配顶层对象中指定键的数组值
func Key(key string) Matcher {
	return Matcher{Name: "key:" + key, Match: func(doc json.RawMessage) (string, []json.RawMessage, bool) {
		var obj map[string]json.RawMessage
		if firstByte(doc) != '{' || json.Unmarshal(doc, &obj) != nil {
			return "", nil, false
		}
		items, ok := asArray(obj[key])
		return key, items, ok
	}}
}

// FirstArrayProperty 按文档键顺序匹配首个数组值属性
func FirstArrayProperty() Matcher {
	return Matcher{Name: MatchFirstArrayProperty, Match: func(doc json.RawMessage) (string, []json.RawMessage, bool) {
		if firstByte(doc) != '{' {
			return "", nil, false
		}
		dec := json.NewDecoder(bytes.NewReader(doc))
		if _, err := dec.Token(); err != nil {
			return "", nil, false
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return "", nil, false
			}
			key, _ := tok.(string)
			var value json.RawMessage
			if err := dec.Decode(&value); err != nil {
				return "", nil, false
			}
			if items, ok := asArray(value); ok {
				return key, items, true
			}
		}
		return "", nil, false
	}}
}

// CardMatchers 卡片数组的匹配顺序
func CardMatchers() []Matcher {
	return []Matcher{TopLevelArray(), Key("cards"), Key("outline"), Key("pages"), FirstArrayProperty()}
}

// PromptMatchers 快速模式提示词数组的匹配顺序
func PromptMatchers() []Matcher {
	return []Matcher{TopLevelArray(), Key("prompts"), Key("data"), Key("items"), Key("images"), FirstArrayProperty()}
}

// MatchShape 依次尝试 matchers，返回首个命中
func MatchShape(doc json.RawMessage, matchers []Matcher) ShapeMatch {
	for _, m := range matchers {
		if path, items, ok := m.Match(doc); ok {
			return ShapeMatch{Found: true, Matcher: m.Name, Path: path, Items: items}
		}
	}
	return ShapeMatch{}
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if firstByte(raw) != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, true
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
