package types

import (
	"fmt"
	"strings"
)

// Capability 后端能力
type Capability string

const (
	CapabilityText      Capability = "text"
	CapabilityImage     Capability = "image"
	CapabilityUniversal Capability = "universal"
)

// ParseCapability 解析能力字符串，大小写不敏感
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(strings.TrimSpace(s))); c {
	case CapabilityText, CapabilityImage, CapabilityUniversal:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capability %q", s)
	}
}

// Serves 判断记录能力是否可服务于请求能力。universal 记录可服务任意请求。
func (c Capability) Serves(requested Capability) bool {
	return c == requested || c == CapabilityUniversal
}

// ProviderFamily 供应商家族，决定请求格式与是否走异步任务
type ProviderFamily string

const (
	FamilyOpenAICompatible ProviderFamily = "openai-compatible"
	FamilyDashScope        ProviderFamily = "dashscope"
	FamilyModelScope       ProviderFamily = "modelscope"
)

// ParseProviderFamily 解析供应商家族字符串
func ParseProviderFamily(s string) (ProviderFamily, error) {
	switch f := ProviderFamily(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilyOpenAICompatible, FamilyDashScope, FamilyModelScope:
		return f, nil
	case "openai", "":
		return FamilyOpenAICompatible, nil
	default:
		return "", fmt.Errorf("unknown provider family %q", s)
	}
}

// BackendConfig 单次逻辑操作使用的后端配置快照。
// 由 resolver 按请求构建，操作期间只读。
type BackendConfig struct {
	ProfileID  uint           `json:"profileId"`
	Name       string         `json:"name"`
	BaseURL    string         `json:"baseUrl"`
	APIKey     string         `json:"-"`
	Model      string         `json:"model"`
	Family     ProviderFamily `json:"family"`
	Variant    string         `json:"variant,omitempty"`
	Capability Capability     `json:"capability"`
}

// Endpoint 拼接 BaseURL 与路径
func (c *BackendConfig) Endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
