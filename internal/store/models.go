package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/cardflow/types"
)

// Profile 后端配置记录（配置存储的持久化形态）
type Profile struct {
	ID         uint                 `gorm:"primaryKey" json:"id" yaml:"-"`
	Name       string               `gorm:"size:100;not null" json:"name" yaml:"name"`
	Family     types.ProviderFamily `gorm:"size:32;not null" json:"family" yaml:"family"`             // openai-compatible / dashscope / modelscope
	Variant    string               `gorm:"size:32" json:"variant,omitempty" yaml:"variant"`          // OpenAI 兼容子方言：openai / siliconflow
	Capability types.Capability     `gorm:"size:16;not null;index:idx_profile_capability" json:"capability" yaml:"capability"` // text / image / universal
	BaseURL    string               `gorm:"size:500;not null" json:"baseUrl" yaml:"base_url"`
	APIKey     string               `gorm:"size:500" json:"apiKey,omitempty" yaml:"api_key"`
	Model      string               `gorm:"size:200;not null" json:"model" yaml:"model"`
	Enabled    bool                 `gorm:"not null;index:idx_profile_capability" json:"enabled" yaml:"enabled"`
	IsDefault  bool                 `gorm:"not null" json:"isDefault" yaml:"is_default"`
	CreatedAt  time.Time            `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time            `json:"updatedAt" yaml:"-"`
}

// TableName 指定表名
func (Profile) TableName() string {
	return "backend_profiles"
}

// Validate 校验并规范化枚举字段
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("base url is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("model is required")
	}
	family, err := types.ParseProviderFamily(string(p.Family))
	if err != nil {
		return err
	}
	capability, err := types.ParseCapability(string(p.Capability))
	if err != nil {
		return err
	}
	p.Family = family
	p.Capability = capability
	p.Variant = strings.ToLower(strings.TrimSpace(p.Variant))
	return nil
}

// MaskedAPIKey 返回脱敏后的 API Key
func (p *Profile) MaskedAPIKey() string {
	k := p.APIKey
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + strings.Repeat("*", len(k)-8) + k[len(k)-4:]
}

// PromptTemplate 系统提示词覆盖，按 Key 查找
type PromptTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id" yaml:"-"`
	Key       string    `gorm:"column:tpl_key;size:64;not null;uniqueIndex" json:"key" yaml:"key"`
	Content   string    `gorm:"type:text;not null" json:"content" yaml:"content"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// TableName 指定表名
func (PromptTemplate) TableName() string {
	return "prompt_templates"
}

// StyleTag 风格标签，名称映射到出图提示词片段
type StyleTag struct {
	ID        uint   `gorm:"primaryKey" json:"id" yaml:"-"`
	Name      string `gorm:"size:64;not null;uniqueIndex" json:"name" yaml:"name"`
	Snippet   string `gorm:"type:text;not null" json:"snippet" yaml:"snippet"`
	SortOrder int    `gorm:"not null" json:"sortOrder" yaml:"sort_order"`
}

// TableName 指定表名
func (StyleTag) TableName() string {
	return "style_tags"
}
