package store

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Seed 初始化数据文件结构
//
//	profiles:
//	  - name: siliconflow
//	    family: openai-compatible
//	    variant: siliconflow
//	    capability: image
//	    base_url: https://api.siliconflow.cn/v1
//	    model: black-forest-labs/FLUX.1-schnell
//	    enabled: true
//	templates:
//	  - key: outline_system
//	    content: ...
//	styles:
//	  - name: 手绘
//	    snippet: hand-drawn sketch style
type Seed struct {
	Profiles  []Profile        `yaml:"profiles"`
	Templates []PromptTemplate `yaml:"templates"`
	Styles    []StyleTag       `yaml:"styles"`
}

// LoadSeed 读取 YAML 初始化文件
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// Import 导入初始化数据。配置按名称去重，已存在的同名配置跳过；模板与风格覆盖写入。
func (s *Store) Import(ctx context.Context, seed *Seed) (int, error) {
	imported := 0
	for i := range seed.Profiles {
		p := seed.Profiles[i]
		var count int64
		if err := s.db.WithContext(ctx).Model(&Profile{}).Where("name = ?", p.Name).Count(&count).Error; err != nil {
			return imported, fmt.Errorf("check profile %q: %w", p.Name, err)
		}
		if count > 0 {
			s.logger.Debug("同名配置已存在，跳过", zap.String("name", p.Name))
			continue
		}
		if err := s.CreateProfile(ctx, &p); err != nil {
			return imported, fmt.Errorf("import profile %q: %w", p.Name, err)
		}
		imported++
	}
	for _, t := range seed.Templates {
		if err := s.SetPromptTemplate(ctx, t.Key, t.Content); err != nil {
			return imported, err
		}
	}
	for i := range seed.Styles {
		tag := seed.Styles[i]
		if err := s.UpsertStyleTag(ctx, &tag); err != nil {
			return imported, err
		}
	}
	s.logger.Info("初始化数据导入完成",
		zap.Int("profiles", imported),
		zap.Int("templates", len(seed.Templates)),
		zap.Int("styles", len(seed.Styles)))
	return imported, nil
}
