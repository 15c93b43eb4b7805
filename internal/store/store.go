// Package store 是后端配置、提示词模板与风格标签的 gorm 持久化实现。
//
// 核心编排只依赖其中三个查询：按 ID 获取、按能力获取默认记录、按能力列出启用记录；
// 其余增删改方法服务于管理端。
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/cardflow/types"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// newestFirst 最近创建优先，ID 降序打破平局
const newestFirst = "created_at DESC, id DESC"

// Store 配置存储
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New 创建配置存储
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "store"))}
}

// Migrate 自动迁移全部表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Profile{}, &PromptTemplate{}, &StyleTag{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// DB 返回底层连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

// =============================================================================
// 解析器查询
// =============================================================================

// GetProfile 按 ID 获取配置
func (s *Store) GetProfile(ctx context.Context, id uint) (*Profile, error) {
	var p Profile
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %d: %w", id, err)
	}
	return &p, nil
}

// DefaultProfile 获取能力匹配（含 universal）的启用默认配置
func (s *Store) DefaultProfile(ctx context.Context, capability types.Capability) (*Profile, error) {
	var p Profile
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND is_default = ? AND capability IN ?", true, true, capabilitySet(capability)).
		Order(newestFirst).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default profile for %s: %w", capability, err)
	}
	return &p, nil
}

// ListEnabled 列出能力匹配的启用配置，最近创建优先
func (s *Store) ListEnabled(ctx context.Context, capability types.Capability) ([]Profile, error) {
	var profiles []Profile
	err := s.db.WithContext(ctx).
		Where("enabled = ? AND capability IN ?", true, capabilitySet(capability)).
		Order(newestFirst).
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("list enabled profiles for %s: %w", capability, err)
	}
	return profiles, nil
}

func capabilitySet(c types.Capability) []string {
	if c == types.CapabilityUniversal {
		return []string{string(c)}
	}
	return []string{string(c), string(types.CapabilityUniversal)}
}

// =============================================================================
// 管理端操作
// =============================================================================

// ListProfiles 列出全部配置
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := s.db.WithContext(ctx).Order(newestFirst).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// CreateProfile 创建配置；标记为默认时清除同能力的其他默认标记
func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.IsDefault {
			if err := clearDefault(tx, p.Capability, 0); err != nil {
				return err
			}
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		s.logger.Info("配置已创建",
			zap.Uint("profile_id", p.ID),
			zap.String("name", p.Name),
			zap.String("capability", string(p.Capability)))
		return nil
	})
}

// UpdateProfile 更新配置全部可编辑字段
func (s *Store) UpdateProfile(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Profile
		if err := tx.First(&existing, p.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load profile %d: %w", p.ID, err)
		}
		if p.IsDefault {
			if err := clearDefault(tx, p.Capability, p.ID); err != nil {
				return err
			}
		}
		if p.APIKey == "" {
			// 未提供新 Key 时保留原值
			p.APIKey = existing.APIKey
		}
		err := tx.Model(&existing).Select(
			"Name", "Family", "Variant", "Capability", "BaseURL", "APIKey", "Model", "Enabled", "IsDefault",
		).Updates(p).Error
		if err != nil {
			return fmt.Errorf("update profile %d: %w", p.ID, err)
		}
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = existing.UpdatedAt
		return nil
	})
}

// DeleteProfile 删除配置
func (s *Store) DeleteProfile(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Profile{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete profile %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func clearDefault(tx *gorm.DB, capability types.Capability, exceptID uint) error {
	err := tx.Model(&Profile{}).
		Where("capability = ? AND is_default = ? AND id <> ?", capability, true, exceptID).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("clear default profile: %w", err)
	}
	return nil
}

// =============================================================================
// 提示词模板与风格标签
// =============================================================================

// PromptTemplate 获取提示词模板，不存在时 ok=false
func (s *Store) PromptTemplate(ctx context.Context, key string) (string, bool, error) {
	var tpl PromptTemplate
	err := s.db.WithContext(ctx).Where("tpl_key = ?", key).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get prompt template %q: %w", key, err)
	}
	return tpl.Content, true, nil
}

// SetPromptTemplate 写入或覆盖提示词模板
func (s *Store) SetPromptTemplate(ctx context.Context, key, content string) error {
	tpl := PromptTemplate{Key: key, Content: content}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tpl_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&tpl).Error
	if err != nil {
		return fmt.Errorf("set prompt template %q: %w", key, err)
	}
	return nil
}

// StyleSnippets 按给定名称顺序返回风格片段，未知名称跳过
func (s *Store) StyleSnippets(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var tags []StyleTag
	if err := s.db.WithContext(ctx).Where("name IN ?", names).Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("get style tags: %w", err)
	}
	byName := make(map[string]string, len(tags))
	for _, t := range tags {
		byName[t.Name] = t.Snippet
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if snippet, ok := byName[n]; ok {
			out = append(out, snippet)
		}
	}
	return out, nil
}

// ListStyleTags 列出全部风格标签
func (s *Store) ListStyleTags(ctx context.Context) ([]StyleTag, error) {
	var tags []StyleTag
	if err := s.db.WithContext(ctx).Order("sort_order ASC, id ASC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list style tags: %w", err)
	}
	return tags, nil
}

// UpsertStyleTag 写入或覆盖风格标签
func (s *Store) UpsertStyleTag(ctx context.Context, tag *StyleTag) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"snippet", "sort_order"}),
	}).Create(tag).Error
	if err != nil {
		return fmt.Errorf("upsert style tag %q: %w", tag.Name, err)
	}
	return nil
}
