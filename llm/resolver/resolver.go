// Package resolver 按能力为单次请求选出后端配置。
//
// 选择顺序：显式指定 → 能力默认 → 任意启用记录（最近创建优先）。
// 每一层失败都会落到下一层，全部落空时返回 CONFIGURATION_UNAVAILABLE。
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/internal/store"
	"github.com/BaSui01/cardflow/types"
)

// ProfileSource 解析器需要的配置存储查询
type ProfileSource interface {
	GetProfile(ctx context.Context, id uint) (*store.Profile, error)
	DefaultProfile(ctx context.Context, capability types.Capability) (*store.Profile, error)
	ListEnabled(ctx context.Context, capability types.Capability) ([]store.Profile, error)
}

// Tier 命中的选择层级
type Tier string

const (
	TierExplicit Tier = "explicit"
	TierDefault  Tier = "default"
	TierAny      Tier = "any_enabled"
)

// Resolver 配置解析器
type Resolver struct {
	source ProfileSource
	logger *zap.Logger
}

// New 创建配置解析器
func New(source ProfileSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, logger: logger.With(zap.String("component", "resolver"))}
}

// Resolve 为请求能力选出后端配置。explicitID 为 nil 表示未显式指定。
func (r *Resolver) Resolve(ctx context.Context, capability types.Capability, explicitID *uint) (*types.BackendConfig, error) {
	cfg, _, err := r.ResolveWithTier(ctx, capability, explicitID)
	return cfg, err
}

// ResolveWithTier 同 Resolve，额外返回命中层级
func (r *Resolver) ResolveWithTier(ctx context.Context, capability types.Capability, explicitID *uint) (*types.BackendConfig, Tier, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", types.FromContext(err)
	}

	// 1. 显式指定
	if explicitID != nil {
		p, err := r.source.GetProfile(ctx, *explicitID)
		switch {
		case err == nil && usable(p, capability):
			return r.hit(p, capability, TierExplicit), TierExplicit, nil
		case err == nil:
			r.logger.Warn("显式指定的配置不可用，回退",
				zap.Uint("profile_id", *explicitID),
				zap.Bool("enabled", p.Enabled),
				zap.String("capability", string(p.Capability)),
				zap.String("requested", string(capability)))
		case errors.Is(err, store.ErrNotFound):
			r.logger.Warn("显式指定的配置不存在，回退", zap.Uint("profile_id", *explicitID))
		default:
			return nil, "", storeError(err)
		}
	}

	// 2. 能力默认
	p, err := r.source.DefaultProfile(ctx, capability)
	switch {
	case err == nil && usable(p, capability):
		return r.hit(p, capability, TierDefault), TierDefault, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, "", storeError(err)
	}

	// 3. 任意启用记录
	candidates, err := r.source.ListEnabled(ctx, capability)
	if err != nil {
		return nil, "", storeError(err)
	}
	for i := range candidates {
		if usable(&candidates[i], capability) {
			return r.hit(&candidates[i], capability, TierAny), TierAny, nil
		}
	}

	r.logger.Warn("没有可用的后端配置", zap.String("capability", string(capability)))
	return nil, "", Unavailable(capability)
}

// Snapshot 将单个配置记录转换为后端配置，不做回退
func Snapshot(p *store.Profile) *types.BackendConfig {
	return &types.BackendConfig{
		ProfileID:  p.ID,
		Name:       p.Name,
		BaseURL:    p.BaseURL,
		APIKey:     p.APIKey,
		Model:      p.Model,
		Family:     p.Family,
		Variant:    p.Variant,
		Capability: p.Capability,
	}
}

// Unavailable 构造配置不可用错误
func Unavailable(capability types.Capability) *types.Error {
	return types.Errorf(types.ErrConfigurationUnavailable,
		"no enabled %s backend configuration", capability).
		WithDetail(fmt.Sprintf("add and enable a %s backend configuration, or mark one as default", capability))
}

func usable(p *store.Profile, capability types.Capability) bool {
	return p != nil && p.Enabled && p.Capability.Serves(capability)
}

func (r *Resolver) hit(p *store.Profile, capability types.Capability, tier Tier) *types.BackendConfig {
	r.logger.Debug("后端配置已选定",
		zap.Uint("profile_id", p.ID),
		zap.String("name", p.Name),
		zap.String("capability", string(capability)),
		zap.String("tier", string(tier)))
	return Snapshot(p)
}

func storeError(err error) error {
	return types.NewError(types.ErrInternalError, "configuration store query failed").WithCause(err)
}
