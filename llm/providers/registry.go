package providers

import (
	"sort"
	"sync"

	"github.com/BaSui01/cardflow/types"
)

// Registry 供应商家族到适配器的映射
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.ProviderFamily]Adapter
}

// NewRegistry 创建注册表并注册给定适配器
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[types.ProviderFamily]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register 注册适配器，同一家族后注册者覆盖先注册者
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Family()] = a
}

// Get 按家族获取适配器
func (r *Registry) Get(family types.ProviderFamily) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[family]; ok {
		return a, nil
	}
	return nil, types.Errorf(types.ErrInvalidRequest, "no adapter registered for provider family %q", family)
}

// Families 返回已注册家族，按名称排序
func (r *Registry) Families() []types.ProviderFamily {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProviderFamily, 0, len(r.adapters))
	for f := range r.adapters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
