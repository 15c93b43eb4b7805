package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/internal/store"
	"github.com/BaSui01/cardflow/orchestrator"
	"github.com/BaSui01/cardflow/types"
)

// ProfileStore 后端配置的管理端存储
type ProfileStore interface {
	ListProfiles(ctx context.Context) ([]store.Profile, error)
	GetProfile(ctx context.Context, id uint) (*store.Profile, error)
	CreateProfile(ctx context.Context, p *store.Profile) error
	UpdateProfile(ctx context.Context, p *store.Profile) error
	DeleteProfile(ctx context.Context, id uint) error
}

// ConnectionTester 直接测试单个配置
type ConnectionTester interface {
	TestConnection(ctx context.Context, p *store.Profile) (*orchestrator.Served[orchestrator.ConnectionResult], error)
}

// =============================================================================
// 🔑 后端配置 Handler
// =============================================================================

// ProfileHandler 后端配置 CRUD
type ProfileHandler struct {
	store  ProfileStore
	tester ConnectionTester
	logger *zap.Logger
}

// NewProfileHandler 创建配置处理器
func NewProfileHandler(s ProfileStore, tester ConnectionTester, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{store: s, tester: tester, logger: logger.With(zap.String("component", "api"))}
}

// Register 注册路由
func (h *ProfileHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/profiles", h.HandleList)
	mux.HandleFunc("POST /api/v1/profiles", h.HandleCreate)
	mux.HandleFunc("PUT /api/v1/profiles/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/profiles/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/v1/profiles/{id}/test", h.HandleTest)
}

// ProfileView 对外展示的配置，API Key 已脱敏
type ProfileView struct {
	ID         uint                 `json:"id"`
	Name       string               `json:"name"`
	Family     types.ProviderFamily `json:"family"`
	Variant    string               `json:"variant,omitempty"`
	Capability types.Capability     `json:"capability"`
	BaseURL    string               `json:"baseUrl"`
	APIKey     string               `json:"apiKey"`
	Model      string               `json:"model"`
	Enabled    bool                 `json:"enabled"`
	IsDefault  bool                 `json:"isDefault"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

func viewOf(p *store.Profile) ProfileView {
	return ProfileView{
		ID:         p.ID,
		Name:       p.Name,
		Family:     p.Family,
		Variant:    p.Variant,
		Capability: p.Capability,
		BaseURL:    p.BaseURL,
		APIKey:     p.MaskedAPIKey(),
		Model:      p.Model,
		Enabled:    p.Enabled,
		IsDefault:  p.IsDefault,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// ProfileInput 创建/更新请求体
type ProfileInput struct {
	Name       string `json:"name"`
	Family     string `json:"family"`
	Variant    string `json:"variant,omitempty"`
	Capability string `json:"capability"`
	BaseURL    string `json:"baseUrl"`
	APIKey     string `json:"apiKey,omitempty"`
	Model      string `json:"model"`
	Enabled    *bool  `json:"enabled,omitempty"`
	IsDefault  bool   `json:"isDefault"`
}

func (in ProfileInput) profile() *store.Profile {
	p := &store.Profile{
		Name:       strings.TrimSpace(in.Name),
		Family:     types.ProviderFamily(in.Family),
		Variant:    in.Variant,
		Capability: types.Capability(in.Capability),
		BaseURL:    strings.TrimSpace(in.BaseURL),
		APIKey:     strings.TrimSpace(in.APIKey),
		Model:      strings.TrimSpace(in.Model),
		Enabled:    true,
		IsDefault:  in.IsDefault,
	}
	if in.Enabled != nil {
		p.Enabled = *in.Enabled
	}
	// 回传的脱敏 Key 视为未修改
	if strings.Contains(p.APIKey, "****") {
		p.APIKey = ""
	}
	return p
}

// HandleList GET /api/v1/profiles
func (h *ProfileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.ListProfiles(r.Context())
	if err != nil {
		WriteError(w, r, storeErr(err), h.logger)
		return
	}
	views := make([]ProfileView, 0, len(profiles))
	for i := range profiles {
		views = append(views, viewOf(&profiles[i]))
	}
	WriteSuccess(w, r, views)
}

// HandleCreate POST /api/v1/profiles
func (h *ProfileHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	if DecodeJSONBody(w, r, &in, h.logger) != nil {
		return
	}
	p := in.profile()
	if err := p.Validate(); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}
	if err := h.store.CreateProfile(r.Context(), p); err != nil {
		WriteError(w, r, storeErr(err), h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, newResponse(r, orchestrator.Envelope{Success: true, Data: viewOf(p)}))
}

// HandleUpdate PUT /api/v1/profiles/{id}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in ProfileInput
	if DecodeJSONBody(w, r, &in, h.logger) != nil {
		return
	}
	p := in.profile()
	p.ID = id
	if err := p.Validate(); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}
	if err := h.store.UpdateProfile(r.Context(), p); err != nil {
		WriteError(w, r, storeErr(err), h.logger)
		return
	}
	updated, err := h.store.GetProfile(r.Context(), id)
	if err != nil {
		WriteError(w, r, storeErr(err), h.logger)
		return
	}
	WriteSuccess(w, r, viewOf(updated))
}

// HandleDelete DELETE /api/v1/profiles/{id}
func (h *ProfileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteProfile(r.Context(), id); err != nil {
		WriteError(w, r, storeErr(err), h.logger)
		return
	}
	WriteSuccess(w, r, map[string]uint{"id": id})
}

// HandleTest POST /api/v1/profiles/{id}/test
//
// 测试禁用的配置同样有效，不经过解析回退。
func (h *ProfileHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.store.GetProfile(r.Context(), id)
	if err != nil {
		WriteError(w, r, storeErr(err), h.logger)
		return
	}
	served, err := h.tester.TestConnection(r.Context(), p)
	WriteResult(w, r, served, err, h.logger)
}

func (h *ProfileHandler) pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		WriteErrorMessage(w, r, types.ErrInvalidRequest, "invalid profile id", h.logger)
		return 0, false
	}
	return uint(id), true
}

func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return types.NewError(types.ErrNotFound, "profile not found").WithCause(err)
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewError(types.ErrInternalError, "configuration store error").WithCause(err)
}
