package handlers

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/orchestrator"
	"github.com/BaSui01/cardflow/structured"
)

// Generator 编排服务的调用方接口
type Generator interface {
	GenerateOutline(ctx context.Context, req orchestrator.OutlineRequest) (*orchestrator.Served[*structured.CardResult], error)
	CardPrompts(ctx context.Context, req orchestrator.CardPromptsRequest) (orchestrator.ServedBy, iter.Seq[orchestrator.CardPromptResult], error)
	GenerateCardPrompts(ctx context.Context, req orchestrator.CardPromptsRequest) (*orchestrator.Served[[]orchestrator.CardPromptResult], error)
	GenerateQuickPrompts(ctx context.Context, req orchestrator.QuickPromptsRequest) (*orchestrator.Served[*structured.PromptResult], error)
	GenerateImage(ctx context.Context, req orchestrator.ImageRequest) (*orchestrator.Served[orchestrator.ImageResult], error)
	Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.Served[string], error)
	Translate(ctx context.Context, req orchestrator.TranslateRequest) (*orchestrator.Served[orchestrator.TranslateResult], error)
}

// =============================================================================
// 🎨 生成 Handler
// =============================================================================

// GenerateHandler 生成类接口处理器
type GenerateHandler struct {
	svc    Generator
	logger *zap.Logger
}

// NewGenerateHandler 创建生成处理器
func NewGenerateHandler(svc Generator, logger *zap.Logger) *GenerateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateHandler{svc: svc, logger: logger.With(zap.String("component", "api"))}
}

// Register 注册路由
func (h *GenerateHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/outline", h.HandleOutline)
	mux.HandleFunc("POST /api/v1/card-prompts", h.HandleCardPrompts)
	mux.HandleFunc("POST /api/v1/quick-prompts", h.HandleQuickPrompts)
	mux.HandleFunc("POST /api/v1/images", h.HandleImage)
	mux.HandleFunc("POST /api/v1/chat", h.HandleChat)
	mux.HandleFunc("POST /api/v1/translate", h.HandleTranslate)
}

// HandleOutline POST /api/v1/outline
func (h *GenerateHandler) HandleOutline(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.OutlineRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}
	served, err := h.svc.GenerateOutline(r.Context(), req)
	WriteResult(w, r, served, err, h.logger)
}

// HandleCardPrompts POST /api/v1/card-prompts
//
// Accept: application/x-ndjson 时逐卡流式输出，每行一个 CardPromptResult。
func (h *GenerateHandler) HandleCardPrompts(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CardPromptsRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}
	if wantsNDJSON(r) {
		h.streamCardPrompts(w, r, req)
		return
	}
	served, err := h.svc.GenerateCardPrompts(r.Context(), req)
	WriteResult(w, r, served, err, h.logger)
}

func (h *GenerateHandler) streamCardPrompts(w http.ResponseWriter, r *http.Request, req orchestrator.CardPromptsRequest) {
	by, seq, err := h.svc.CardPrompts(r.Context(), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Served-By-Config", by.ConfigName)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	for res := range seq {
		if err := enc.Encode(res); err != nil {
			h.logger.Debug("客户端断开，停止逐卡输出", zap.Error(err))
			return
		}
		_ = rc.Flush()
	}
}

func wantsNDJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/x-ndjson")
}

// HandleQuickPrompts POST /api/v1/quick-prompts
func (h *GenerateHandler) HandleQuickPrompts(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.QuickPromptsRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}
	served, err := h.svc.GenerateQuickPrompts(r.Context(), req)
	WriteResult(w, r, served, err, h.logger)
}

// HandleImage POST /api/v1/images
func (h *GenerateHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ImageRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}
	served, err := h.svc.GenerateImage(r.Context(), req)
	WriteResult(w, r, served, err, h.logger)
}

// HandleChat POST /api/v1/chat
func (h *GenerateHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ChatRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}
	served, err := h.svc.Chat(r.Context(), req)
	WriteResult(w, r, served, err, h.logger)
}

// HandleTranslate POST /api/v1/translate
func (h *GenerateHandler) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.TranslateRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}
	served, err := h.svc.Translate(r.Context(), req)
	WriteResult(w, r, served, err, h.logger)
}
