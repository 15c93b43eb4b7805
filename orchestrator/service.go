// Package orchestrator composes configuration resolution, provider adapters
// and structured-output recovery into the caller-facing generation
// operations.
//
// 每个操作只解析一次配置：解析 → 调用适配器（异步家族内部轮询）→ 按需恢复结构化
// 输出 → 返回结果与服务它的配置。
package orchestrator

import (
	"context"
	"iter"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/config"
	"github.com/BaSui01/cardflow/internal/scraper"
	"github.com/BaSui01/cardflow/internal/store"
	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/llm/resolver"
	"github.com/BaSui01/cardflow/llm/retry"
	"github.com/BaSui01/cardflow/structured"
	"github.com/BaSui01/cardflow/types"
)

// 操作名，用于日志、追踪与指标
const (
	OpOutline      = "outline"
	OpCardPrompt   = "card_prompt"
	OpQuickPrompts = "quick_prompts"
	OpImage        = "image"
	OpChat         = "chat"
	OpTranslate    = "translate"
	OpTest         = "test_connection"
)

// ParseExhaustedMessage 生成+解析重试耗尽时面向用户的提示
const ParseExhaustedMessage = "AI output format could not be parsed, please retry"

const (
	maxPageCount    = 30
	maxQuickPrompts = 20
)

// ConfigResolver 按能力解析后端配置
type ConfigResolver interface {
	Resolve(ctx context.Context, capability types.Capability, explicitID *uint) (*types.BackendConfig, error)
}

// PromptStore 提示词模板与风格片段
type PromptStore interface {
	PromptTemplate(ctx context.Context, key string) (string, bool, error)
	StyleSnippets(ctx context.Context, names []string) ([]string, error)
}

// SourceFetcher 抓取 sourceUrl 指向的页面正文
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// Recorder 操作级指标
type Recorder interface {
	RecordOperation(operation, provider, outcome string, duration time.Duration)
	RecordRecovery(operation string, stage structured.Stage, autoGenerated int)
	RecordCardFallback()
}

// Options 生成参数
type Options struct {
	MaxTokens           int
	Temperature         float64
	OutlineAttempts     int
	QuickPromptAttempts int
	MaxSourceRunes      int
	DefaultPageCount    int
	DefaultImageSize    string
}

// OptionsFromConfig 从配置构造生成参数
func OptionsFromConfig(cfg config.GenerationConfig) Options {
	return Options{
		MaxTokens:           cfg.MaxTokens,
		Temperature:         cfg.Temperature,
		OutlineAttempts:     cfg.OutlineAttempts,
		QuickPromptAttempts: cfg.QuickPromptAttempts,
		MaxSourceRunes:      cfg.MaxSourceRunes,
		DefaultPageCount:    cfg.DefaultPageCount,
		DefaultImageSize:    cfg.DefaultImageSize,
	}
}

// Option 可选依赖
type Option func(*Service)

// WithPromptStore 设置模板存储
func WithPromptStore(p PromptStore) Option { return func(s *Service) { s.prompts = p } }

// WithFetcher 设置 sourceUrl 抓取器
func WithFetcher(f SourceFetcher) Option { return func(s *Service) { s.fetcher = f } }

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithTracer 设置追踪器，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

// Service 生成编排服务
type Service struct {
	resolver ConfigResolver
	adapters *providers.Registry
	prompts  PromptStore
	fetcher  SourceFetcher
	recorder Recorder
	tracer   trace.Tracer
	opts     Options
	logger   *zap.Logger
}

// New creates the service.
func New(r ConfigResolver, adapters *providers.Registry, opts Options, logger *zap.Logger, options ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.DefaultGenerationConfig()
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.OutlineAttempts <= 0 {
		opts.OutlineAttempts = def.OutlineAttempts
	}
	if opts.QuickPromptAttempts <= 0 {
		opts.QuickPromptAttempts = def.QuickPromptAttempts
	}
	if opts.DefaultPageCount <= 0 {
		opts.DefaultPageCount = def.DefaultPageCount
	}
	if opts.DefaultImageSize == "" {
		opts.DefaultImageSize = def.DefaultImageSize
	}

	s := &Service{
		resolver: r,
		adapters: adapters,
		opts:     opts,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
	for _, o := range options {
		o(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/BaSui01/cardflow/orchestrator")
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

// =============================================================================
// 📝 大纲
// =============================================================================

// GenerateOutline generates the card outline. The whole completion + recovery
// cycle is retried on parse and response-format failures only.
func (s *Service) GenerateOutline(ctx context.Context, req OutlineRequest) (_ *Served[*structured.CardResult], err error) {
	ctx, done := s.begin(ctx, OpOutline)
	var cfg *types.BackendConfig
	defer func() { done(cfg, err) }()

	source, err := s.outlineSource(ctx, &req)
	if err != nil {
		return nil, err
	}
	pageCount := req.PageCount
	if pageCount <= 0 {
		pageCount = s.opts.DefaultPageCount
	}
	if pageCount > maxPageCount {
		return nil, types.Errorf(types.ErrInvalidRequest, "pageCount must be at most %d", maxPageCount)
	}

	cfg, adapter, err := s.resolve(ctx, types.CapabilityText, req.ConfigID)
	if err != nil {
		return nil, err
	}

	messages := []types.Message{
		types.NewSystemMessage(s.systemPrompt(ctx, KeyOutlineSystem)),
		types.NewUserMessage(outlineUserPrompt(req, source, pageCount)),
	}
	result, err := completeAndRecover(ctx, s, OpOutline, cfg, adapter, messages, s.opts.OutlineAttempts,
		func(raw string) (*structured.CardResult, error) { return structured.Recover(raw) })
	if err != nil {
		return nil, err
	}

	s.recorder.RecordRecovery(OpOutline, result.Stage, result.AutoGenerated)
	s.logger.Info("大纲生成完成",
		zap.Uint("profile_id", cfg.ProfileID),
		zap.Int("cards", len(result.Cards)),
		zap.Int("auto_generated", result.AutoGenerated),
		zap.String("stage", string(result.Stage)),
		zap.String("matcher", result.Matcher),
	)
	return &Served[*structured.CardResult]{Data: result, ServedBy: servedBy(cfg)}, nil
}

// outlineSource 合并 sourceText 与抓取结果，并按 MaxSourceRunes 截断
func (s *Service) outlineSource(ctx context.Context, req *OutlineRequest) (string, error) {
	source := strings.TrimSpace(req.SourceText)
	if source == "" && req.SourceURL != "" {
		if s.fetcher == nil {
			return "", types.NewError(types.ErrInvalidRequest, "sourceUrl is not supported by this deployment")
		}
		page, err := s.fetcher.Fetch(ctx, req.SourceURL)
		if err != nil {
			return "", err
		}
		source = page.Text
		if req.Title == "" {
			req.Title = page.Title
		}
	}
	if source == "" && strings.TrimSpace(req.Title) == "" {
		return "", types.NewError(types.ErrInvalidRequest, "one of sourceText, sourceUrl or title is required")
	}
	return truncateRunes(source, s.opts.MaxSourceRunes), nil
}

// =============================================================================
// 🎨 逐卡提示词
// =============================================================================

// CardPrompts resolves once and returns an iterator that generates one prompt
// per card, strictly in order. A failing card yields a deterministic fallback
// instead of ending the batch; cancellation ends the iteration.
func (s *Service) CardPrompts(ctx context.Context, req CardPromptsRequest) (ServedBy, iter.Seq[CardPromptResult], error) {
	if len(req.Cards) == 0 {
		return ServedBy{}, nil, types.NewError(types.ErrInvalidRequest, "cards must not be empty")
	}
	cfg, adapter, err := s.resolve(ctx, types.CapabilityText, req.ConfigID)
	if err != nil {
		return ServedBy{}, nil, err
	}

	system := s.systemPrompt(ctx, KeyCardPromptSystem)
	snippets := s.styleSnippets(ctx, req.Styles)

	seq := func(yield func(CardPromptResult) bool) {
		for i, card := range req.Cards {
			if ctx.Err() != nil {
				return
			}
			res, cancelled := s.cardPrompt(ctx, cfg, adapter, system, snippets, i, card)
			if cancelled {
				return
			}
			if !yield(res) {
				return
			}
		}
	}
	return servedBy(cfg), seq, nil
}

// GenerateCardPrompts collects CardPrompts. Cancellation mid-batch returns
// CANCELLED.
func (s *Service) GenerateCardPrompts(ctx context.Context, req CardPromptsRequest) (*Served[[]CardPromptResult], error) {
	by, seq, err := s.CardPrompts(ctx, req)
	if err != nil {
		return nil, err
	}
	results := make([]CardPromptResult, 0, len(req.Cards))
	for r := range seq {
		results = append(results, r)
	}
	if err := ctx.Err(); err != nil {
		return nil, types.FromContext(err)
	}
	return &Served[[]CardPromptResult]{Data: results, ServedBy: by}, nil
}

// cardPrompt 生成单张卡片的提示词；第二个返回值表示调用方已取消
func (s *Service) cardPrompt(ctx context.Context, cfg *types.BackendConfig, adapter providers.Adapter,
	system string, snippets []string, index int, card structured.CardRecord) (_ CardPromptResult, cancelled bool) {
	var err error
	ctx, done := s.begin(ctx, OpCardPrompt)
	defer func() { done(cfg, err) }()

	res := CardPromptResult{Index: index, PageNumber: card.PageNumber}
	if res.PageNumber <= 0 {
		res.PageNumber = index + 1
	}

	var raw string
	raw, err = adapter.CompleteText(ctx, cfg, s.textRequest([]types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(cardUserPrompt(card, snippets)),
	}, 0, nil))
	if err == nil {
		var item structured.PromptItem
		if item, err = structured.ParseSinglePrompt(raw); err == nil {
			res.ImagePrompt, res.Explain = item.Prompt, item.Explain
			return res, false
		}
	}
	if types.IsErrorCode(err, types.ErrCancelled) || ctx.Err() != nil {
		return res, true
	}

	s.logger.Warn("卡片提示词生成失败，使用兜底提示词",
		zap.Int("index", index),
		zap.String("title", card.Title),
		zap.Error(err),
	)
	s.recorder.RecordCardFallback()
	res.ImagePrompt = fallbackPrompt(card, snippets)
	res.Fallback = true
	res.Error = err.Error()
	return res, false
}

// =============================================================================
// ⚡ 快速模式
// =============================================================================

// GenerateQuickPrompts generates Count prompts for a topic with the same
// retry policy as outline generation.
func (s *Service) GenerateQuickPrompts(ctx context.Context, req QuickPromptsRequest) (_ *Served[*structured.PromptResult], err error) {
	ctx, done := s.begin(ctx, OpQuickPrompts)
	var cfg *types.BackendConfig
	defer func() { done(cfg, err) }()

	if strings.TrimSpace(req.Topic) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "topic is required")
	}
	count := req.Count
	if count <= 0 {
		count = 4
	}
	if count > maxQuickPrompts {
		return nil, types.Errorf(types.ErrInvalidRequest, "count must be at most %d", maxQuickPrompts)
	}

	cfg, adapter, err := s.resolve(ctx, types.CapabilityText, req.ConfigID)
	if err != nil {
		return nil, err
	}

	messages := []types.Message{
		types.NewSystemMessage(s.systemPrompt(ctx, KeyQuickPromptSystem)),
		types.NewUserMessage(quickUserPrompt(req.Topic, count, s.styleSnippets(ctx, req.Styles))),
	}
	result, err := completeAndRecover(ctx, s, OpQuickPrompts, cfg, adapter, messages, s.opts.QuickPromptAttempts,
		func(raw string) (*structured.PromptResult, error) { return structured.RecoverPrompts(raw, count) })
	if err != nil {
		return nil, err
	}
	s.recorder.RecordRecovery(OpQuickPrompts, result.Stage, 0)
	return &Served[*structured.PromptResult]{Data: result, ServedBy: servedBy(cfg)}, nil
}

// =============================================================================
// 🖼️ 出图 / 对话 / 翻译
// =============================================================================

// GenerateImage performs exactly one adapter call; failures are returned
// unchanged.
func (s *Service) GenerateImage(ctx context.Context, req ImageRequest) (_ *Served[ImageResult], err error) {
	ctx, done := s.begin(ctx, OpImage)
	var cfg *types.BackendConfig
	defer func() { done(cfg, err) }()

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "prompt is required")
	}
	cfg, adapter, err := s.resolve(ctx, types.CapabilityImage, req.ConfigID)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size == "" {
		size = s.opts.DefaultImageSize
	}
	url, err := adapter.GenerateImage(ctx, cfg, &providers.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Size:           size,
	})
	if err != nil {
		return nil, err
	}
	return &Served[ImageResult]{Data: ImageResult{URL: url}, ServedBy: servedBy(cfg)}, nil
}

// Chat runs a plain text completion over caller-supplied messages. Data is
// the completion text itself.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (_ *Served[string], err error) {
	ctx, done := s.begin(ctx, OpChat)
	var cfg *types.BackendConfig
	defer func() { done(cfg, err) }()

	if len(req.Messages) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "messages must not be empty")
	}
	capability := types.CapabilityText
	if req.Capability != "" {
		c, perr := types.ParseCapability(req.Capability)
		if perr != nil {
			return nil, types.NewError(types.ErrInvalidRequest, perr.Error())
		}
		capability = c
		if capability == types.CapabilityImage {
			return nil, types.NewError(types.ErrUnsupportedCapability, "chat requires a text capability")
		}
	}

	cfg, adapter, err := s.resolve(ctx, capability, req.ConfigID)
	if err != nil {
		return nil, err
	}
	content, err := adapter.CompleteText(ctx, cfg, s.textRequest(req.Messages, req.MaxTokens, req.Temperature))
	if err != nil {
		return nil, err
	}
	return &Served[string]{Data: content, ServedBy: servedBy(cfg)}, nil
}

// Translate translates text into the target language (English by default).
func (s *Service) Translate(ctx context.Context, req TranslateRequest) (_ *Served[TranslateResult], err error) {
	ctx, done := s.begin(ctx, OpTranslate)
	var cfg *types.BackendConfig
	defer func() { done(cfg, err) }()

	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "text is required")
	}
	target := strings.TrimSpace(req.TargetLanguage)
	if target == "" {
		target = "English"
	}

	cfg, adapter, err := s.resolve(ctx, types.CapabilityText, req.ConfigID)
	if err != nil {
		return nil, err
	}
	out, err := adapter.CompleteText(ctx, cfg, s.textRequest([]types.Message{
		types.NewSystemMessage(s.systemPrompt(ctx, KeyTranslateSystem)),
		types.NewUserMessage("目标语言：" + target + "\n\n" + req.Text),
	}, 0, nil))
	if err != nil {
		return nil, err
	}
	return &Served[TranslateResult]{
		Data:     TranslateResult{Text: strings.TrimSpace(out), TargetLanguage: target},
		ServedBy: servedBy(cfg),
	}, nil
}

// TestConnection exercises one stored profile directly, without fallback.
func (s *Service) TestConnection(ctx context.Context, p *store.Profile) (_ *Served[ConnectionResult], err error) {
	ctx, done := s.begin(ctx, OpTest)
	cfg := resolver.Snapshot(p)
	defer func() { done(cfg, err) }()

	adapter, err := s.adapters.Get(cfg.Family)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var sample string
	if cfg.Capability == types.CapabilityImage {
		sample, err = adapter.GenerateImage(ctx, cfg, &providers.ImageRequest{
			Prompt: "a small red circle on a white background",
			Size:   s.opts.DefaultImageSize,
		})
	} else {
		sample, err = adapter.CompleteText(ctx, cfg, &providers.TextRequest{
			Messages:  []types.Message{types.NewUserMessage("Reply with the single word OK.")},
			MaxTokens: 16,
		})
	}
	if err != nil {
		return nil, err
	}
	return &Served[ConnectionResult]{
		Data: ConnectionResult{
			Capability: cfg.Capability,
			Sample:     strings.TrimSpace(sample),
			LatencyMS:  time.Since(start).Milliseconds(),
		},
		ServedBy: servedBy(cfg),
	}, nil
}

// =============================================================================
// 内部
// =============================================================================

func (s *Service) resolve(ctx context.Context, capability types.Capability, explicitID *uint) (*types.BackendConfig, providers.Adapter, error) {
	cfg, err := s.resolver.Resolve(ctx, capability, explicitID)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := s.adapters.Get(cfg.Family)
	if err != nil {
		return nil, nil, err
	}
	return cfg, adapter, nil
}

func (s *Service) textRequest(messages []types.Message, maxTokens int, temperature *float64) *providers.TextRequest {
	if maxTokens <= 0 {
		maxTokens = s.opts.MaxTokens
	}
	temp := s.opts.Temperature
	if temperature != nil {
		temp = *temperature
	}
	t32 := float32(temp)
	return &providers.TextRequest{Messages: messages, MaxTokens: maxTokens, Temperature: &t32}
}

// completeAndRecover 在 WithRetry 下执行“补全 + 恢复”整体循环
func completeAndRecover[T any](ctx context.Context, s *Service, op string, cfg *types.BackendConfig, adapter providers.Adapter,
	messages []types.Message, attempts int, recoverFn func(raw string) (T, error)) (T, error) {
	req := s.textRequest(messages, 0, nil)
	result, err := retry.WithRetry(ctx, attempts, retry.OnCodes(types.ErrRecoveryParse, types.ErrProviderResponseFormat),
		func(ctx context.Context, attempt int) (T, error) {
			raw, err := adapter.CompleteText(ctx, cfg, req)
			if err == nil {
				var out T
				if out, err = recoverFn(raw); err == nil {
					return out, nil
				}
			}
			s.logger.Warn("生成结果不可用",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err),
			)
			var zero T
			return zero, err
		})
	if err != nil && types.IsErrorCode(err, types.ErrRecoveryParse, types.ErrProviderResponseFormat) {
		detail := err.Error()
		if e, ok := types.AsError(err); ok && e.Detail != "" {
			detail = e.Detail
		}
		return result, types.NewError(types.ErrRecoveryParse, ParseExhaustedMessage).WithDetail(detail).WithCause(err)
	}
	return result, err
}

// begin 开启追踪 span，返回的 done 记录结果与耗时
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(cfg *types.BackendConfig, err error)) {
	ctx, span := s.tracer.Start(ctx, "orchestrator."+op)
	start := time.Now()
	return ctx, func(cfg *types.BackendConfig, err error) {
		provider := ""
		if cfg != nil {
			provider = string(cfg.Family)
			span.SetAttributes(
				attribute.Int64("cardflow.profile_id", int64(cfg.ProfileID)),
				attribute.String("cardflow.provider", provider),
				attribute.String("cardflow.model", cfg.Model),
			)
		}
		outcome := "success"
		if err != nil {
			outcome = string(types.GetErrorCode(err))
			if outcome == "" {
				outcome = string(types.ErrInternalError)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.recorder.RecordOperation(op, provider, outcome, time.Since(start))
		span.End()
	}
}

// Recorders 将指标依次转发给多个 Recorder
func Recorders(rs ...Recorder) Recorder { return multiRecorder(rs) }

type multiRecorder []Recorder

func (m multiRecorder) RecordOperation(operation, provider, outcome string, duration time.Duration) {
	for _, r := range m {
		r.RecordOperation(operation, provider, outcome, duration)
	}
}

func (m multiRecorder) RecordRecovery(operation string, stage structured.Stage, autoGenerated int) {
	for _, r := range m {
		r.RecordRecovery(operation, stage, autoGenerated)
	}
}

func (m multiRecorder) RecordCardFallback() {
	for _, r := range m {
		r.RecordCardFallback()
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string, string, time.Duration) {}
func (nopRecorder) RecordRecovery(string, structured.Stage, int)          {}
func (nopRecorder) RecordCardFallback()                                   {}
