package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BaSui01/cardflow/internal/scraper"
	"github.com/BaSui01/cardflow/internal/store"
	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/llm/providers/openaicompat"
	"github.com/BaSui01/cardflow/llm/resolver"
	"github.com/BaSui01/cardflow/structured"
	"github.com/BaSui01/cardflow/types"
)

// =============================================================================
// 测试替身
// =============================================================================

type reply struct {
	status int
	body   string
}

func textReply(content string) reply {
	body, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return reply{status: http.StatusOK, body: string(body)}
}

// fakeLLM 按顺序返回脚本化响应，最后一条重复使用
type fakeLLM struct {
	mu          sync.Mutex
	chat        []reply
	image       []reply
	chatCalls   int
	imageCalls  int
	lastMessage []map[string]any
	lastTemp    *float64
}

func (f *fakeLLM) next(queue []reply, n int) reply {
	if len(queue) == 0 {
		return reply{status: http.StatusInternalServerError, body: `{"error":{"message":"no scripted reply"}}`}
	}
	if n >= len(queue) {
		n = len(queue) - 1
	}
	return queue[n]
}

func (f *fakeLLM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, _ := io.ReadAll(r.Body)
	var body struct {
		Messages    []map[string]any `json:"messages"`
		Temperature *float64         `json:"temperature"`
	}
	_ = json.Unmarshal(raw, &body)

	var rep reply
	switch r.URL.Path {
	case "/v1/chat/completions":
		f.lastMessage = body.Messages
		f.lastTemp = body.Temperature
		rep = f.next(f.chat, f.chatCalls)
		f.chatCalls++
	case "/v1/images/generations":
		rep = f.next(f.image, f.imageCalls)
		f.imageCalls++
	default:
		rep = reply{status: http.StatusNotFound, body: `{"error":{"message":"not found"}}`}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_, _ = w.Write([]byte(rep.body))
}

func (f *fakeLLM) calls() (chat, image int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls, f.imageCalls
}

func (f *fakeLLM) message(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.lastMessage) {
		return ""
	}
	s, _ := f.lastMessage[i]["content"].(string)
	return s
}

type fakeRecorder struct {
	mu         sync.Mutex
	operations map[string][]string
	fallbacks  int
}

func (r *fakeRecorder) RecordOperation(op, _ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.operations == nil {
		r.operations = map[string][]string{}
	}
	r.operations[op] = append(r.operations[op], outcome)
}
func (r *fakeRecorder) RecordRecovery(string, structured.Stage, int) {}
func (r *fakeRecorder) RecordCardFallback() {
	r.mu.Lock()
	r.fallbacks++
	r.mu.Unlock()
}

type fakeFetcher struct{ page *scraper.Page }

func (f fakeFetcher) Fetch(context.Context, string) (*scraper.Page, error) { return f.page, nil }

type testEnv struct {
	svc   *Service
	store *store.Store
	llm   *fakeLLM
	rec   *fakeRecorder
	text  *store.Profile
	image *store.Profile
}

func setup(t *testing.T, opts Options, options ...Option) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	logger := zaptest.NewLogger(t)
	s := store.New(db, logger)
	require.NoError(t, s.Migrate(context.Background()))

	llm := &fakeLLM{}
	srv := httptest.NewServer(llm)
	t.Cleanup(srv.Close)

	text := &store.Profile{
		Name: "primary", Family: types.FamilyOpenAICompatible, Capability: types.CapabilityText,
		BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-4o", Enabled: true, IsDefault: true,
	}
	image := &store.Profile{
		Name: "painter", Family: types.FamilyOpenAICompatible, Capability: types.CapabilityImage,
		BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "dall-e-3", Enabled: true,
	}
	require.NoError(t, s.DB().Create(text).Error)
	require.NoError(t, s.DB().Create(image).Error)

	registry := providers.NewRegistry(openaicompat.New(openaicompat.Config{
		Options: providers.Options{HTTPClient: srv.Client()},
	}, logger))

	rec := &fakeRecorder{}
	options = append([]Option{WithPromptStore(s), WithRecorder(rec)}, options...)
	svc := New(resolver.New(s, logger), registry, opts, logger, options...)
	return &testEnv{svc: svc, store: s, llm: llm, rec: rec, text: text, image: image}
}

const validOutline = "```json\n" + `[
  {"pageNumber":1,"pageType":"cover","title":"Go 并发","imagePrompt":"gopher poster"},
  {"pageNumber":2,"pageType":"checklist","title":"测试清单","points":["准备环境"]}
]` + "\n```"

// =============================================================================
// 🧪 端到端
// =============================================================================

func TestChat_EndToEnd(t *testing.T) {
	env := setup(t, Options{})
	env.llm.chat = []reply{textReply("hello")}

	served, err := env.svc.Chat(context.Background(), ChatRequest{Messages: []types.Message{types.NewUserMessage("hi")}})
	require.NoError(t, err)

	assert.Equal(t, "hello", served.Data)
	assert.Equal(t, ServedBy{ConfigID: env.text.ID, ConfigName: "primary", Model: "gpt-4o", Provider: "openai-compatible"}, served.ServedBy)

	raw, err := json.Marshal(Respond(served, nil))
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, true, wire["success"])
	assert.Equal(t, "hello", wire["data"])
	by, ok := wire["servedBy"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", by["model"])
	assert.Equal(t, "primary", by["configName"])
	assert.Equal(t, []string{"success"}, env.rec.operations[OpChat])
}

func TestRecorders_FanOut(t *testing.T) {
	first, second := &fakeRecorder{}, &fakeRecorder{}
	env := setup(t, Options{}, WithRecorder(Recorders(first, second)))
	env.llm.chat = []reply{textReply("hello")}

	_, err := env.svc.Chat(context.Background(), ChatRequest{Messages: []types.Message{types.NewUserMessage("hi")}})
	require.NoError(t, err)

	assert.Equal(t, []string{"success"}, first.operations[OpChat])
	assert.Equal(t, first.operations, second.operations)
}

func TestChat_TemperatureZeroReachesBackend(t *testing.T) {
	env := setup(t, Options{Temperature: 0.7})
	env.llm.chat = []reply{textReply("ok")}

	zero := 0.0
	_, err := env.svc.Chat(context.Background(), ChatRequest{
		Messages:    []types.Message{types.NewUserMessage("hi")},
		Temperature: &zero,
	})
	require.NoError(t, err)

	env.llm.mu.Lock()
	defer env.llm.mu.Unlock()
	require.NotNil(t, env.llm.lastTemp)
	assert.Equal(t, 0.0, *env.llm.lastTemp)
}

func TestChat_ExplicitImageProfileFallsBackToText(t *testing.T) {
	env := setup(t, Options{})
	env.llm.chat = []reply{textReply("ok")}

	served, err := env.svc.Chat(context.Background(), ChatRequest{
		ConfigID: &env.image.ID,
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", served.ServedBy.ConfigName)
}

func TestChat_Validation(t *testing.T) {
	env := setup(t, Options{})

	_, err := env.svc.Chat(context.Background(), ChatRequest{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = env.svc.Chat(context.Background(), ChatRequest{Capability: "image", Messages: []types.Message{types.NewUserMessage("x")}})
	assert.Equal(t, types.ErrUnsupportedCapability, types.GetErrorCode(err))

	_, err = env.svc.Chat(context.Background(), ChatRequest{Capability: "video", Messages: []types.Message{types.NewUserMessage("x")}})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

// =============================================================================
// 🧪 大纲
// =============================================================================

func TestGenerateOutline(t *testing.T) {
	tests := []struct {
		name      string
		replies   []reply
		wantCalls int
		wantCode  types.ErrorCode
	}{
		{"first attempt", []reply{textReply(validOutline)}, 1, ""},
		{"parse failure retried", []reply{textReply("抱歉，我无法完成"), textReply(validOutline)}, 2, ""},
		{"format failure retried", []reply{{http.StatusOK, `{"choices":[]}`}, textReply(validOutline)}, 2, ""},
		{"parse exhausted", []reply{textReply("garbage"), textReply("still garbage")}, 2, types.ErrRecoveryParse},
		{"provider error not retried", []reply{{http.StatusUnauthorized, `{"error":{"message":"bad key"}}`}}, 1, types.ErrProviderRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t, Options{})
			env.llm.chat = tt.replies

			served, err := env.svc.GenerateOutline(context.Background(), OutlineRequest{SourceText: "Go 语言并发入门", PageCount: 2})

			chatCalls, _ := env.llm.calls()
			assert.Equal(t, tt.wantCalls, chatCalls)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			require.Len(t, served.Data.Cards, 2)
			assert.Equal(t, 1, served.Data.AutoGenerated)
			assert.True(t, served.Data.Cards[1].ImagePromptAutoGenerated)
			assert.Contains(t, served.Data.Cards[1].ImagePrompt, "checklist layout")
		})
	}
}

func TestGenerateOutline_ExhaustedMessage(t *testing.T) {
	env := setup(t, Options{})
	env.llm.chat = []reply{textReply("no json here")}

	_, err := env.svc.GenerateOutline(context.Background(), OutlineRequest{Title: "主题"})

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, ParseExhaustedMessage, e.Message)
	assert.NotEmpty(t, e.Detail)
	_, hasDiag := structured.Diagnostics(err)
	assert.True(t, hasDiag)

	envl := Respond[*structured.CardResult](nil, err)
	assert.False(t, envl.Success)
	assert.Equal(t, types.ErrRecoveryParse, envl.ErrorKind)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(err))
}

func TestGenerateOutline_PromptsAndSource(t *testing.T) {
	env := setup(t, Options{MaxSourceRunes: 5})
	require.NoError(t, env.store.SetPromptTemplate(context.Background(), KeyOutlineSystem, "CUSTOM SYSTEM"))
	env.llm.chat = []reply{textReply(validOutline)}

	_, err := env.svc.GenerateOutline(context.Background(), OutlineRequest{SourceText: "一二三四五六七", PageCount: 3, Language: "中文"})
	require.NoError(t, err)

	assert.Equal(t, "CUSTOM SYSTEM", env.llm.message(0))
	user := env.llm.message(1)
	assert.Contains(t, user, "一二三四五")
	assert.NotContains(t, user, "六")
	assert.Contains(t, user, "3 张")
	assert.Contains(t, user, "中文")
}

func TestGenerateOutline_SourceURL(t *testing.T) {
	env := setup(t, Options{}, WithFetcher(fakeFetcher{page: &scraper.Page{Title: "抓取标题", Text: "抓取正文"}}))
	env.llm.chat = []reply{textReply(validOutline)}

	_, err := env.svc.GenerateOutline(context.Background(), OutlineRequest{SourceURL: "https://example.com/post"})
	require.NoError(t, err)

	user := env.llm.message(1)
	assert.Contains(t, user, "抓取标题")
	assert.Contains(t, user, "抓取正文")
}

func TestGenerateOutline_Validation(t *testing.T) {
	env := setup(t, Options{})

	_, err := env.svc.GenerateOutline(context.Background(), OutlineRequest{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = env.svc.GenerateOutline(context.Background(), OutlineRequest{Title: "x", PageCount: 99})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	_, err = env.svc.GenerateOutline(context.Background(), OutlineRequest{SourceURL: "https://example.com"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	chatCalls, _ := env.llm.calls()
	assert.Zero(t, chatCalls)
}

// =============================================================================
// 🧪 逐卡提示词
// =============================================================================

func TestGenerateCardPrompts_FallbackKeepsOrder(t *testing.T) {
	env := setup(t, Options{})
	require.NoError(t, env.store.UpsertStyleTag(context.Background(), &store.StyleTag{Name: "watercolor", Snippet: "soft watercolor style"}))
	env.llm.chat = []reply{
		textReply(`{"imagePrompt":"a gopher juggling channels","explain":"并发"}`),
		{http.StatusInternalServerError, `{"error":{"message":"overloaded"}}`},
		textReply("A calm checklist on a desk"),
	}

	served, err := env.svc.GenerateCardPrompts(context.Background(), CardPromptsRequest{
		Cards: []structured.CardRecord{
			{PageNumber: 1, Title: "A"},
			{PageNumber: 2, Title: "B"},
			{PageNumber: 3, Title: "C"},
		},
		Styles: []string{"watercolor", "unknown"},
	})
	require.NoError(t, err)
	require.Len(t, served.Data, 3)

	r := served.Data
	assert.Equal(t, []int{0, 1, 2}, []int{r[0].Index, r[1].Index, r[2].Index})
	assert.Equal(t, "a gopher juggling channels", r[0].ImagePrompt)
	assert.Equal(t, "并发", r[0].Explain)
	assert.False(t, r[0].Fallback)

	assert.True(t, r[1].Fallback)
	assert.Equal(t, "soft watercolor style, minimalist background illustration for a knowledge card about B, clean layout, soft colors, no text", r[1].ImagePrompt)
	assert.Contains(t, r[1].Error, "overloaded")

	assert.Equal(t, "A calm checklist on a desk", r[2].ImagePrompt)
	assert.False(t, r[2].Fallback)

	chatCalls, _ := env.llm.calls()
	assert.Equal(t, 3, chatCalls)
	assert.Equal(t, 1, env.rec.fallbacks)
	assert.Equal(t, "primary", served.ServedBy.ConfigName)
}

func TestCardPrompts_StopsOnCancel(t *testing.T) {
	env := setup(t, Options{})
	env.llm.chat = []reply{textReply("prompt")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, seq, err := env.svc.CardPrompts(ctx, CardPromptsRequest{Cards: []structured.CardRecord{{Title: "A"}, {Title: "B"}, {Title: "C"}}})
	require.NoError(t, err)

	var got []CardPromptResult
	for r := range seq {
		got = append(got, r)
		cancel()
	}
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].PageNumber)

	chatCalls, _ := env.llm.calls()
	assert.Equal(t, 1, chatCalls)
}

func TestGenerateCardPrompts_Errors(t *testing.T) {
	env := setup(t, Options{})

	_, err := env.svc.GenerateCardPrompts(context.Background(), CardPromptsRequest{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.svc.GenerateCardPrompts(ctx, CardPromptsRequest{Cards: []structured.CardRecord{{Title: "A"}}})
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
	assert.Equal(t, http.StatusRequestTimeout, StatusOf(err))
}

// =============================================================================
// 🧪 出图 / 快速模式 / 翻译 / 连接测试
// =============================================================================

func TestGenerateImage(t *testing.T) {
	env := setup(t, Options{})
	env.llm.image = []reply{{http.StatusOK, `{"data":[{"url":"https://img/x.png"}]}`}}

	served, err := env.svc.GenerateImage(context.Background(), ImageRequest{Prompt: "a cat"})
	require.NoError(t, err)
	assert.Equal(t, "https://img/x.png", served.Data.URL)
	assert.Equal(t, "painter", served.ServedBy.ConfigName)
}

func TestGenerateImage_NoRetry(t *testing.T) {
	env := setup(t, Options{})
	env.llm.image = []reply{{http.StatusServiceUnavailable, `{"error":{"message":"busy"}}`}}

	_, err := env.svc.GenerateImage(context.Background(), ImageRequest{Prompt: "a cat"})

	assert.Equal(t, types.ErrProviderRequest, types.GetErrorCode(err))
	_, imageCalls := env.llm.calls()
	assert.Equal(t, 1, imageCalls)
	assert.Equal(t, []string{string(types.ErrProviderRequest)}, env.rec.operations[OpImage])
}

func TestGenerateImage_ConfigurationUnavailable(t *testing.T) {
	env := setup(t, Options{})
	require.NoError(t, env.store.DeleteProfile(context.Background(), env.image.ID))

	_, err := env.svc.GenerateImage(context.Background(), ImageRequest{Prompt: "a cat"})

	envl := Failure(err)
	assert.Equal(t, types.ErrConfigurationUnavailable, envl.ErrorKind)
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(err))
}

func TestGenerateQuickPrompts(t *testing.T) {
	env := setup(t, Options{})
	env.llm.chat = []reply{
		textReply("not yet"),
		textReply(`{"prompts":[{"prompt":"p1","explain":"e1"},"p2","p3"]}`),
	}

	served, err := env.svc.GenerateQuickPrompts(context.Background(), QuickPromptsRequest{Topic: "秋天", Count: 2})
	require.NoError(t, err)

	assert.Equal(t, []structured.PromptItem{{Prompt: "p1", Explain: "e1"}, {Prompt: "p2"}}, served.Data.Prompts)
	chatCalls, _ := env.llm.calls()
	assert.Equal(t, 2, chatCalls)
	assert.Contains(t, env.llm.message(1), "数量：2")

	_, err = env.svc.GenerateQuickPrompts(context.Background(), QuickPromptsRequest{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestTranslate(t *testing.T) {
	env := setup(t, Options{})
	env.llm.chat = []reply{textReply("  Hello world  ")}

	served, err := env.svc.Translate(context.Background(), TranslateRequest{Text: "你好世界"})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", served.Data.Text)
	assert.Equal(t, "English", served.Data.TargetLanguage)
	assert.True(t, strings.HasPrefix(env.llm.message(1), "目标语言：English"))
}

func TestTestConnection(t *testing.T) {
	env := setup(t, Options{})
	env.llm.chat = []reply{textReply("OK")}
	env.llm.image = []reply{{http.StatusOK, `{"data":[{"url":"https://img/t.png"}]}`}}

	served, err := env.svc.TestConnection(context.Background(), env.text)
	require.NoError(t, err)
	assert.Equal(t, "OK", served.Data.Sample)
	assert.Equal(t, types.CapabilityText, served.Data.Capability)

	served, err = env.svc.TestConnection(context.Background(), env.image)
	require.NoError(t, err)
	assert.Equal(t, "https://img/t.png", served.Data.Sample)

	// 禁用的配置同样直接测试，不回退
	env.text.Enabled = false
	env.llm.chat = []reply{{http.StatusUnauthorized, `{"error":{"message":"invalid key"}}`}}
	_, err = env.svc.TestConnection(context.Background(), env.text)
	assert.Equal(t, types.ErrProviderRequest, types.GetErrorCode(err))
}

func TestFailure_PlainError(t *testing.T) {
	envl := Failure(io.ErrUnexpectedEOF)
	assert.Equal(t, types.ErrInternalError, envl.ErrorKind)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(io.ErrUnexpectedEOF))
}
