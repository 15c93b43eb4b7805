package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/types"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type captured struct {
	path   string
	auth   string
	body   map[string]any
	method string
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		c.method = r.Method
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func ptr[T any](v T) *T { return &v }

func newProvider(srv *httptest.Server) *Provider {
	return New(Config{Options: providers.Options{HTTPClient: srv.Client(), ErrorBodyLimit: 200}}, zap.NewNop())
}

func backend(srv *httptest.Server, variant string) *types.BackendConfig {
	return &types.BackendConfig{
		ProfileID:  1,
		Name:       "test",
		BaseURL:    srv.URL + "/v1",
		APIKey:     "sk-test",
		Model:      "gpt-4o",
		Family:     types.FamilyOpenAICompatible,
		Variant:    variant,
		Capability: types.CapabilityUniversal,
	}
}

// ---------------------------------------------------------------------------
// CompleteText
// ---------------------------------------------------------------------------

func TestCompleteText_Success(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"total_tokens":5}}`)
	p := newProvider(srv)

	text, err := p.CompleteText(context.Background(), backend(srv, ""), &providers.TextRequest{
		Messages:    []types.Message{types.NewSystemMessage("sys"), types.NewUserMessage("hi")},
		MaxTokens:   64,
		Temperature: ptr(float32(0.5)),
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "Bearer sk-test", c.auth)
	assert.Equal(t, "gpt-4o", c.body["model"])
	assert.Equal(t, float64(64), c.body["max_tokens"])
	assert.Equal(t, 0.5, c.body["temperature"])
	msgs, ok := c.body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestCompleteText_Temperature(t *testing.T) {
	tests := []struct {
		name    string
		temp    *float32
		want    any
		present bool
	}{
		{"explicit zero is sent", ptr(float32(0)), float64(0), true},
		{"unset is omitted", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := newServer(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)
			_, err := newProvider(srv).CompleteText(context.Background(), backend(srv, ""), &providers.TextRequest{Temperature: tt.temp})
			require.NoError(t, err)

			got, ok := c.body["temperature"]
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompleteText_ResponseFormat(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"null content", `{"choices":[{"message":{"role":"assistant","content":null}}]}`},
		{"no choices", `{"choices":[]}`},
		{"not json", `<html>gateway</html>`},
		{"error in 200 body", `{"error":{"message":"model overloaded"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, http.StatusOK, tt.body)
			_, err := newProvider(srv).CompleteText(context.Background(), backend(srv, ""), &providers.TextRequest{})
			assert.Equal(t, types.ErrProviderResponseFormat, types.GetErrorCode(err))
		})
	}
}

func TestCompleteText_HTTPError(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	_, err := newProvider(srv).CompleteText(context.Background(), backend(srv, ""), &providers.TextRequest{})

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrProviderRequest, e.Code)
	assert.Equal(t, http.StatusUnauthorized, e.HTTPStatus)
	assert.Contains(t, e.Message, "Incorrect API key provided")
	assert.False(t, e.Retryable)
}

// ---------------------------------------------------------------------------
// GenerateImage
// ---------------------------------------------------------------------------

func TestGenerateImage_FieldTolerance(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantCode types.ErrorCode
	}{
		{"data url", `{"data":[{"url":"https://img/a.png"}]}`, "https://img/a.png", ""},
		{"images url", `{"images":[{"url":"https://img/b.png"}]}`, "https://img/b.png", ""},
		{"b64 json", `{"data":[{"b64_json":"AAAA"}]}`, "data:image/png;base64,AAAA", ""},
		{"url preferred over b64", `{"data":[{"url":"https://img/c.png","b64_json":"AAAA"}]}`, "https://img/c.png", ""},
		{"neither", `{"data":[{}]}`, "", types.ErrProviderResponseFormat},
		{"empty", `{}`, "", types.ErrProviderResponseFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, http.StatusOK, tt.response)
			got, err := newProvider(srv).GenerateImage(context.Background(), backend(srv, ""), &providers.ImageRequest{Prompt: "cat"})
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateImage_OpenAIDialectBody(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, `{"data":[{"url":"https://img/a.png"}]}`)
	cfg := backend(srv, "")
	cfg.Model = "dall-e-3"

	_, err := newProvider(srv).GenerateImage(context.Background(), cfg, &providers.ImageRequest{Prompt: "a cat", Size: "1792x1024"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/images/generations", c.path)
	assert.Equal(t, "dall-e-3", c.body["model"])
	assert.Equal(t, "1792x1024", c.body["size"])
	assert.Equal(t, "url", c.body["response_format"])
	assert.NotContains(t, c.body, "image_size")
}

func TestGenerateImage_SiliconFlowDialectBody(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, `{"images":[{"url":"https://img/sf.png"}]}`)
	cfg := backend(srv, "SiliconFlow")
	cfg.Model = "black-forest-labs/FLUX.1-schnell"

	got, err := newProvider(srv).GenerateImage(context.Background(), cfg, &providers.ImageRequest{Prompt: "a cat", NegativePrompt: "blurry"})
	require.NoError(t, err)
	assert.Equal(t, "https://img/sf.png", got)

	assert.Equal(t, "1024x1024", c.body["image_size"])
	assert.Equal(t, float64(20), c.body["num_inference_steps"])
	assert.Equal(t, "blurry", c.body["negative_prompt"])
	assert.NotContains(t, c.body, "size")
	assert.NotContains(t, c.body, "response_format")
}

func TestGenerateImage_UnknownVariantUsesOpenAI(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, DialectOpenAI, p.dialect("midjourney").Name())
	assert.Equal(t, DialectSiliconFlow, p.dialect("siliconflow").Name())
	assert.Equal(t, types.FamilyOpenAICompatible, p.Family())
}
