package modelscope

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/llm/poller"
	"github.com/BaSui01/cardflow/llm/providers"
	"github.com/BaSui01/cardflow/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeModelScope struct {
	submitResp string
	taskResps  []string
	submits    atomic.Int32
	polls      atomic.Int32
	asyncHdr   string
	taskHdr    string
	submitted  map[string]any
}

func (f *fakeModelScope) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		f.asyncHdr = r.Header.Get("X-ModelScope-Async-Mode")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &f.submitted)
		_, _ = w.Write([]byte(f.submitResp))
	})
	mux.HandleFunc("GET /v1/tasks/ms-1", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.polls.Add(1))
		f.taskHdr = r.Header.Get("X-ModelScope-Task-Type")
		if n > len(f.taskResps) {
			n = len(f.taskResps)
		}
		_, _ = w.Write([]byte(f.taskResps[n-1]))
	})
	return mux
}

func setup(t *testing.T, f *fakeModelScope, maxAttempts int) (*Provider, *types.BackendConfig) {
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	pl := poller.New(time.Millisecond, maxAttempts, zap.NewNop())
	p := New(Config{Options: providers.Options{HTTPClient: srv.Client()}}, pl, zap.NewNop())
	return p, &types.BackendConfig{
		Name:       "ms",
		BaseURL:    srv.URL,
		APIKey:     "ms-token",
		Model:      "MusePublic/489_ckpt_FLUX_1",
		Family:     types.FamilyModelScope,
		Capability: types.CapabilityImage,
	}
}

func TestGenerateImage_SyncResult(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want string
	}{
		{"data url", `{"data":[{"url":"https://ms/sync-a.png"}]}`, "https://ms/sync-a.png"},
		{"output images", `{"output_images":["https://ms/sync-b.png"],"request_id":"r"}`, "https://ms/sync-b.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeModelScope{submitResp: tt.resp}
			p, cfg := setup(t, f, 60)

			got, err := p.GenerateImage(context.Background(), cfg, &providers.ImageRequest{Prompt: "cat"})

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, int32(0), f.polls.Load())
			assert.Equal(t, "true", f.asyncHdr)
		})
	}
}

func TestGenerateImage_AsyncPoll(t *testing.T) {
	f := &fakeModelScope{
		submitResp: `{"task_id":"ms-1","request_id":"r"}`,
		taskResps: []string{
			`{"task_status":"PENDING"}`,
			`{"task_status":"RUNNING"}`,
			`{"task_status":"SUCCEED","output_images":["https://ms/async.png"]}`,
		},
	}
	p, cfg := setup(t, f, 60)
	cfg.BaseURL += "/v1/"

	got, err := p.GenerateImage(context.Background(), cfg, &providers.ImageRequest{Prompt: "cat", Size: "1024x1024", NegativePrompt: "text"})

	require.NoError(t, err)
	assert.Equal(t, "https://ms/async.png", got)
	assert.Equal(t, int32(3), f.polls.Load())
	assert.Equal(t, "image_generation", f.taskHdr)
	assert.Equal(t, "MusePublic/489_ckpt_FLUX_1", f.submitted["model"])
	assert.Equal(t, "cat", f.submitted["prompt"])
	assert.Equal(t, "text", f.submitted["negative_prompt"])
}

func TestGenerateImage_AsyncFailed(t *testing.T) {
	f := &fakeModelScope{
		submitResp: `{"task_id":"ms-1"}`,
		taskResps:  []string{`{"task_status":"FAILED","errors":{"message":"prompt rejected by safety check"}}`},
	}
	p, cfg := setup(t, f, 60)

	_, err := p.GenerateImage(context.Background(), cfg, &providers.ImageRequest{Prompt: "x"})

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrAsyncTaskFailed, e.Code)
	assert.Contains(t, e.Message, "safety check")
	assert.Equal(t, int32(1), f.polls.Load())
}

func TestGenerateImage_AsyncTimeout(t *testing.T) {
	f := &fakeModelScope{
		submitResp: `{"task_id":"ms-1"}`,
		taskResps:  []string{`{"task_status":"RUNNING"}`},
	}
	p, cfg := setup(t, f, 4)

	_, err := p.GenerateImage(context.Background(), cfg, &providers.ImageRequest{Prompt: "x"})

	assert.Equal(t, types.ErrAsyncTaskTimeout, types.GetErrorCode(err))
	assert.Equal(t, int32(4), f.polls.Load())
}

func TestGenerateImage_NoTaskID(t *testing.T) {
	f := &fakeModelScope{submitResp: `{"message":"model not found"}`}
	p, cfg := setup(t, f, 60)

	_, err := p.GenerateImage(context.Background(), cfg, &providers.ImageRequest{Prompt: "x"})

	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrProviderResponseFormat, e.Code)
	assert.Contains(t, e.Detail, "model not found")
}

func TestGenerateImage_CancelledWhilePolling(t *testing.T) {
	f := &fakeModelScope{
		submitResp: `{"task_id":"ms-1"}`,
		taskResps:  []string{`{"task_status":"RUNNING"}`},
	}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	p := New(Config{Options: providers.Options{HTTPClient: srv.Client()}}, poller.New(20*time.Millisecond, 60, nil), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.GenerateImage(ctx, &types.BackendConfig{BaseURL: srv.URL, Model: "m"}, &providers.ImageRequest{Prompt: "x"})
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
}

func TestCompleteText_Unsupported(t *testing.T) {
	_, err := New(Config{}, nil, nil).CompleteText(context.Background(), &types.BackendConfig{}, &providers.TextRequest{})
	assert.Equal(t, types.ErrUnsupportedCapability, types.GetErrorCode(err))
}

func TestAPIBase(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, apiBase(""))
	assert.Equal(t, "https://api-inference.modelscope.cn", apiBase("https://api-inference.modelscope.cn/v1/"))
	assert.Equal(t, "http://proxy/ms", apiBase("http://proxy/ms/"))
}
