package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/internal/ctxkeys"
	"github.com/BaSui01/cardflow/orchestrator"
	"github.com/BaSui01/cardflow/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Empty(t, resp.ErrorKind)
}

func TestWriteResult(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	w := httptest.NewRecorder()

	served := &orchestrator.Served[string]{
		Data:     "hi",
		ServedBy: orchestrator.ServedBy{ConfigID: 3, ConfigName: "primary", Model: "gpt-4o", Provider: "openai-compatible"},
	}
	WriteResult(w, r, served, nil, zap.NewNop())

	assert.Equal(t, http.StatusOK, w.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "hi", raw["data"])
	assert.Equal(t, "primary", raw["servedBy"].(map[string]any)["configName"])
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   types.ErrorCode
	}{
		{"configuration unavailable", types.NewError(types.ErrConfigurationUnavailable, "no image backend"), http.StatusServiceUnavailable, types.ErrConfigurationUnavailable},
		{"provider request keeps gateway status", types.NewError(types.ErrProviderRequest, "bad key").WithHTTPStatus(http.StatusUnauthorized), http.StatusBadGateway, types.ErrProviderRequest},
		{"recovery parse", types.NewError(types.ErrRecoveryParse, orchestrator.ParseExhaustedMessage).WithDetail("unexpected EOF"), http.StatusUnprocessableEntity, types.ErrRecoveryParse},
		{"async timeout", types.NewError(types.ErrAsyncTaskTimeout, "timeout"), http.StatusGatewayTimeout, types.ErrAsyncTaskTimeout},
		{"plain error", assert.AnError, http.StatusInternalServerError, types.ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantKind, resp.ErrorKind)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestWriteError_Detail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, types.NewError(types.ErrRecoveryParse, "x").WithDetail("line 3"), nil)
	assert.Equal(t, "line 3", decodeResponse(t, w).Detail)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"malformed", `{"name":`, true},
		{"empty", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r *http.Request
			if tt.body == "" {
				r = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
			} else {
				r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			}
			w := httptest.NewRecorder()
			var dst payload

			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, types.ErrInvalidRequest, decodeResponse(t, w).ErrorKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", dst.Name)
		})
	}
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	big := `{"name":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	w := httptest.NewRecorder()

	var dst map[string]string
	err := DecodeJSONBody(w, r, &dst, zap.NewNop())

	require.Error(t, err)
	assert.Equal(t, "request body too large", decodeResponse(t, w).Message)
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, int64(5), rw.Bytes)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, rec, rw.Unwrap())
}
