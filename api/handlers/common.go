package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/internal/ctxkeys"
	"github.com/BaSui01/cardflow/orchestrator"
	"github.com/BaSui01/cardflow/types"
)

// maxBodyBytes 请求体上限；sourceText 已按字符截断，这里只防止滥用
const maxBodyBytes = 4 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool                   `json:"success"`
	Data      any                    `json:"data,omitempty"`
	ServedBy  *orchestrator.ServedBy `json:"servedBy,omitempty"`
	ErrorKind types.ErrorCode        `json:"errorKind,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"requestId,omitempty"`
}

func newResponse(r *http.Request, env orchestrator.Envelope) Response {
	resp := Response{
		Success:   env.Success,
		Data:      env.Data,
		ServedBy:  env.ServedBy,
		ErrorKind: env.ErrorKind,
		Message:   env.Message,
		Detail:    env.Detail,
		Timestamp: time.Now(),
	}
	if r != nil {
		resp.RequestID, _ = ctxkeys.RequestID(r.Context())
	}
	return resp
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 编码失败时响应头已写出，无法补救
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, newResponse(r, orchestrator.Envelope{Success: true, Data: data}))
}

// WriteResult 写入编排操作结果
func WriteResult[T any](w http.ResponseWriter, r *http.Request, served *orchestrator.Served[T], err error, logger *zap.Logger) {
	if err != nil {
		WriteError(w, r, err, logger)
		return
	}
	WriteJSON(w, http.StatusOK, newResponse(r, orchestrator.Respond(served, nil)))
}

// WriteError 写入错误响应；状态码由错误码决定
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	status := orchestrator.StatusOf(err)
	env := orchestrator.Failure(err)

	if logger != nil {
		fields := []zap.Field{
			zap.String("error_kind", string(env.ErrorKind)),
			zap.String("message", env.Message),
			zap.Int("status", status),
		}
		if r != nil {
			fields = append(fields, zap.String("path", r.URL.Path))
			if id, ok := ctxkeys.RequestID(r.Context()); ok {
				fields = append(fields, zap.String("request_id", id))
			}
		}
		if e, ok := types.AsError(err); ok && e.Cause != nil {
			fields = append(fields, zap.NamedError("cause", e.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, status, newResponse(r, env))
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message), logger)
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体，失败时已写出错误响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, r, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		apiErr := types.NewError(types.ErrInvalidRequest, msg).WithDetail(err.Error()).WithCause(err)
		WriteError(w, r, apiErr, logger)
		return apiErr
	}

	return nil
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与响应大小
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Flush 透传流式输出
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap 供 http.ResponseController 访问底层 Writer
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
