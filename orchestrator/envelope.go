package orchestrator

import (
	"net/http"

	"github.com/BaSui01/cardflow/types"
)

// Envelope 面向调用方的统一结果
type Envelope struct {
	Success   bool            `json:"success"`
	Data      any             `json:"data,omitempty"`
	ServedBy  *ServedBy       `json:"servedBy,omitempty"`
	ErrorKind types.ErrorCode `json:"errorKind,omitempty"`
	Message   string          `json:"message,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// Respond builds the envelope for an operation result.
func Respond[T any](served *Served[T], err error) Envelope {
	if err != nil {
		return Failure(err)
	}
	if served == nil {
		return Envelope{Success: true}
	}
	by := served.ServedBy
	return Envelope{Success: true, Data: served.Data, ServedBy: &by}
}

// Failure 将错误转换为失败信封；非结构化错误归为 INTERNAL_ERROR
func Failure(err error) Envelope {
	e, ok := types.AsError(err)
	if !ok {
		return Envelope{ErrorKind: types.ErrInternalError, Message: err.Error()}
	}
	return Envelope{ErrorKind: e.Code, Message: e.Message, Detail: e.Detail}
}

// StatusOf 调用方应看到的 HTTP 状态码；上游状态只保留在 Detail 中
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	code := types.GetErrorCode(err)
	if code == "" {
		return http.StatusInternalServerError
	}
	return types.HTTPStatusOf(code)
}
