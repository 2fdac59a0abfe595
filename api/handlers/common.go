package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/handoff"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response is a type alias for api.Response, the canonical envelope.
type Response = api.Response

// ErrorInfo is a type alias for api.ErrorInfo, the canonical error structure.
type ErrorInfo = api.ErrorInfo

// maxBodyBytes 是请求体上限，挡掉恶意的超大请求
const maxBodyBytes = 1 << 20 // 1 MB

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 带安全响应头序列化 data
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 响应头已写出，编码失败只能丢弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写出成功包络
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Timestamp: time.Now()})
}

// writeFailure 写出失败包络。
func writeFailure(w http.ResponseWriter, info *ErrorInfo) {
	WriteJSON(w, info.HTTPStatus, Response{Success: false, Error: info, Timestamp: time.Now()})
}

// WriteError 按 handoff 错误分类映射 HTTP 状态码并写出错误包络
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	kind := handoff.KindOf(err)
	info := &ErrorInfo{
		Code:       string(kind),
		Message:    err.Error(),
		Retryable:  kindRetryable(kind),
		HTTPStatus: mapKindToHTTPStatus(kind),
	}
	if info.Code == "" {
		info.Code = "INTERNAL_ERROR"
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("code", info.Code),
			zap.Int("status", info.HTTPStatus),
			zap.Error(err),
		)
	}
	writeFailure(w, info)
}

// WriteErrorMessage 写出给定状态码与文案的错误包络
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", code),
			zap.String("message", message),
			zap.Int("status", status),
		)
	}
	writeFailure(w, &ErrorInfo{Code: code, Message: message, HTTPStatus: status})
}

// =============================================================================
// 🔄 错误分类到 HTTP 状态码映射
// =============================================================================

// kindStatus 把交接错误类别映射到状态码，未列出的按 500 处理。
var kindStatus = map[handoff.ErrorKind]int{
	handoff.KindRejectedInitiation:  http.StatusBadRequest,
	handoff.KindUnknownHandoff:      http.StatusNotFound,
	handoff.KindVerificationFailure: http.StatusConflict,
	handoff.KindTransferFailure:     http.StatusBadGateway,
	handoff.KindPersistenceDegraded: http.StatusServiceUnavailable,
}

func mapKindToHTTPStatus(kind handoff.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// kindRetryable 标记调用方重试有意义的错误类别。
func kindRetryable(kind handoff.ErrorKind) bool {
	return kind == handoff.KindTransferFailure || kind == handoff.KindPersistenceDegraded
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 以严格模式解码请求体，未知字段与超限都会拒绝
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) error {
	if r.Body == nil {
		err := errors.New("request body is empty")
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(dst)
	if err == nil {
		return nil
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "request body too large", logger)
	} else {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", logger)
	}
	return err
}

// ValidateContentType 要求请求声明 application/json
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == "application/json" {
		return true
	}
	WriteErrorMessage(w, http.StatusUnsupportedMediaType, "INVALID_REQUEST", "Content-Type must be application/json", logger)
	return false
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 并记录写出的状态码
type ResponseWriter struct {
	http.ResponseWriter

	// StatusCode 是第一次 WriteHeader 记下的状态码，默认 200
	StatusCode int
	// Written 表示响应头是否已经写出
	Written bool
}

// NewResponseWriter 包装 w，状态码初始为 200
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 只记录并转发第一次写出的状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.Written {
		return
	}
	rw.StatusCode = code
	rw.Written = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write 在需要时先补写默认的 200 响应头
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
