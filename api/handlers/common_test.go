package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/agentrelay/handoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 响应辅助与请求校验测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	t.Run("object with headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"message": "hello"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
	})

	t.Run("array with explicit status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusAccepted, []int{1, 2, 3})

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.JSONEq(t, `[1,2,3]`, w.Body.String())
	})
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"key": "value"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantRetryable bool
	}{
		{
			name:       "rejected initiation",
			err:        &handoff.Error{Kind: handoff.KindRejectedInitiation, Op: "initiate", Message: "source agent unknown"},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(handoff.KindRejectedInitiation),
		},
		{
			name:       "unknown handoff",
			err:        &handoff.Error{Kind: handoff.KindUnknownHandoff, Op: "status", Message: "no such handoff"},
			wantStatus: http.StatusNotFound,
			wantCode:   string(handoff.KindUnknownHandoff),
		},
		{
			name:       "verification failure",
			err:        &handoff.Error{Kind: handoff.KindVerificationFailure, Op: "persist", Message: "tag mismatch"},
			wantStatus: http.StatusConflict,
			wantCode:   string(handoff.KindVerificationFailure),
		},
		{
			name:          "transfer failure",
			err:           &handoff.Error{Kind: handoff.KindTransferFailure, Op: "transfer", Message: "turn release failed"},
			wantStatus:    http.StatusBadGateway,
			wantCode:      string(handoff.KindTransferFailure),
			wantRetryable: true,
		},
		{
			name:          "persistence degraded",
			err:           &handoff.Error{Kind: handoff.KindPersistenceDegraded, Op: "persist", Message: "vault unavailable"},
			wantStatus:    http.StatusServiceUnavailable,
			wantCode:      string(handoff.KindPersistenceDegraded),
			wantRetryable: true,
		},
		{
			name:       "plain error",
			err:        errors.New("something broke"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tc.err, logger)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			require.NotNil(t, resp.Error)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
			assert.Equal(t, tc.wantRetryable, resp.Error.Retryable)
			assert.NotEmpty(t, resp.Error.Message)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
		})
	}
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusNotFound, "AGENT_NOT_FOUND", "agent not registered", zap.NewNop())

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "AGENT_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "agent not registered", resp.Error.Message)
	assert.Equal(t, http.StatusNotFound, resp.Error.HTTPStatus)
}

func TestDecodeJSONBody(t *testing.T) {
	logger := zap.NewNop()

	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	decode := func(t *testing.T, body string) (*httptest.ResponseRecorder, payload, error) {
		t.Helper()
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
		var result payload
		err := DecodeJSONBody(w, r, &result, logger)
		return w, result, err
	}

	t.Run("valid JSON", func(t *testing.T) {
		_, result, err := decode(t, `{"name":"test","value":123}`)
		require.NoError(t, err)
		assert.Equal(t, payload{Name: "test", Value: 123}, result)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		w, _, err := decode(t, `{"name":"test",}`)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, _, err := decode(t, `{"name":"test","unknown":"field"}`)
		require.Error(t, err)
	})
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	// 2 MB 的字符串字段，超出 1 MB 上限
	oversized := `{"name":"` + strings.Repeat("x", 2<<20) + `"}`

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(oversized))

	var result struct {
		Name string `json:"name"`
	}
	err := DecodeJSONBody(w, r, &result, zap.NewNop())

	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestValidateContentType(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name string
		ct   string
		ok   bool
	}{
		{"plain media type", "application/json", true},
		{"with charset", "application/json; charset=utf-8", true},
		{"uppercase charset", "application/json; charset=UTF-8", true},
		{"extra whitespace", "application/json;  charset=utf-8", true},
		{"text plain", "text/plain", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.ct)

			got := ValidateContentType(w, r, logger)
			require.Equal(t, tt.ok, got)
			if !tt.ok {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	assert.Equal(t, http.StatusOK, rw.StatusCode, "defaults to 200 before any write")
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	// 第二次 WriteHeader 不改变已记录的状态码
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.Equal(t, http.StatusCreated, rec.Code)

	n, err := rw.Write([]byte("body"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestResponseWriter_WriteBeforeHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, err := rw.Write([]byte("implicit ok"))
	require.NoError(t, err)

	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMapKindToHTTPStatus(t *testing.T) {
	tests := []struct {
		kind       handoff.ErrorKind
		wantStatus int
	}{
		{handoff.KindRejectedInitiation, http.StatusBadRequest},
		{handoff.KindUnknownHandoff, http.StatusNotFound},
		{handoff.KindVerificationFailure, http.StatusConflict},
		{handoff.KindTransferFailure, http.StatusBadGateway},
		{handoff.KindPersistenceDegraded, http.StatusServiceUnavailable},
		{handoff.ErrorKind("UNKNOWN_KIND"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapKindToHTTPStatus(tt.kind))
		})
	}
}
