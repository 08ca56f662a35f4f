package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uibridge/uibridge/api"
	"github.com/uibridge/uibridge/types"
)

func TestWriteErrorMapsCodes(t *testing.T) {
	tests := []struct {
		code    types.ErrorCode
		status  int
		errType string
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest, "invalid_request_error"},
		{types.ErrInvalidModel, http.StatusBadRequest, "invalid_request_error"},
		{types.ErrUnauthorized, http.StatusUnauthorized, "authentication_error"},
		{types.ErrRateLimited, http.StatusTooManyRequests, "rate_limit_error"},
		{types.ErrTimeout, http.StatusGatewayTimeout, "api_error"},
		{types.ErrCapacity, http.StatusServiceUnavailable, "api_error"},
		{types.ErrNoResponse, http.StatusInternalServerError, "api_error"},
		{types.ErrInternalError, http.StatusInternalServerError, "api_error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, types.NewError(tt.code, "boom"), zap.NewNop())

			assert.Equal(t, tt.status, rec.Code)

			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, tt.errType, resp.Error.Type)
			assert.Equal(t, "boom", resp.Error.Message)
		})
	}
}

func TestWriteErrorWrapsUntyped(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("secret detail"), zap.NewNop())

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
	// the raw cause stays out of the response
	assert.NotContains(t, resp.Error.Message, "secret")
}

func TestWriteErrorHonorsExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, types.NewError(types.ErrInvalidRequest, "nope").
		WithHTTPStatus(http.StatusNotFound), zap.NewNop())

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecodeJSONBodyToleratesUnknownFields(t *testing.T) {
	body := `{"model":"claude-2.1","messages":[],"frequency_penalty":0.5,"logit_bias":{}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	var dst api.ChatCompletionRequest
	err := DecodeJSONBody(rec, req, &dst, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "claude-2.1", dst.Model)
}

func TestDecodeJSONBodyRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	var dst api.ChatCompletionRequest
	err := DecodeJSONBody(rec, req, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // second write header is ignored
	n, err := rw.Write([]byte("short"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), rw.Bytes)
}

func TestResponseWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.True(t, rw.Written)
}
