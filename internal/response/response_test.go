package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"n": 1}) })
	r.GET("/fail", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"viewport": "too wide"})
	})
	return r
}

func serve(r http.Handler, path, reqID string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if reqID != "" {
		req.Header.Set(HeaderRequestID, reqID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body Response
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRequestIDIsEchoed(t *testing.T) {
	w, body := serve(newEngine(), "/ok", "trace-123")
	assert.Equal(t, "trace-123", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "trace-123", body.Metadata.RequestID)
	assert.Nil(t, body.Error)
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	for _, bad := range []string{"has space", strings.Repeat("x", 65)} {
		w, body := serve(newEngine(), "/ok", bad)
		got := w.Header().Get(HeaderRequestID)
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 36)
		assert.Equal(t, got, body.Metadata.RequestID)
	}
}

func TestFailWithFieldsEnvelope(t *testing.T) {
	w, body := serve(newEngine(), "/fail", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrValidation, body.Error.Code)
	assert.Equal(t, GetMessage(ErrValidation), body.Error.Message)
	assert.Equal(t, "too wide", body.Error.Fields["viewport"])
	assert.Nil(t, body.Data)
}
