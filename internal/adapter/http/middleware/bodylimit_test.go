package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoRouter(limit int64) *gin.Engine {
	r := gin.New()
	r.Use(MaxBodySize(limit))
	r.POST("/test", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "too large")
			return
		}
		c.String(http.StatusOK, string(b))
	})
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestMaxBodySize(t *testing.T) {
	tests := []struct {
		name     string
		limit    int64
		body     string
		wantCode int
	}{
		{"allowed", 1024, "hello world", http.StatusOK},
		{"exact limit", 5, "12345", http.StatusOK},
		{"exceeded", 16, strings.Repeat("A", 100), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte(tt.body)))
			echoRouter(tt.limit).ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestMaxBodySize_NilBody(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	echoRouter(1024).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
