package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/ports/mocks"
	"webcash-wallet/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error_code"]
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		seen = c.GetString(CtxRequestID)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
}

func TestRequestID_ReusesClientID(t *testing.T) {
	const id = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"

	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, id)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid\nforged")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotContains(t, w.Header().Get(HeaderRequestID), "forged")
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	for _, header := range []string{"", "Bearer ", "Basic abc", "bearer abc"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Equal(t, "AUTH_003", errorCode(t, w))
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("bad_token").Return(nil, assert.AnError)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{
		Subject:   "operator",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	var subject string
	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		subject = c.GetString(CtxSubject)
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "operator", subject)
}

func TestRequireTerms(t *testing.T) {
	tests := []struct {
		name     string
		accepted bool
		err      error
		wantCode int
		wantErr  string
	}{
		{"accepted", true, nil, http.StatusOK, ""},
		{"not accepted", false, nil, http.StatusPreconditionFailed, "VAL_005"},
		{"wallet closed", false, apperror.ErrWalletClosed(), http.StatusServiceUnavailable, "LOCK_002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			walletSvc := mocks.NewMockWalletService(ctrl)
			walletSvc.EXPECT().HaveAcceptedTerms(gomock.Any()).Return(tt.accepted, tt.err)

			reached := false
			router := gin.New()
			router.POST("/replace", RequireTerms(walletSvc), func(c *gin.Context) {
				reached = true
				c.JSON(200, gin.H{"ok": true})
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/replace", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr == "", reached)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errorCode(t, w))
			}
		})
	}
}

func TestRecovery_PanicRecovered(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_001", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "something went wrong")
}
