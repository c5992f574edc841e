package middleware

import (
	"net/http"
	"strings"
	"time"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/pkg/apperror"
	"webcash-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxRequestID = "request_id"
	CtxSubject   = "subject"
)

// RequestID tags each request with an id, reusing a well-formed client id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// JWTAuth creates a middleware that validates bearer tokens.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenStr == "" {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("rejected bearer token")
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		c.Set(CtxSubject, claims.Subject)
		c.Next()
	}
}

// RequireTerms refuses value-moving requests until some terms of service
// have been accepted.
func RequireTerms(walletSvc ports.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		accepted, err := walletSvc.HaveAcceptedTerms(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !accepted {
			response.Error(c, apperror.ErrTermsNotAccepted())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString(CtxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("request_id", c.GetString(CtxRequestID)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				response.Error(c, apperror.InternalError(nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}
