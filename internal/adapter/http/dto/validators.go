package dto

import (
	"regexp"
	"strings"

	"webcash-wallet/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]{1,128}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("webcash_amount", validateWebcashAmount)
		_ = v.RegisterValidation("webcash_secret", validateWebcashSecret)
	}
}

// ValidIdempotencyKey allows 1 to 128 alphanumeric, underscore, dash and
// dot characters.
func ValidIdempotencyKey(key string) bool {
	return safeStringRe.MatchString(key)
}

// validateWebcashAmount accepts a positive webcash decimal.
func validateWebcashAmount(fl validator.FieldLevel) bool {
	a, err := domain.ParseWebcash(fl.Field().String())
	return err == nil && a > 0
}

// validateWebcashSecret checks the shape of a secret token without copying
// the secret anywhere.
func validateWebcashSecret(fl validator.FieldLevel) bool {
	amount, kind, secret, ok := splitToken(fl.Field().String())
	if !ok || kind != "secret" || secret == "" {
		return false
	}
	a, err := domain.ParseWebcash(amount)
	return err == nil && a > 0
}

func splitToken(s string) (amount, kind, value string, ok bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "e") {
		return "", "", "", false
	}
	return parts[0][1:], parts[1], parts[2], true
}
