package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Kind groups error codes by how callers are expected to react.
type Kind string

const (
	KindContention Kind = "LOCK"
	KindConflict   Kind = "CONFLICT"
	KindValidation Kind = "VAL"
	KindStorage    Kind = "STORE"
	KindNotFound   Kind = "NF"
	KindAuth       Kind = "AUTH"
	KindRate       Kind = "RATE"
	KindSystem     Kind = "SYS"
)

// KindOf returns the kind of the first AppError in err's chain, or
// KindSystem if there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return KindSystem
	}
	prefix, _, _ := strings.Cut(appErr.Code, "_")
	return Kind(prefix)
}

// Recoverable reports whether the operation was rejected without effect and
// may be retried with corrected input.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindValidation, KindNotFound:
		return true
	default:
		return false
	}
}

// ---- Contention (LOCK) ----

func ErrWalletInUse(err error) *AppError {
	return Wrap("LOCK_001", "Wallet already in use by another process", http.StatusLocked, err)
}

func ErrWalletClosed() *AppError {
	return New("LOCK_002", "Wallet is closed", http.StatusServiceUnavailable)
}

// ---- Conflict (CONFLICT) ----

func ErrAlreadySpent(outputID int64) *AppError {
	return New("CONFLICT_001", fmt.Sprintf("Output %d is already spent", outputID), http.StatusConflict)
}

func ErrTokenAlreadyKnown() *AppError {
	return New("CONFLICT_002", "Webcash token already known to this wallet", http.StatusConflict)
}

func ErrUnknownInput(outputID int64) *AppError {
	return New("CONFLICT_003", fmt.Sprintf("Output %d is not tracked by this wallet", outputID), http.StatusConflict)
}

func ErrInputMismatch(outputID int64) *AppError {
	return New("CONFLICT_004", fmt.Sprintf("Output %d does not match the stored record", outputID), http.StatusConflict)
}

func ErrRequestInFlight() *AppError {
	return New("CONFLICT_005", "A request with this idempotency key is still in progress", http.StatusConflict)
}

// ---- Validation (VAL) ----

func ErrInvalidAmount(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrValueNotConserved() *AppError {
	return New("VAL_002", "Input and output amounts differ", http.StatusUnprocessableEntity)
}

func ErrAmountOverflow() *AppError {
	return New("VAL_003", "Amount arithmetic overflow", http.StatusUnprocessableEntity)
}

func ErrInvalidToken(message string) *AppError {
	return New("VAL_004", message, http.StatusBadRequest)
}

func ErrTermsNotAccepted() *AppError {
	return New("VAL_005", "Terms of service have not been accepted", http.StatusPreconditionFailed)
}

func ErrBodyTooLarge() *AppError {
	return New("VAL_006", "Request body too large", http.StatusRequestEntityTooLarge)
}

// Validation returns a VAL_000 request validation error.
func Validation(message string) *AppError {
	return New("VAL_000", message, http.StatusBadRequest)
}

// ---- Storage (STORE) ----

func ErrStorage(err error) *AppError {
	return Wrap("STORE_001", "Wallet storage failure", http.StatusInternalServerError, err)
}

func ErrSchemaTooNew(stored, supported uint32) *AppError {
	return New("STORE_002",
		fmt.Sprintf("Wallet schema version %d is newer than supported version %d", stored, supported),
		http.StatusInternalServerError)
}

func ErrStorageBusy(err error) *AppError {
	return Wrap("STORE_003", "Wallet storage busy", http.StatusServiceUnavailable, err)
}

func ErrCorruptRecord(err error) *AppError {
	return Wrap("STORE_004", "Wallet record is corrupt", http.StatusInternalServerError, err)
}

// ---- Not found (NF) ----

func ErrNotFound(entity string) *AppError {
	return New("NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUnauthorized() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
