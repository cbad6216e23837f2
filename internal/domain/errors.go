package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeTokenNotFound         = "TOKEN_NOT_FOUND"
	ErrCodeTokenExpired          = "TOKEN_EXPIRED"
	ErrCodeTokenAlreadyUsed      = "TOKEN_ALREADY_USED"
	ErrCodeTokenRevoked          = "TOKEN_REVOKED"
	ErrCodeKeyReuse              = "KEY_REUSE"
	ErrCodeConcurrency           = "CONCURRENCY"
	ErrCodeInvalidState          = "INVALID_STATE"
	ErrCodeInvalidTransition     = "INVALID_TRANSITION"
	ErrCodeInvalidCaptureAmount  = "INVALID_CAPTURE_AMOUNT"
	ErrCodeInvalidRefundAmount   = "INVALID_REFUND_AMOUNT"
	ErrCodeAuthorizationExpired  = "AUTHORIZATION_EXPIRED"
	ErrCodeAuthorizationNotFound = "AUTHORIZATION_NOT_FOUND"
	ErrCodeBankUnavailable       = "BANK_UNAVAILABLE"
	ErrCodeCardDeclined          = "CARD_DECLINED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

func NewValidationError(msg string) *DomainError {
	return &DomainError{Code: ErrCodeValidation, Message: msg}
}

func NewTokenNotFoundError(tokenID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeTokenNotFound,
		Message: fmt.Sprintf("token %s not found", MaskTokenID(tokenID)),
	}
}

func NewTokenExpiredError(tokenID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeTokenExpired,
		Message: fmt.Sprintf("token %s has expired", MaskTokenID(tokenID)),
	}
}

func NewTokenAlreadyUsedError(tokenID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeTokenAlreadyUsed,
		Message: fmt.Sprintf("one-time token %s was already used", MaskTokenID(tokenID)),
	}
}

func NewTokenRevokedError(tokenID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeTokenRevoked,
		Message: fmt.Sprintf("token %s has been revoked", MaskTokenID(tokenID)),
	}
}

func NewKeyReuseError(key string) *DomainError {
	return &DomainError{
		Code:    ErrCodeKeyReuse,
		Message: fmt.Sprintf("idempotency key %s reused with different request parameters", key),
	}
}

func NewConcurrencyError(key string) *DomainError {
	return &DomainError{
		Code:    ErrCodeConcurrency,
		Message: fmt.Sprintf("another request with idempotency key %s is in flight", key),
	}
}

func NewInvalidStateError(current, expected string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("invalid state: authorization is %s, expected %s", current, expected),
	}
}

func NewInvalidTransitionError(from, to AuthorizationStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewInvalidCaptureAmountError(requested, remaining int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidCaptureAmount,
		Message: fmt.Sprintf("capture amount %d exceeds remaining authorized amount %d", requested, remaining),
	}
}

func NewInvalidRefundAmountError(requested, remaining int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidRefundAmount,
		Message: fmt.Sprintf("refund amount %d exceeds remaining refundable amount %d", requested, remaining),
	}
}

func NewAuthorizationExpiredError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeAuthorizationExpired,
		Message: fmt.Sprintf("authorization %s has expired", id),
	}
}

func NewAuthorizationNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeAuthorizationNotFound,
		Message: fmt.Sprintf("authorization %s not found", id),
	}
}

func NewBankUnavailableError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeBankUnavailable,
		Message: "bank decision service unavailable, retry with the same idempotency key",
		Err:     err,
	}
}

// NewCardDeclinedError renders every decline with the same caller-facing
// message. The true decline reason stays in internal logs only.
func NewCardDeclinedError() *DomainError {
	return &DomainError{
		Code:    ErrCodeCardDeclined,
		Message: "Your card was declined. Please try a different card.",
	}
}

func NewInternalError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "an internal error occurred",
		Err:     err,
	}
}

// ErrorByCode rebuilds a stored terminal error from its code so an
// idempotent replay returns the same outcome as the original call.
func ErrorByCode(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// MaskTokenID keeps only the prefix and last four characters of a token id
// so full tokens never land in error messages or logs.
func MaskTokenID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:4] + "..." + id[len(id)-4:]
}
