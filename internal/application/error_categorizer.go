package application

import (
	"context"
	"errors"
	"net/http"

	"github.com/clearroute/payment-core/internal/domain"
)

// ErrorCategory represents the nature of an error for retry logic
type ErrorCategory string

const (
	CategoryTransient    ErrorCategory = "TRANSIENT"
	CategoryPermanent    ErrorCategory = "PERMANENT"
	CategoryBusinessRule ErrorCategory = "BUSINESS_RULE"
	CategoryClientError  ErrorCategory = "CLIENT_ERROR"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeBankUnavailable, domain.ErrCodeConcurrency:
			return CategoryTransient
		case domain.ErrCodeCardDeclined:
			return CategoryPermanent
		case domain.ErrCodeInvalidState,
			domain.ErrCodeInvalidTransition,
			domain.ErrCodeInvalidCaptureAmount,
			domain.ErrCodeInvalidRefundAmount,
			domain.ErrCodeAuthorizationExpired:
			return CategoryBusinessRule
		case domain.ErrCodeValidation,
			domain.ErrCodeKeyReuse,
			domain.ErrCodeTokenNotFound,
			domain.ErrCodeTokenExpired,
			domain.ErrCodeTokenAlreadyUsed,
			domain.ErrCodeTokenRevoked,
			domain.ErrCodeAuthorizationNotFound:
			return CategoryClientError
		}
	}

	if errors.Is(err, ErrConflict) {
		return CategoryTransient
	}

	// Default: transient, the safe side for replay-based recovery.
	return CategoryTransient
}

// IsRetryable reports whether a caller should replay the operation with
// the same idempotency key.
func IsRetryable(err error) bool {
	return CategorizeError(err) == CategoryTransient
}

// ToHTTPStatus maps error to appropriate HTTP status code
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeValidation, domain.ErrCodeKeyReuse:
			return http.StatusBadRequest
		case domain.ErrCodeTokenNotFound, domain.ErrCodeAuthorizationNotFound:
			return http.StatusNotFound
		case domain.ErrCodeTokenExpired,
			domain.ErrCodeTokenAlreadyUsed,
			domain.ErrCodeTokenRevoked,
			domain.ErrCodeInvalidState,
			domain.ErrCodeInvalidTransition,
			domain.ErrCodeInvalidCaptureAmount,
			domain.ErrCodeInvalidRefundAmount,
			domain.ErrCodeAuthorizationExpired:
			return http.StatusConflict
		case domain.ErrCodeConcurrency:
			return http.StatusTooManyRequests
		case domain.ErrCodeCardDeclined:
			return http.StatusPaymentRequired
		case domain.ErrCodeBankUnavailable:
			return http.StatusServiceUnavailable
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}

	return http.StatusInternalServerError
}

// ToErrorCode extracts the stable machine-readable code for API responses
func ToErrorCode(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}

	return domain.ErrCodeInternal
}
