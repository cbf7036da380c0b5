package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a stable code and a
// client-safe message. Err carries internal detail for server logs only.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeUnknownField          = "UNKNOWN_FIELD"
	ErrCodeFilterTooLarge        = "FILTER_TOO_LARGE"
	ErrCodeFormulaTooComplex     = "FORMULA_TOO_COMPLEX"
	ErrCodeScheduleTooFrequent   = "SCHEDULE_TOO_FREQUENT"
	ErrCodeInvalidScheduleConfig = "INVALID_SCHEDULE_CONFIG"
	ErrCodePathTraversal         = "PATH_TRAVERSAL"
	ErrCodeExportGeneration      = "EXPORT_GENERATION_FAILED"
	ErrCodeDistributionChannel   = "DISTRIBUTION_CHANNEL_FAILED"
	ErrCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewUnknownFieldError reports a field id that does not resolve in the
// metadata catalog. Never retried.
func NewUnknownFieldError(fieldID int) error {
	return &DomainError{
		Code:    ErrCodeUnknownField,
		Message: fmt.Sprintf("field %d does not exist", fieldID),
	}
}

// NewFilterTooLargeError rejects an oversized IN/NOT IN payload
func NewFilterTooLargeError(got, max int) error {
	return &DomainError{
		Code:    ErrCodeFilterTooLarge,
		Message: fmt.Sprintf("filter has %d values, maximum is %d", got, max),
	}
}

// NewFormulaTooComplexError rejects a formula tree deeper than the limit
func NewFormulaTooComplexError(maxDepth int) error {
	return &DomainError{
		Code:    ErrCodeFormulaTooComplex,
		Message: fmt.Sprintf("formula exceeds maximum nesting depth of %d", maxDepth),
	}
}

// NewScheduleTooFrequentError rejects a cron whose soonest fires are closer
// than the minimum interval
func NewScheduleTooFrequentError(minSeconds int) error {
	return &DomainError{
		Code:    ErrCodeScheduleTooFrequent,
		Message: fmt.Sprintf("schedule fires more often than once every %d seconds", minSeconds),
	}
}

// NewInvalidScheduleConfigError reports a bad cron expression or timezone
// at configuration time
func NewInvalidScheduleConfigError(msg string, err error) error {
	return &DomainError{
		Code:    ErrCodeInvalidScheduleConfig,
		Message: msg,
		Err:     err,
	}
}

// NewPathTraversalError reports a resolved path escaping the export root.
// The offending path stays in Err for server logs and is never shown to
// the client.
func NewPathTraversalError(path string) error {
	return &DomainError{
		Code:    ErrCodePathTraversal,
		Message: "resolved path escapes the export root",
		Err:     fmt.Errorf("path outside root: %s", path),
	}
}

// NewExportGenerationError wraps a failure from the export generator;
// retryable up to the configured ceiling.
func NewExportGenerationError(err error) error {
	return &DomainError{
		Code:    ErrCodeExportGeneration,
		Message: "export generation failed",
		Err:     err,
	}
}

// NewDistributionChannelError wraps a per-channel delivery failure
func NewDistributionChannelError(channel string, err error) error {
	return &DomainError{
		Code:    ErrCodeDistributionChannel,
		Message: fmt.Sprintf("delivery via %s failed", channel),
		Err:     err,
	}
}

// NewRateLimitExceededError reports email throttling; the caller must
// re-trigger, it is not retried automatically.
func NewRateLimitExceededError(scope string) error {
	return &DomainError{
		Code:    ErrCodeRateLimitExceeded,
		Message: fmt.Sprintf("%s rate limit exceeded", scope),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// HasCode checks whether err is a DomainError with the given code
func HasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsValidation reports whether the error belongs to the validation class:
// detected synchronously, surfaced as 4xx, never retried and never
// dead-lettered.
func IsValidation(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeValidation, ErrCodeUnknownField, ErrCodeFilterTooLarge,
		ErrCodeFormulaTooComplex, ErrCodeScheduleTooFrequent,
		ErrCodeInvalidScheduleConfig:
		return true
	}
	return false
}

// IsRetryable reports whether the error belongs to the transient class
// handled by the retry/dead-letter controller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsNotFound(err) {
		return false
	}
	if HasCode(err, ErrCodePathTraversal) || HasCode(err, ErrCodeRateLimitExceeded) {
		return false
	}
	return true
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// ClientMessage returns the client-safe message for an error. Internal
// detail (wrapped errors, paths, SQL) is never included.
func ClientMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "An internal error occurred"
}
