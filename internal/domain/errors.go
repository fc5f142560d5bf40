package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

// Validation errors
var (
	ErrEmptyChunkText     = NewDomainError(ErrCodeValidation, "chunk text cannot be empty")
	ErrMissingInboundText = NewDomainError(ErrCodeValidation, "inbound text is required")
	ErrMissingPhone       = NewDomainError(ErrCodeValidation, "correspondent phone is required")
)

// Not found errors
var (
	ErrChunkNotFound         = NewDomainError(ErrCodeNotFound, "knowledge chunk not found")
	ErrCorrespondentNotFound = NewDomainError(ErrCodeNotFound, "correspondent not found")
	ErrMessageNotFound       = NewDomainError(ErrCodeNotFound, "message not found")
)

// Authorization errors
var (
	ErrInvalidAdminToken  = NewDomainError(ErrCodeUnauthorized, "invalid admin token")
	ErrInvalidVerifyToken = NewDomainError(ErrCodeUnauthorized, "webhook verify token mismatch")
)

// Dependency errors
var (
	ErrEmbeddingUnavailable  = NewDomainError(ErrCodeUnavailable, "embedding service not configured")
	ErrGenerationUnavailable = NewDomainError(ErrCodeUnavailable, "generation service not configured")
)
