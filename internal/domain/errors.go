package domain

import (
	"errors"
	"fmt"
)

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
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "carrier, lob, state, question are required")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Retrieval stages reported by RetrievalError.
const (
	StageEmbedding    = "embedding"
	StageVectorSearch = "vector_search"
	StageMetadata     = "metadata"
)

// RetrievalError is a failure in one of the retrieval stages that precede
// generation.
type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// NewRetrievalError wraps err as a failure of stage.
func NewRetrievalError(stage string, err error) *RetrievalError {
	return &RetrievalError{Stage: stage, Err: err}
}

// GenerationError is returned when no generation provider produced text.
// Primary is nil when no primary provider was configured.
type GenerationError struct {
	Primary   error
	Secondary error
}

func (e *GenerationError) Error() string {
	if e.Primary == nil {
		return fmt.Sprintf("generation failed: %v", e.Secondary)
	}
	return fmt.Sprintf("generation failed: primary: %v; secondary: %v", e.Primary, e.Secondary)
}

func (e *GenerationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Secondary != nil {
		errs = append(errs, e.Secondary)
	}
	return errs
}

// IsUpstreamFailure reports whether err came from an external collaborator
// of the answer pipeline (embedding, vector search, store or generation).
func IsUpstreamFailure(err error) bool {
	var retrievalErr *RetrievalError
	if errors.As(err, &retrievalErr) {
		return true
	}
	var generationErr *GenerationError
	return errors.As(err, &generationErr)
}
