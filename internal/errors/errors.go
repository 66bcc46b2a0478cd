// Package errors provides structured error types for the roverlog system.
// All errors include a category, code, message, and fatal flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryFormat     ErrorCategory = "FORMAT"
	ErrCategoryDecompress ErrorCategory = "DECOMPRESS"
	ErrCategoryRegistry   ErrorCategory = "REGISTRY"
	ErrCategoryPlan       ErrorCategory = "PLAN"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategorySource     ErrorCategory = "SOURCE"
	ErrCategoryUsage      ErrorCategory = "USAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Format codes
	CodeBadMagic        = "BAD_MAGIC"
	CodeInvalidOpcode   = "INVALID_OPCODE"
	CodeTruncatedRecord = "TRUNCATED_RECORD"
	CodeCRCMismatch     = "CRC_MISMATCH"

	// Decompress codes
	CodeUnknownCompression = "UNKNOWN_COMPRESSION"
	CodeDecompressFailed   = "DECOMPRESS_FAILED"

	// Registry codes
	CodeSchemaConflict  = "SCHEMA_CONFLICT"
	CodeChannelConflict = "CHANNEL_CONFLICT"
	CodeSchemaNotFound  = "SCHEMA_NOT_FOUND"
	CodeChannelNotFound = "CHANNEL_NOT_FOUND"
	CodeReservedID      = "RESERVED_ID"

	// Plan codes
	CodePlanFailed          = "PLAN_FAILED"
	CodeUnsupportedEncoding = "UNSUPPORTED_ENCODING"

	// Storage codes
	CodeOpenFailed = "OPEN_FAILED"
	CodeReadFailed = "READ_FAILED"
	CodeStatFailed = "STAT_FAILED"

	// Source codes
	CodeSizeLimitExceeded = "SIZE_LIMIT_EXCEEDED"

	// Usage codes
	CodeNotInitialized     = "NOT_INITIALIZED"
	CodeAlreadyInitialized = "ALREADY_INITIALIZED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// RoverlogError is the structured error type used throughout the system.
type RoverlogError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
	Fatal    bool
}

// Error returns a formatted error string.
func (e *RoverlogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RoverlogError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *RoverlogError) Is(target error) bool {
	var t *RoverlogError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new RoverlogError.
func New(category ErrorCategory, code, message string) *RoverlogError {
	return &RoverlogError{
		Category: category,
		Code:     code,
		Message:  message,
		Fatal:    isFatal(category),
	}
}

// Wrap creates a new RoverlogError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *RoverlogError {
	return &RoverlogError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
		Fatal:    isFatal(category),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *RoverlogError) WithDetails(details map[string]interface{}) *RoverlogError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsFatal checks whether an error (or its chain) aborts ingestion.
func IsFatal(err error) bool {
	var re *RoverlogError
	if errors.As(err, &re) {
		return re.Fatal
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a RoverlogError.
func GetCategory(err error) ErrorCategory {
	var re *RoverlogError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a RoverlogError.
func GetCode(err error) string {
	var re *RoverlogError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// isFatal determines whether a category is structural, meaning the whole
// ingestion aborts with no partial result. Plan failures are per-channel
// recoverable; usage errors indicate caller misuse rather than a data
// problem.
func isFatal(category ErrorCategory) bool {
	switch category {
	case ErrCategoryFormat, ErrCategoryDecompress, ErrCategoryRegistry,
		ErrCategoryStorage, ErrCategorySource:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewFormatError(code, message string) *RoverlogError {
	return New(ErrCategoryFormat, code, message)
}

func NewDecompressError(code, message string, cause error) *RoverlogError {
	return Wrap(ErrCategoryDecompress, code, message, cause)
}

func NewRegistryError(code, message string) *RoverlogError {
	return New(ErrCategoryRegistry, code, message)
}

func NewPlanError(code, message string, cause error) *RoverlogError {
	return Wrap(ErrCategoryPlan, code, message, cause)
}

func NewStorageError(code, message string, cause error) *RoverlogError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewSourceError(code, message string) *RoverlogError {
	return New(ErrCategorySource, code, message)
}

func NewUsageError(code, message string) *RoverlogError {
	return New(ErrCategoryUsage, code, message)
}

func NewInternalError(message string, cause error) *RoverlogError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
