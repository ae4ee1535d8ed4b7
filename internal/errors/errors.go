// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	ErrMissingData         = errors.New("missing data")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrNoIVSolution        = errors.New("no implied volatility solution")
	ErrInputValidation     = errors.New("input validation failed")
	ErrDataNotFound        = errors.New("data not found")
	ErrDatabaseError       = errors.New("database error")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrCacheMiss           = errors.New("cache: key not found")
)

// Reason codes attached to neutral records and skip logs.
const (
	ReasonInsufficientHistory = "insufficient_history"
	ReasonNoAnchors           = "no_anchors"
	ReasonNoBaseline          = "no_baseline"
	ReasonMissingSpot         = "missing_spot"
	ReasonNoData              = "no_data"
)

// SkipReason maps errors that skip a unit of work, rather than fail it, to
// their reason code.
func SkipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrMissingData):
		return ReasonNoData, true
	case errors.Is(err, ErrInsufficientHistory):
		return ReasonInsufficientHistory, true
	}
	return "", false
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// ComputeError wraps a failure of one engine for one symbol.
type ComputeError struct {
	Engine string
	Symbol string
	Err    error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute error [%s] %s: %v", e.Engine, e.Symbol, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// NewComputeError creates a new ComputeError.
func NewComputeError(engine, symbol string, err error) *ComputeError {
	return &ComputeError{
		Engine: engine,
		Symbol: symbol,
		Err:    err,
	}
}

// ValidationError represents a validation error on a single field.
type ValidationError struct {
	Field   string      `json:"field"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, code string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Code:    code,
		Value:   value,
		Message: message,
	}
}

// ValidationErrors lists every offending field of a request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInputValidation
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, v := range e {
		fields[i] = v.Field
	}
	return fields
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
