// Package apperr provides unified error handling for the ingestion and
// graph-projection core, mirroring the teacher's infrastructure/errors
// package: a coded, wrappable error type instead of ad-hoc fmt.Errorf chains.
package apperr

import "fmt"

// Code represents a unique error code. Prefixes group the error kinds from
// spec §7.
type Code string

const (
	// Validation errors (VAL) — normalizer/validator rejected input.
	CodeValidation Code = "VAL_1001"

	// Resolution errors (RES) — a referenced entity cannot be resolved or minted.
	CodeResolution Code = "RES_2001"

	// Claim rejection errors (CLM).
	CodeUnknownKind      Code = "CLM_3001"
	CodeProtectedField   Code = "CLM_3002"
	CodeUnsafeFieldName  Code = "CLM_3003"
	CodeClaimNotFound    Code = "CLM_3004"

	// Merge errors (MRG).
	CodeCycle      Code = "MRG_4001"
	CodeSelfMerge  Code = "MRG_4002"
	CodeTombstoned Code = "MRG_4003"

	// Service-level errors (SVC).
	CodeTransientGraph Code = "SVC_5001"
	CodeInternal       Code = "SVC_5002"

	// Intake-level pseudo-status (DUP) — not a failure.
	CodeDuplicateEvent Code = "DUP_6001"
)

// GraphError is a structured error carrying a stable code, a human message,
// optional field-level details, and the wrapped cause.
type GraphError struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *GraphError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GraphError) Unwrap() error { return e.Err }

// WithDetail attaches an additional detail field and returns e for chaining.
func (e *GraphError) WithDetail(key string, value any) *GraphError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a GraphError with no wrapped cause.
func New(code Code, message string) *GraphError {
	return &GraphError{Code: code, Message: message}
}

// Wrap creates a GraphError wrapping an existing error.
func Wrap(code Code, message string, err error) *GraphError {
	return &GraphError{Code: code, Message: message, Err: err}
}

// Retryable reports whether err is a transient-graph error eligible for the
// bounded retry policy in spec §5/§7.
func Retryable(err error) bool {
	var ge *GraphError
	if !asGraphError(err, &ge) {
		return false
	}
	return ge.Code == CodeTransientGraph
}

// IsDuplicate reports whether err represents the DuplicateEvent pseudo-status.
func IsDuplicate(err error) bool {
	var ge *GraphError
	if !asGraphError(err, &ge) {
		return false
	}
	return ge.Code == CodeDuplicateEvent
}

func asGraphError(err error, target **GraphError) bool {
	for err != nil {
		if ge, ok := err.(*GraphError); ok {
			*target = ge
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
