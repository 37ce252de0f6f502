package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig            = errors.New("invalid configuration")
	ErrIO                = errors.New("io failure")
	ErrBackend           = errors.New("backend failure")
	ErrIndex             = errors.New("index unavailable")
	ErrAnswerExtraction  = errors.New("answer extraction failed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid dataset status transition")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type BackendErrorKind string

const (
	BackendTimeout           BackendErrorKind = "timeout"
	BackendUnreachable       BackendErrorKind = "unreachable"
	BackendDimensionMismatch BackendErrorKind = "dimension_mismatch"
	BackendInvalidModel      BackendErrorKind = "invalid_model"
)

// BackendError is returned by embedding and LLM adapters. It matches ErrBackend
// with errors.Is and ErrTemporary when the failure is transient.
type BackendError struct {
	Kind BackendErrorKind
	Op   string
	Err  error
}

func NewBackendError(kind BackendErrorKind, op string, err error) *BackendError {
	return &BackendError{Kind: kind, Op: op, Err: err}
}

func (e *BackendError) Error() string {
	if e == nil {
		return "backend error"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: backend %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: backend %s: %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrBackend:
		return true
	case ErrTemporary:
		return e.Transient()
	default:
		return false
	}
}

// Transient reports whether the caller may retry.
func (e *BackendError) Transient() bool {
	return e.Kind == BackendTimeout || e.Kind == BackendUnreachable
}

// BackendKind extracts the backend failure kind from a wrapped error chain.
func BackendKind(err error) (BackendErrorKind, bool) {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Kind, true
	}
	return "", false
}
