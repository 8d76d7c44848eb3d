package inference

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoFace is returned when the frame contains no face. It is expected
	// and frequent; callers keep the previous signal.
	ErrNoFace = errors.New("inference: no face detected")

	// ErrEmptyFrame is returned when asked to analyse a frame with no data.
	ErrEmptyFrame = errors.New("inference: empty frame")

	// ErrNoURL is returned when a landmarker has no endpoint configured.
	ErrNoURL = errors.New("inference: landmarker URL required")

	// ErrClosed is returned when using a closed stage.
	ErrClosed = errors.New("inference: stage closed")

	// ErrNoStages is returned when a chain has no stages.
	ErrNoStages = errors.New("inference: no stages configured")

	// ErrStagePanic is returned when a stage panics during inference.
	ErrStagePanic = errors.New("inference: stage panicked")
)

// BackendError represents a failure reported by, or talking to, the model
// backend.
type BackendError struct {
	// Backend identifies which stage failed.
	Backend string

	// Code is the backend error code (if provided).
	Code string

	// Message is the backend's error message.
	Message string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("inference [%s]: %v", e.Backend, e.Err)
	case e.Code != "":
		return fmt.Sprintf("inference [%s]: backend error (%s): %s", e.Backend, e.Code, e.Message)
	default:
		return fmt.Sprintf("inference [%s]: backend error: %s", e.Backend, e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
// ErrNoFace and context errors pass through unchanged.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoFace) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: backend, Err: err}
}

// IsBackend reports whether err is a backend failure.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// ChainError aggregates errors from every stage in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "inference chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("inference chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("inference chain: all %d stages failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
