package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Pipeline failure kinds. These strings are stable and are persisted with failed runs.
const (
	KindOrderingViolation  = "pipeline_ordering_violation"
	KindStepBoundExceeded  = "pipeline_step_bound_exceeded"
	KindPreconditionFailed = "upstream_precondition_failed"
	KindIncomplete         = "pipeline_incomplete"
	KindCanceled           = "canceled"
	KindInternal           = "internal"
)

// Pipeline sentinels, wrapped by the AppError of the matching kind.
var (
	ErrOrderingViolation = errors.New("stage proposed out of order")
	ErrStepBoundExceeded = errors.New("exceeded step bound")
	ErrPrecondition      = errors.New("upstream precondition failed")
	ErrIncomplete        = errors.New("proposer stopped before extraction")
	ErrRunFinished       = errors.New("run already finished")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func OrderingViolation(format string, args ...any) *AppError {
	return NewAppError(KindOrderingViolation, fmt.Sprintf(format, args...), ErrOrderingViolation)
}

func StepBoundExceeded(bound int) *AppError {
	return NewAppError(KindStepBoundExceeded, fmt.Sprintf("bound is %d steps", bound), ErrStepBoundExceeded)
}

func PreconditionFailed(format string, args ...any) *AppError {
	return NewAppError(KindPreconditionFailed, fmt.Sprintf(format, args...), ErrPrecondition)
}

// KindOf returns the failure kind carried by err, or "" for nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindInternal
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}

// StatusFromError maps a run failure onto a gRPC status.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch KindOf(err) {
	case KindOrderingViolation, KindPreconditionFailed, KindIncomplete:
		return status.Error(codes.FailedPrecondition, err.Error())
	case KindStepBoundExceeded:
		return status.Error(codes.ResourceExhausted, err.Error())
	case KindCanceled:
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrValidation) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
