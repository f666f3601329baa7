package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"ordering", OrderingViolation("runOCR before separateDocuments"), KindOrderingViolation},
		{"bound", StepBoundExceeded(10), KindStepBoundExceeded},
		{"precondition wrapped", fmt.Errorf("load: %w", PreconditionFailed("no upload dir")), KindPreconditionFailed},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", fmt.Errorf("ocr: %w", context.DeadlineExceeded), KindCanceled},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	err := StepBoundExceeded(3)
	assert.ErrorIs(t, err, ErrStepBoundExceeded)
	assert.Contains(t, err.Error(), "bound is 3 steps")
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"ordering", OrderingViolation("x"), codes.FailedPrecondition},
		{"precondition", PreconditionFailed("x"), codes.FailedPrecondition},
		{"incomplete", NewAppError(KindIncomplete, "stopped", ErrIncomplete), codes.FailedPrecondition},
		{"bound", StepBoundExceeded(1), codes.ResourceExhausted},
		{"canceled", context.Canceled, codes.Canceled},
		{"invalid", fmt.Errorf("%w: name", ErrInvalidInput), codes.InvalidArgument},
		{"validation", NewValidator().Check(false, "f", 1, "bad").Error(), codes.InvalidArgument},
		{"internal", errors.New("boom"), codes.Internal},
		{"already status", status.Error(codes.NotFound, "gone"), codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(StatusFromError(tt.err)))
		})
	}
	assert.NoError(t, StatusFromError(nil))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "ctx"))
	err := WrapError(ErrIncomplete, "proposer")
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, "proposer: "+ErrIncomplete.Error(), err.Error())
}
