package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/billing-parser/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one queued pipeline run.
type Job struct {
	ID          uuid.UUID
	Request     pipeline.Request
	Observer    pipeline.Observer
	SubmittedAt time.Time
	// Done, when set, receives the run outcome from the worker goroutine.
	Done func(pipeline.Outcome, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner executes a single request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, obs pipeline.Observer) (pipeline.Outcome, error)
}
