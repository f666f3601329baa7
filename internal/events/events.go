// Package events carries ordered progress notifications from a pipeline run to
// its observer.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/billing-parser/constants"
)

// Type is the lifecycle position of a ToolEvent within one stage invocation.
type Type string

const (
	Started   Type = "started"
	Progress  Type = "progress"
	Completed Type = "completed"
)

// ToolEvent is one progress notification. Payload holds "detail" for progress
// events and "summary" for completed events.
type ToolEvent struct {
	Type          Type            `json:"type"`
	Stage         constants.Stage `json:"stage"`
	RunID         string          `json:"runId"`
	CorrelationID string          `json:"correlationId"`
	Step          int             `json:"step"`
	Seq           int64           `json:"seq"`
	Message       string          `json:"message,omitempty"`
	Payload       map[string]any  `json:"payload,omitempty"`
	At            time.Time       `json:"at"`
}

// Stream is the single ordered event channel of a run. Emission blocks while
// the buffer is full and gives up when the caller's context ends.
type Stream struct {
	runID string
	ch    chan ToolEvent

	mu     sync.Mutex
	seq    int64
	closed bool
}

// NewStream creates a stream with the given buffer capacity.
func NewStream(runID string, buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{runID: runID, ch: make(chan ToolEvent, buffer)}
}

// Events returns the receive side. It is closed by Close.
func (s *Stream) Events() <-chan ToolEvent {
	return s.ch
}

// Emit stamps ev with the run id, sequence number and time, then sends it.
func (s *Stream) Emit(ctx context.Context, ev ToolEvent) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.seq++
	ev.Seq = s.seq
	ev.RunID = s.runID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		s.seq--
		return ctx.Err()
	}
}

// Close ends the stream. Later emits are dropped.
func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Scope opens stage invocation number step with a fresh correlation id.
func (s *Stream) Scope(stage constants.Stage, step int) *Scope {
	return &Scope{stream: s, stage: stage, step: step, correlationID: uuid.NewString()}
}

// Scope emits the events of one stage invocation.
type Scope struct {
	stream        *Stream
	stage         constants.Stage
	step          int
	correlationID string
}

func (sc *Scope) CorrelationID() string { return sc.correlationID }

func (sc *Scope) Stage() constants.Stage { return sc.stage }

func (sc *Scope) Step() int { return sc.step }

func (sc *Scope) Started(ctx context.Context, message string) error {
	return sc.emit(ctx, ToolEvent{Type: Started, Message: message})
}

func (sc *Scope) Progress(ctx context.Context, detail map[string]any) error {
	return sc.emit(ctx, ToolEvent{Type: Progress, Payload: map[string]any{"detail": detail}})
}

func (sc *Scope) Completed(ctx context.Context, summary map[string]any) error {
	return sc.emit(ctx, ToolEvent{Type: Completed, Payload: map[string]any{"summary": summary}})
}

func (sc *Scope) emit(ctx context.Context, ev ToolEvent) error {
	if sc == nil {
		return nil
	}
	ev.Stage = sc.stage
	ev.Step = sc.step
	ev.CorrelationID = sc.correlationID
	return sc.stream.Emit(ctx, ev)
}
