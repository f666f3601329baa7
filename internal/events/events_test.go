package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/billing-parser/constants"
)

func TestScopeEmitsOrderedEvents(t *testing.T) {
	ctx := context.Background()
	s := NewStream("run-1", 8)
	sc := s.Scope(constants.StageSeparate, 1)

	require.NoError(t, sc.Started(ctx, "go"))
	require.NoError(t, sc.Progress(ctx, map[string]any{"event": "image-detected"}))
	require.NoError(t, sc.Completed(ctx, map[string]any{"images": 1}))
	s.Close()

	var got []ToolEvent
	for ev := range s.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, []Type{Started, Progress, Completed}, []Type{got[0].Type, got[1].Type, got[2].Type})
	for i, ev := range got {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, sc.CorrelationID(), ev.CorrelationID)
		assert.Equal(t, constants.StageSeparate, ev.Stage)
		assert.Equal(t, 1, ev.Step)
		assert.False(t, ev.At.IsZero())
	}
	assert.Equal(t, "go", got[0].Message)
	assert.Equal(t, map[string]any{"event": "image-detected"}, got[1].Payload["detail"])
	assert.Equal(t, map[string]any{"images": 1}, got[2].Payload["summary"])
}

func TestScopesHaveDistinctCorrelationIDs(t *testing.T) {
	s := NewStream("r", 1)
	assert.NotEqual(t, s.Scope(constants.StageOCR, 1).CorrelationID(), s.Scope(constants.StageOCR, 2).CorrelationID())
}

func TestEmitBlocksUntilContextDone(t *testing.T) {
	s := NewStream("r", 1)
	sc := s.Scope(constants.StageMerge, 1)
	require.NoError(t, sc.Started(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sc.Progress(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ev := <-s.Events()
	assert.Equal(t, int64(1), ev.Seq)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	s := NewStream("r", 1)
	s.Close()
	s.Close()
	require.NoError(t, s.Scope(constants.StageOCR, 1).Started(context.Background(), "late"))
	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestNilScopeIsNoop(t *testing.T) {
	var sc *Scope
	assert.NoError(t, sc.Started(context.Background(), "x"))
}
