package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/metrics"
	"github.com/joseph-ayodele/billing-parser/internal/output"
	"github.com/joseph-ayodele/billing-parser/internal/repository"
)

type recordingObserver struct {
	mu       sync.Mutex
	events   []events.ToolEvent
	partials []Snapshot
	failOn   events.Type
}

func (r *recordingObserver) OnEvent(_ context.Context, ev events.ToolEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.failOn != "" && ev.Type == r.failOn {
		return errors.New("client went away")
	}
	return nil
}

func (r *recordingObserver) OnPartial(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partials = append(r.partials, snap)
	return nil
}

func newTestRepo(t *testing.T) repository.RunRepository {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, db.Migrate(ctx))
	return repository.NewRunRepository(db, nil)
}

func TestProcessor_RunPersistsAndStreamsPartials(t *testing.T) {
	runs := newTestRepo(t)
	reg := prometheus.NewRegistry()
	p := NewProcessor(nil, testStages(), runs, output.MustValidator(), metrics.New(reg), Options{})

	obs := &recordingObserver{}
	out, err := p.Run(context.Background(), Request{
		Source: "test",
		Files:  []entity.FileDescriptor{image(receiptText), textFile(invoiceText)},
	}, obs)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStateDone, out.State)
	assert.Equal(t, 5, out.Steps)
	require.Len(t, out.Payload.Classification, 2)

	require.Len(t, obs.partials, 5)
	for i, snap := range obs.partials {
		assert.Equal(t, i+1, snap.Steps)
		assert.Len(t, snap.Completed, i+1)
	}
	assert.Empty(t, obs.partials[2].Partial().Classification)
	pending := obs.partials[3].Partial().Classification
	require.Len(t, pending, 2)
	assert.Equal(t, constants.Receipt, pending[0].Classification)
	assert.Equal(t, entity.ReceiptFields{}, pending[0].Fields)
	assert.Len(t, obs.partials[4].Partial().Classification, 2)
	assert.Equal(t, events.Started, obs.events[0].Type)
	assert.Equal(t, events.Completed, obs.events[len(obs.events)-1].Type)

	run, err := runs.Get(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusDone, run.Status)
	assert.Equal(t, 2, run.ResultCount)
	assert.Equal(t, 5, run.StepCount)

	n, err := testutil.GatherAndCount(reg, "billing_stage_invocations_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestProcessor_ResolveFailureIsPrecondition(t *testing.T) {
	runs := newTestRepo(t)
	p := NewProcessor(nil, testStages(), runs, nil, nil, Options{})

	obs := &recordingObserver{}
	out, err := p.Run(context.Background(), Request{
		Source: "test",
		Resolve: func(context.Context) ([]entity.FileDescriptor, error) {
			return nil, common.PreconditionFailed("upload directory %q does not exist", "/nope")
		},
	}, obs)
	require.Error(t, err)
	assert.Equal(t, common.KindPreconditionFailed, common.KindOf(err))
	assert.Equal(t, constants.RunStateFailed, out.State)
	assert.Empty(t, obs.events)

	run, err := runs.Get(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorKind)
	assert.Equal(t, common.KindPreconditionFailed, *run.ErrorKind)
}

func TestProcessor_ObserverFailureCancelsRun(t *testing.T) {
	p := NewProcessor(nil, testStages(), nil, nil, nil, Options{EventBuffer: 1})

	obs := &recordingObserver{failOn: events.Started}
	_, err := p.Run(context.Background(), Request{Files: []entity.FileDescriptor{textFile(invoiceText)}}, obs)
	require.Error(t, err)
	assert.Equal(t, common.KindCanceled, common.KindOf(err))
	assert.Len(t, obs.events, 1)
}

func TestProcessor_RequestOverrides(t *testing.T) {
	p := NewProcessor(nil, testStages(), nil, nil, nil, Options{})

	verbose := true
	obs := &recordingObserver{}
	_, err := p.Run(context.Background(), Request{
		Files:   []entity.FileDescriptor{textFile(invoiceText)},
		Verbose: &verbose,
	}, obs)
	require.NoError(t, err)
	var classifyProgress int
	for _, ev := range obs.events {
		if ev.Stage == constants.StageClassify && ev.Type == events.Progress {
			classifyProgress++
		}
	}
	assert.Equal(t, 1, classifyProgress)

	_, err = p.Run(context.Background(), Request{
		Files:     []entity.FileDescriptor{textFile(invoiceText)},
		StepBound: 2,
	}, nil)
	assert.Equal(t, common.KindStepBoundExceeded, common.KindOf(err))

	_, err = p.Run(context.Background(), Request{
		Files:    []entity.FileDescriptor{textFile(invoiceText)},
		Proposer: NewSequenceProposer(constants.StageOCR),
	}, nil)
	assert.Equal(t, common.KindOrderingViolation, common.KindOf(err))
}
