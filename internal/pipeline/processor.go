package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/extract"
	"github.com/joseph-ayodele/billing-parser/internal/metrics"
	"github.com/joseph-ayodele/billing-parser/internal/repository"
)

// PayloadValidator checks a final payload before it leaves the processor.
type PayloadValidator interface {
	Validate(p entity.Payload) error
}

// Observer receives a run's events in order, plus the partial payload after
// every completed stage. An observer error cancels the run.
type Observer interface {
	OnEvent(ctx context.Context, ev events.ToolEvent) error
	OnPartial(ctx context.Context, snap Snapshot) error
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) OnEvent(context.Context, events.ToolEvent) error {
	return nil
}

func (NopObserver) OnPartial(context.Context, Snapshot) error {
	return nil
}

// Request describes one run. Resolve, when set, produces the uploads; its
// error fails the run before any stage executes.
type Request struct {
	Source    string
	Files     []entity.FileDescriptor
	Resolve   func(ctx context.Context) ([]entity.FileDescriptor, error)
	StepBound int
	Verbose   *bool
	Proposer  Proposer
}

// Outcome is what a run produced.
type Outcome struct {
	RunID   uuid.UUID
	State   constants.RunState
	Steps   int
	Payload entity.Payload
}

// Processor wires stages, persistence and metrics around single runs.
type Processor struct {
	Logger    *slog.Logger
	Stages    Stages
	Runs      repository.RunRepository
	Validator PayloadValidator
	Metrics   *metrics.Metrics
	Defaults  Options
}

// NewStages builds the default stage set.
func NewStages(recognizer extract.ImageRecognizer, decoder extract.TextDecoder, logger *slog.Logger) Stages {
	return Stages{
		Separate: NewSeparateStage(logger),
		OCR:      NewOCRStage(recognizer, logger),
		Merge:    NewMergeStage(decoder, logger),
		Classify: NewClassifyStage(logger),
		Extract:  NewExtractStage(logger),
	}
}

func NewProcessor(logger *slog.Logger, stages Stages, runs repository.RunRepository, v PayloadValidator, m *metrics.Metrics, defaults Options) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.StepBound <= 0 {
		defaults.StepBound = DefaultStepBound
	}
	if defaults.EventBuffer <= 0 {
		defaults.EventBuffer = DefaultEventBuffer
	}
	return &Processor{Logger: logger, Stages: stages, Runs: runs, Validator: v, Metrics: m, Defaults: defaults}
}

// Run executes one request to completion, relaying events to obs.
func (p *Processor) Run(ctx context.Context, req Request, obs Observer) (Outcome, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var resolveErr error
	files := req.Files
	if req.Resolve != nil {
		files, resolveErr = req.Resolve(runCtx)
	}

	bound := p.Defaults.StepBound
	if req.StepBound > 0 {
		bound = req.StepBound
	}
	verbose := p.Defaults.Verbose
	if req.Verbose != nil {
		verbose = *req.Verbose
	}
	orch := NewOrchestrator(files, p.Stages,
		WithStepBound(bound),
		WithEventBuffer(p.Defaults.EventBuffer),
		WithVerbose(verbose),
		WithLogger(p.Logger),
		WithMetrics(p.Metrics),
	)
	runID := orch.RunID()
	log := p.Logger.With("run_id", runID.String(), "source", req.Source)
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		log = log.With("request_id", rid)
	}
	started := time.Now()

	if p.Runs != nil {
		if err := p.Runs.Start(runCtx, &entity.Run{ID: runID, Source: req.Source, FileCount: len(files), StartedAt: started.UTC()}); err != nil {
			log.Error("processor.persist.start.failed", "error", err)
		}
	}

	proposer := req.Proposer
	if proposer == nil {
		proposer = CanonicalProposer{}
	}
	done := make(chan error, 1)
	go func() {
		if resolveErr != nil {
			done <- orch.Abort(resolveErr)
			return
		}
		done <- Drive(runCtx, orch, proposer)
	}()

	observerFailed := false
	for ev := range orch.Events() {
		p.Metrics.EventRelayed(string(ev.Type))
		if observerFailed {
			continue
		}
		err := obs.OnEvent(runCtx, ev)
		if err == nil && ev.Type == events.Completed {
			if snap, ok := orch.SnapshotAt(ev.Step); ok {
				err = obs.OnPartial(runCtx, snap)
			}
		}
		if err != nil {
			observerFailed = true
			log.Warn("processor.observer.failed", "error", err)
			cancel()
		}
	}
	runErr := <-done

	snap := orch.Snapshot()
	out := Outcome{RunID: runID, State: snap.State, Steps: snap.Steps}
	if runErr == nil {
		out.Payload, runErr = orch.Result()
		if runErr == nil && p.Validator != nil {
			if verr := p.Validator.Validate(out.Payload); verr != nil {
				runErr = common.NewAppError(common.KindInternal, "payload failed schema validation", verr)
				out.State = constants.RunStateFailed
			}
		}
	}

	p.persistFinish(ctx, log, runID, snap.Steps, out.Payload, runErr)
	if runErr != nil {
		log.Error("processor.run.failed", "kind", common.KindOf(runErr), "steps", snap.Steps, "duration_ms", time.Since(started).Milliseconds(), "error", runErr)
		return out, runErr
	}
	log.Info("processor.run.ok", "steps", snap.Steps, "results", len(out.Payload.Classification), "duration_ms", time.Since(started).Milliseconds())
	return out, nil
}

// persistFinish records the terminal state. It uses a fresh context so a
// canceled request still leaves a finished row.
func (p *Processor) persistFinish(ctx context.Context, log *slog.Logger, id uuid.UUID, steps int, payload entity.Payload, runErr error) {
	if p.Runs == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	var err error
	if runErr != nil {
		err = p.Runs.FinishFailure(pctx, id, steps, common.KindOf(runErr), runErr.Error())
	} else {
		err = p.Runs.FinishSuccess(pctx, id, steps, payload.Classification)
	}
	if err != nil {
		log.Error("processor.persist.finish.failed", "error", err)
	}
}
