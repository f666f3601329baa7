package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/fields"
	"github.com/joseph-ayodele/billing-parser/internal/metrics"
)

const (
	DefaultStepBound   = 10
	DefaultEventBuffer = 64
)

// Stages bundles the stage implementations a run executes.
type Stages struct {
	Separate *SeparateStage
	OCR      *OCRStage
	Merge    *MergeStage
	Classify *ClassifyStage
	Extract  *ExtractStage
}

// Options tune a single run.
type Options struct {
	StepBound   int
	EventBuffer int
	Verbose     bool
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

type Option func(*Options)

// WithStepBound caps the number of stage invocations of the run.
func WithStepBound(n int) Option {
	return func(o *Options) { o.StepBound = n }
}

func WithEventBuffer(n int) Option {
	return func(o *Options) { o.EventBuffer = n }
}

// WithVerbose enables per-unit progress events for classification and extraction.
func WithVerbose(v bool) Option {
	return func(o *Options) { o.Verbose = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// Proposal asks the orchestrator to run one stage. Texts optionally restates
// the classify input and Units the extract input; both are checked against
// what the earlier stages produced.
type Proposal struct {
	Stage constants.Stage
	Texts []string
	Units []entity.DocumentUnit
}

// StepOutcome reports a successfully executed proposal.
type StepOutcome struct {
	Stage         constants.Stage
	Step          int
	CorrelationID string
	State         constants.RunState
	Duration      time.Duration
}

// Snapshot is the run's state after a step. Slices are shared and must not be
// modified.
type Snapshot struct {
	RunID      string                    `json:"runId"`
	State      constants.RunState        `json:"state"`
	Steps      int                       `json:"steps"`
	StepBound  int                       `json:"stepBound"`
	Completed  []constants.Stage         `json:"completed"`
	Batch      *entity.SeparatedBatch    `json:"-"`
	Texts      []string                  `json:"texts,omitempty"`
	Units      []entity.DocumentUnit     `json:"units,omitempty"`
	Classified []entity.DocumentUnit     `json:"classified,omitempty"`
	Results    []entity.ClassifiedResult `json:"results,omitempty"`
	ErrorKind  string                    `json:"errorKind,omitempty"`
}

// HasCompleted reports whether stage has a valid result in this snapshot.
func (s Snapshot) HasCompleted(stage constants.Stage) bool {
	return slices.Contains(s.Completed, stage)
}

// Partial is the structured output known so far. Once units are classified
// but not yet extracted, each appears with its classification and null fields.
func (s Snapshot) Partial() entity.Payload {
	if s.Results != nil {
		return entity.Payload{Classification: s.Results}
	}
	out := make([]entity.ClassifiedResult, 0, len(s.Classified))
	for _, u := range s.Classified {
		out = append(out, pendingResult(u))
	}
	return entity.Payload{Classification: out}
}

func pendingResult(u entity.DocumentUnit) entity.ClassifiedResult {
	r := entity.ClassifiedResult{Classification: u.Classification}
	switch u.Classification {
	case constants.Invoice:
		r.Fields = entity.InvoiceFields{}
	case constants.Receipt:
		r.Fields = entity.ReceiptFields{}
	default:
		r.Fields = entity.UnknownFields{RawTextPreview: fields.Preview(u.Text)}
	}
	return r
}

// Orchestrator owns one run: it executes proposed stages, enforces their
// order and the step bound, and publishes events on a single stream.
type Orchestrator struct {
	id     uuid.UUID
	files  []entity.FileDescriptor
	stages Stages
	opts   Options
	stream *events.Stream
	logger *slog.Logger

	propMu sync.Mutex // serializes proposals

	mu         sync.RWMutex
	state      constants.RunState
	steps      int
	done       [5]bool
	batch      *entity.SeparatedBatch
	texts      []string
	units      []entity.DocumentUnit
	classified []entity.DocumentUnit
	results    []entity.ClassifiedResult
	err        error
	history    map[int]Snapshot
}

func NewOrchestrator(files []entity.FileDescriptor, stages Stages, opts ...Option) *Orchestrator {
	o := Options{StepBound: DefaultStepBound, EventBuffer: DefaultEventBuffer}
	for _, fn := range opts {
		fn(&o)
	}
	if o.StepBound <= 0 {
		o.StepBound = DefaultStepBound
	}
	if o.EventBuffer < 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	id := uuid.New()
	return &Orchestrator{
		id:      id,
		files:   slices.Clone(files),
		stages:  stages,
		opts:    o,
		stream:  events.NewStream(id.String(), o.EventBuffer),
		logger:  o.Logger.With("run_id", id.String()),
		state:   constants.RunStateIdle,
		history: map[int]Snapshot{},
	}
}

func (o *Orchestrator) RunID() uuid.UUID { return o.id }

func (o *Orchestrator) StepBound() int { return o.opts.StepBound }

// Events is the run's ordered event channel. It closes when the run ends.
func (o *Orchestrator) Events() <-chan events.ToolEvent { return o.stream.Events() }

func (o *Orchestrator) State() constants.RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Err returns the terminal failure, if any.
func (o *Orchestrator) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

// Propose runs one stage if the ordering rules and the step bound allow it.
// Any rejection fails the whole run.
func (o *Orchestrator) Propose(ctx context.Context, p Proposal) (StepOutcome, error) {
	o.propMu.Lock()
	defer o.propMu.Unlock()

	o.mu.Lock()
	if o.state.Terminal() {
		state, err := o.state, o.err
		o.mu.Unlock()
		if err != nil {
			return StepOutcome{}, fmt.Errorf("%w (%s): %w", common.ErrRunFinished, state, err)
		}
		return StepOutcome{}, fmt.Errorf("%w (%s)", common.ErrRunFinished, state)
	}
	o.steps++
	step := o.steps
	o.mu.Unlock()

	if step > o.opts.StepBound {
		return StepOutcome{}, o.fail(common.StepBoundExceeded(o.opts.StepBound))
	}
	if err := ctx.Err(); err != nil {
		return StepOutcome{}, o.fail(err)
	}
	if err := o.checkOrder(p); err != nil {
		return StepOutcome{}, o.fail(err)
	}

	o.mu.Lock()
	o.state = p.Stage.RunningState()
	o.mu.Unlock()

	scope := o.stream.Scope(p.Stage, step)
	log := o.logger.With("stage", string(p.Stage), "step", step, "correlation_id", scope.CorrelationID())
	ctx = common.WithCorrelationID(common.WithRunID(ctx, o.id.String()), scope.CorrelationID())

	start := time.Now()
	summary, err := o.execute(ctx, p.Stage, scope)
	elapsed := time.Since(start)
	o.opts.Metrics.StageInvoked(p.Stage, elapsed)
	if err != nil {
		log.Error("orchestrator.stage.failed", "error", err, "elapsed_ms", elapsed.Milliseconds())
		return StepOutcome{}, o.fail(err)
	}
	if err := scope.Completed(ctx, summary); err != nil {
		return StepOutcome{}, o.fail(err)
	}
	log.Info("orchestrator.stage.ok", "elapsed_ms", elapsed.Milliseconds())

	if p.Stage == constants.StageExtract {
		o.finishDone()
	}
	return StepOutcome{
		Stage:         p.Stage,
		Step:          step,
		CorrelationID: scope.CorrelationID(),
		State:         o.State(),
		Duration:      elapsed,
	}, nil
}

// checkOrder validates a proposal against what has completed so far.
func (o *Orchestrator) checkOrder(p Proposal) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	switch p.Stage {
	case constants.StageSeparate:
		return nil
	case constants.StageOCR:
		if !o.completed(constants.StageSeparate) {
			return common.OrderingViolation("%s proposed before %s", p.Stage, constants.StageSeparate)
		}
	case constants.StageMerge:
		if o.completed(constants.StageOCR) {
			return nil
		}
		if o.completed(constants.StageSeparate) && len(o.batch.Images) == 0 {
			return nil
		}
		return common.OrderingViolation("%s proposed before %s", p.Stage, constants.StageOCR)
	case constants.StageClassify:
		if !o.completed(constants.StageMerge) {
			return common.OrderingViolation("%s proposed before %s", p.Stage, constants.StageMerge)
		}
		if p.Texts != nil && !slices.Equal(p.Texts, unitTexts(o.units)) {
			return common.OrderingViolation("%s proposed for texts that were not merged", p.Stage)
		}
	case constants.StageExtract:
		if !o.completed(constants.StageClassify) {
			return common.OrderingViolation("%s proposed before %s", p.Stage, constants.StageClassify)
		}
		if p.Units != nil && !sameUnits(p.Units, o.classified) {
			return common.OrderingViolation("%s proposed for units that were not classified", p.Stage)
		}
	default:
		return common.OrderingViolation("unknown stage %q", p.Stage)
	}
	return nil
}

// execute runs the stage and commits its output. Re-running a stage discards
// the output of every later stage.
func (o *Orchestrator) execute(ctx context.Context, stage constants.Stage, scope *events.Scope) (map[string]any, error) {
	o.mu.RLock()
	batch, texts, units, classified := o.batch, o.texts, o.units, o.classified
	o.mu.RUnlock()

	switch stage {
	case constants.StageSeparate:
		out, summary, err := o.stages.Separate.Run(ctx, o.files, scope)
		if err != nil {
			return nil, err
		}
		o.commit(stage, func() { o.batch = &out })
		return summary, nil

	case constants.StageOCR:
		out, summary, err := o.stages.OCR.Run(ctx, batch.Images, scope)
		if err != nil {
			return nil, err
		}
		if failed, ok := summary["failed"].(int); ok {
			o.opts.Metrics.OCRFailures(failed)
		}
		o.commit(stage, func() { o.texts = out })
		return summary, nil

	case constants.StageMerge:
		if texts == nil {
			texts = []string{}
		}
		out, summary, err := o.stages.Merge.Run(ctx, texts, batch.TextFiles, scope)
		if err != nil {
			return nil, err
		}
		o.commit(stage, func() { o.units = out })
		return summary, nil

	case constants.StageClassify:
		out, summary, err := o.stages.Classify.Run(ctx, units, o.opts.Verbose, scope)
		if err != nil {
			return nil, err
		}
		o.commit(stage, func() { o.classified = out })
		return summary, nil

	case constants.StageExtract:
		out, summary, err := o.stages.Extract.Run(ctx, classified, o.opts.Verbose, scope)
		if err != nil {
			return nil, err
		}
		o.commit(stage, func() { o.results = out })
		return summary, nil
	}
	return nil, common.OrderingViolation("unknown stage %q", stage)
}

func (o *Orchestrator) commit(stage constants.Stage, set func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := stage.Index()
	for i := idx + 1; i < len(o.done); i++ {
		o.done[i] = false
	}
	switch stage {
	case constants.StageSeparate:
		o.texts, o.units, o.classified, o.results = nil, nil, nil, nil
	case constants.StageOCR:
		o.units, o.classified, o.results = nil, nil, nil
	case constants.StageMerge:
		o.classified, o.results = nil, nil
	case constants.StageClassify:
		o.results = nil
	}
	set()
	o.done[idx] = true
	o.history[o.steps] = o.snapshotLocked()
}

func (o *Orchestrator) completed(stage constants.Stage) bool {
	return o.done[stage.Index()]
}

func (o *Orchestrator) finishDone() {
	o.mu.Lock()
	o.state = constants.RunStateDone
	o.history[o.steps] = o.snapshotLocked()
	o.mu.Unlock()
	o.opts.Metrics.RunFinished(constants.RunStateDone, "")
	o.logger.Info("orchestrator.run.done", "steps", o.steps, "results", len(o.results))
	o.stream.Close()
}

// fail moves the run to FAILED with err as its single terminal failure.
func (o *Orchestrator) fail(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = common.NewAppError(common.KindCanceled, "run canceled", err)
	}
	o.mu.Lock()
	if o.state.Terminal() {
		prev := o.err
		o.mu.Unlock()
		return prev
	}
	o.state = constants.RunStateFailed
	o.err = err
	steps := o.steps
	o.mu.Unlock()

	kind := common.KindOf(err)
	o.opts.Metrics.RunFinished(constants.RunStateFailed, kind)
	o.logger.Error("orchestrator.run.failed", "kind", kind, "steps", steps, "error", err)
	o.stream.Close()
	return err
}

// Abort fails the run from outside, e.g. when the proposer breaks down or an
// upstream precondition does not hold.
func (o *Orchestrator) Abort(err error) error {
	if err == nil {
		err = common.NewAppError(common.KindInternal, "run aborted", common.ErrInternal)
	}
	o.propMu.Lock()
	defer o.propMu.Unlock()
	return o.fail(err)
}

// Finish is called when the proposer stops. A run that has not reached DONE
// fails as incomplete.
func (o *Orchestrator) Finish(_ context.Context) error {
	o.propMu.Lock()
	defer o.propMu.Unlock()

	o.mu.RLock()
	state, err := o.state, o.err
	o.mu.RUnlock()
	switch state {
	case constants.RunStateDone:
		return nil
	case constants.RunStateFailed:
		return err
	}
	return o.fail(common.NewAppError(common.KindIncomplete, fmt.Sprintf("stopped in state %s", state), common.ErrIncomplete))
}

// Snapshot returns the current run state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

// SnapshotAt returns the state right after step completed.
func (o *Orchestrator) SnapshotAt(step int) (Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.history[step]
	return s, ok
}

// Result returns the final payload of a DONE run.
func (o *Orchestrator) Result() (entity.Payload, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch o.state {
	case constants.RunStateDone:
		return entity.Payload{Classification: o.results}, nil
	case constants.RunStateFailed:
		return entity.Payload{}, o.err
	}
	return entity.Payload{}, fmt.Errorf("run is %s", o.state)
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		RunID:      o.id.String(),
		State:      o.state,
		Steps:      o.steps,
		StepBound:  o.opts.StepBound,
		Batch:      o.batch,
		Texts:      o.texts,
		Units:      o.units,
		Classified: o.classified,
		Results:    o.results,
		ErrorKind:  common.KindOf(o.err),
	}
	for i, st := range constants.CanonicalStages {
		if o.done[i] {
			s.Completed = append(s.Completed, st)
		}
	}
	return s
}

// sameUnits compares units restated by a controller with the classified ones.
// Labels are compared after canonicalization, so "Invoice" matches "invoice".
func sameUnits(proposed, classified []entity.DocumentUnit) bool {
	if len(proposed) != len(classified) {
		return false
	}
	for i, u := range proposed {
		if !u.Classified() || u.Text != classified[i].Text {
			return false
		}
		c, ok := constants.Canonicalize(string(u.Classification))
		if !ok || c != classified[i].Classification {
			return false
		}
	}
	return true
}

func unitTexts(units []entity.DocumentUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Text
	}
	return out
}
