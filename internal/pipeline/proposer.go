package pipeline

import (
	"context"

	"github.com/joseph-ayodele/billing-parser/constants"
	"github.com/joseph-ayodele/billing-parser/internal/common"
)

// Proposer decides which stage runs next. It stands in for the external
// controller; the orchestrator enforces every rule regardless of what it proposes.
type Proposer interface {
	// Next returns the next proposal, or ok=false to stop proposing.
	Next(ctx context.Context, snap Snapshot) (p Proposal, ok bool, err error)
}

// CanonicalProposer proposes Separate, OCR, Merge, Classify, Extract in turn,
// restating the inputs it saw in the snapshot.
type CanonicalProposer struct{}

func (CanonicalProposer) Next(_ context.Context, snap Snapshot) (Proposal, bool, error) {
	if snap.State == constants.RunStateDone {
		return Proposal{}, false, nil
	}
	for _, st := range constants.CanonicalStages {
		if snap.HasCompleted(st) {
			continue
		}
		p := Proposal{Stage: st}
		switch st {
		case constants.StageClassify:
			p.Texts = unitTexts(snap.Units)
		case constants.StageExtract:
			p.Units = snap.Classified
		}
		return p, true, nil
	}
	return Proposal{}, false, nil
}

// SequenceProposer replays a fixed list of stages, e.g. one chosen by a remote client.
type SequenceProposer struct {
	Stages []constants.Stage
	next   int
}

func NewSequenceProposer(stages ...constants.Stage) *SequenceProposer {
	return &SequenceProposer{Stages: stages}
}

func (s *SequenceProposer) Next(_ context.Context, _ Snapshot) (Proposal, bool, error) {
	if s.next >= len(s.Stages) {
		return Proposal{}, false, nil
	}
	st := s.Stages[s.next]
	s.next++
	return Proposal{Stage: st}, true, nil
}

// Drive feeds proposals to o until the run ends or the proposer stops, then
// finishes the run. The returned error is the run's terminal failure.
func Drive(ctx context.Context, o *Orchestrator, p Proposer) error {
	for {
		snap := o.Snapshot()
		if snap.State.Terminal() {
			break
		}
		prop, ok, err := p.Next(ctx, snap)
		if err != nil {
			return o.Abort(common.WrapError(err, "proposer"))
		}
		if !ok {
			break
		}
		if _, err := o.Propose(ctx, prop); err != nil {
			return o.Err()
		}
	}
	return o.Finish(ctx)
}
