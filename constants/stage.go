package constants

// Stage names a pipeline stage as seen by the step proposer.
type Stage string

const (
	StageSeparate Stage = "separateDocuments"
	StageOCR      Stage = "runOCR"
	StageMerge    Stage = "mergeDocuments"
	StageClassify Stage = "classifyDocument"
	StageExtract  Stage = "extractFields"
)

// CanonicalStages is the only valid stage order.
var CanonicalStages = []Stage{StageSeparate, StageOCR, StageMerge, StageClassify, StageExtract}

// Index returns the position of s in CanonicalStages, or -1.
func (s Stage) Index() int {
	for i, st := range CanonicalStages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// RunningState is the orchestrator state while s executes.
func (s Stage) RunningState() RunState {
	switch s {
	case StageSeparate:
		return RunStateSeparating
	case StageOCR:
		return RunStateRecognizing
	case StageMerge:
		return RunStateMerging
	case StageClassify:
		return RunStateClassifying
	case StageExtract:
		return RunStateExtracting
	}
	return RunStateIdle
}
