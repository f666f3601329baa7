package constants

// RunState is the orchestrator state of a single pipeline run.
type RunState string

// Stable values (store these exact strings in DB).
const (
	RunStateIdle        RunState = "IDLE"
	RunStateSeparating  RunState = "SEPARATING"
	RunStateRecognizing RunState = "RECOGNIZING"
	RunStateMerging     RunState = "MERGING"
	RunStateClassifying RunState = "CLASSIFYING"
	RunStateExtracting  RunState = "EXTRACTING"
	RunStateDone        RunState = "DONE"
	RunStateFailed      RunState = "FAILED"
)

// Terminal reports whether no further stage may run.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateFailed
}

// RunStatus is the persisted lifecycle of a run row.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "QUEUED"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
)
