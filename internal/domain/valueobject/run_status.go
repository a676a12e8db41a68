package valueobject

// RunStatus represents the state of a single backfill run.
// A run starts RUNNING and ends exactly once in DONE or FAILED.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// String returns the string representation of the status.
func (s RunStatus) String() string {
	return string(s)
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s RunStatus) CanTransitionTo(target RunStatus) bool {
	if s != RunStatusRunning {
		return false
	}
	switch target {
	case RunStatusRunning, RunStatusDone, RunStatusFailed:
		return true
	}
	return false
}
