package scheduler

import "github.com/kilnci/kiln/kiln/types"

// State is the lifecycle of one stage inside the scheduler. Terminal
// states map 1:1 onto report statuses; Pending and Running never leak
// into results.
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func (s State) status() types.Status {
	switch s {
	case Completed:
		return types.StatusSuccess
	case Failed:
		return types.StatusFailed
	default:
		return types.StatusSkipped
	}
}
