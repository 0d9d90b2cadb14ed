package runner

import (
	"context"
	"io"

	"github.com/kilnci/kiln/kiln/schema"
	"github.com/kilnci/kiln/kiln/types"
)

// Runner executes one opaque step and reports its outcome. A non-zero
// exit is a step failure carried in the Outcome, never a Go error; only
// the scheduler decides what a failure means for the rest of the job.
type Runner interface {
	Run(ctx context.Context, step schema.Step, env []string, output io.Writer) Outcome
}

// Outcome is the raw observation of one step execution.
type Outcome struct {
	ExitCode int
	Reason   string // types.Reason* code, empty on success
	Err      error  // spawn/transport error detail, nil for a plain non-zero exit
}

func (o Outcome) Success() bool {
	return o.ExitCode == 0 && o.Err == nil && o.Reason == ""
}

// Status maps the outcome onto a report status.
func (o Outcome) Status() types.Status {
	if o.Success() {
		return types.StatusSuccess
	}
	return types.StatusFailed
}
