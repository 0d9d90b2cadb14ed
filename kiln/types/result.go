package types

import "time"

// Status is the terminal outcome of a step, a stage, or the whole job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Reason codes attached to failed steps. A timed-out step is still a
// step failure, the reason only distinguishes it in the report.
const (
	ReasonExit      = "exit"
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonSpawn     = "spawn"
)

// StepResult records the outcome of one executed (or skipped) step.
type StepResult struct {
	Stage    string        `json:"stage"`
	Index    int           `json:"index"`
	Command  string        `json:"command"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
	LogPath  string        `json:"log_path,omitempty"`
}

// StageResult aggregates the step outcomes of one stage.
type StageResult struct {
	Name     string        `json:"name"`
	Policy   string        `json:"policy"`
	Status   Status        `json:"status"`
	Steps    []StepResult  `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// RunResult is the full report for one job run. It is built up as the
// orchestrator progresses and is always emitted, even when the job
// fails before any stage runs.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Branch    string        `json:"branch,omitempty"`
	Image     string        `json:"image,omitempty"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Stages    []StageResult `json:"stages"`
}

func (r *RunResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

func (r *RunResult) Failed() bool {
	return r.Status == StatusFailed
}
