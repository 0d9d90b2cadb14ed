package scheduler

import (
	"context"
	"io"
	"time"

	"github.com/kilnci/kiln/kiln/runner"
	"github.com/kilnci/kiln/kiln/schema"
	"github.com/kilnci/kiln/kiln/types"
)

// OutputSink hands out a destination for one step's combined output and
// the location it will be readable at afterwards.
type OutputSink interface {
	StepOutput(stage string, index int) (io.WriteCloser, string, error)
}

// Observer receives progress notifications while the scheduler runs.
// All methods are optional courtesy calls; the scheduler never depends
// on their behavior.
type Observer interface {
	StageStarted(stage schema.Stage)
	StageFinished(result types.StageResult)
	StepStarted(stage string, index, total int, command string)
	StepFinished(result types.StepResult)
}

type noopObserver struct{}

func (noopObserver) StageStarted(schema.Stage)            {}
func (noopObserver) StageFinished(types.StageResult)      {}
func (noopObserver) StepStarted(string, int, int, string) {}
func (noopObserver) StepFinished(types.StepResult)        {}

// Scheduler drives the ordered stage list through the stage state
// machine: fail-fast stages stop at the first failed step and poison
// every later fail-fast stage, always-run stages execute regardless.
type Scheduler struct {
	runner   runner.Runner
	sink     OutputSink
	observer Observer
}

func New(r runner.Runner, sink OutputSink, observer Observer) *Scheduler {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Scheduler{
		runner:   r,
		sink:     sink,
		observer: observer,
	}
}

// Run executes the stages strictly in order and returns the per-stage
// results plus the aggregate job status. The job is Failed iff a
// fail-fast stage failed or the run was cancelled; a failure inside an
// always-run stage is recorded but does not fail the job.
func (s *Scheduler) Run(ctx context.Context, stages []schema.Stage, env []string) ([]types.StageResult, types.Status) {
	results := make([]types.StageResult, 0, len(stages))

	failed := false
	cancelled := false

	for _, stage := range stages {
		state := Pending

		switch {
		case cancelled:
			state = Skipped
		case failed && stage.Policy != schema.PolicyAlwaysRun:
			state = Skipped
		default:
			state = Running
		}

		if state == Skipped {
			results = append(results, skippedStage(stage))
			continue
		}

		s.observer.StageStarted(stage)
		result, stageCancelled := s.runStage(ctx, stage, env)
		s.observer.StageFinished(result)
		results = append(results, result)

		if stageCancelled {
			cancelled = true
			failed = true
			continue
		}
		if result.Status == types.StatusFailed && stage.Policy == schema.PolicyFailFast {
			failed = true
		}
	}

	if failed {
		return results, types.StatusFailed
	}
	return results, types.StatusSuccess
}

func (s *Scheduler) runStage(ctx context.Context, stage schema.Stage, env []string) (types.StageResult, bool) {
	start := time.Now()
	state := Running
	cancelled := false

	steps := make([]types.StepResult, 0, len(stage.Steps))

	for i, step := range stage.Steps {
		if state == Failed || cancelled {
			steps = append(steps, types.StepResult{
				Stage:   stage.Name,
				Index:   i,
				Command: step.Run,
				Status:  types.StatusSkipped,
			})
			continue
		}

		s.observer.StepStarted(stage.Name, i, len(stage.Steps), step.Run)
		result := s.runStep(ctx, stage.Name, i, step, env)
		s.observer.StepFinished(result)
		steps = append(steps, result)

		if result.Status == types.StatusFailed {
			state = Failed
			if result.Reason == types.ReasonCancelled {
				cancelled = true
			}
		}
	}

	if state == Running {
		state = Completed
	}

	return types.StageResult{
		Name:     stage.Name,
		Policy:   string(stage.Policy),
		Status:   state.status(),
		Steps:    steps,
		Duration: time.Since(start),
	}, cancelled
}

func (s *Scheduler) runStep(ctx context.Context, stage string, index int, step schema.Step, env []string) types.StepResult {
	result := types.StepResult{
		Stage:   stage,
		Index:   index,
		Command: step.Run,
	}

	out, logPath, err := s.sink.StepOutput(stage, index)
	if err != nil {
		result.Status = types.StatusFailed
		result.ExitCode = -1
		result.Reason = types.ReasonSpawn
		return result
	}
	defer out.Close()
	result.LogPath = logPath

	start := time.Now()
	outcome := s.runner.Run(ctx, step, env, out)
	result.Duration = time.Since(start)

	result.Status = outcome.Status()
	result.ExitCode = outcome.ExitCode
	result.Reason = outcome.Reason
	return result
}

// SkipAll renders the whole stage list as skipped. The orchestrator
// uses it to produce the per-stage breakdown when a job never reaches
// stage execution (branch filter miss, missing secret, service fault).
func SkipAll(stages []schema.Stage) []types.StageResult {
	results := make([]types.StageResult, 0, len(stages))
	for _, stage := range stages {
		results = append(results, skippedStage(stage))
	}
	return results
}

func skippedStage(stage schema.Stage) types.StageResult {
	steps := make([]types.StepResult, 0, len(stage.Steps))
	for i, step := range stage.Steps {
		steps = append(steps, types.StepResult{
			Stage:   stage.Name,
			Index:   i,
			Command: step.Run,
			Status:  types.StatusSkipped,
		})
	}
	return types.StageResult{
		Name:   stage.Name,
		Policy: string(stage.Policy),
		Status: types.StatusSkipped,
		Steps:  steps,
	}
}
