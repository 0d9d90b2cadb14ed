package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/kilnci/kiln/kiln/env"
	"github.com/kilnci/kiln/kiln/runner"
	"github.com/kilnci/kiln/kiln/scheduler"
	"github.com/kilnci/kiln/kiln/schema"
	"github.com/kilnci/kiln/kiln/service"
	"github.com/kilnci/kiln/kiln/types"
	"github.com/kilnci/kiln/kiln/ui"
)

// SupervisorFactory builds the service supervisor for one run. The run
// ID is only known once the runtime exists, so supervisors that scope
// resources by run (container names) are constructed late.
type SupervisorFactory func(runID string) service.Supervisor

// ResultSink receives the run's step output and the final report.
// report.Dir is the production implementation.
type ResultSink interface {
	scheduler.OutputSink
	Path() string
	WriteResult(result *types.RunResult) error
}

// SinkFactory builds the per-run result sink.
type SinkFactory func(runID string) (ResultSink, error)

// Options are the runner-provided inputs for one job run, everything
// that is not part of the descriptor itself.
type Options struct {
	// Branch the job runs for, checked against the descriptor's
	// branch filter.
	Branch string

	// Defaults is the lowest-precedence environment source.
	Defaults map[string]string

	// SecretValues is the highest-precedence environment source.
	SecretValues map[string]string

	// Timeout bounds the whole job. Zero disables it.
	Timeout time.Duration
}

// Orchestrator drives one job run end to end: branch filter, secret
// resolution, service provisioning, stage scheduling, cleanup, report.
// Component faults become a failed RunResult; Execute never panics and
// never leaves a started service running.
type Orchestrator struct {
	runner        runner.Runner
	newSupervisor SupervisorFactory
	newSink       SinkFactory
	out           *ui.Output
}

func New(r runner.Runner, newSupervisor SupervisorFactory, newSink SinkFactory, out *ui.Output) *Orchestrator {
	return &Orchestrator{
		runner:        r,
		newSupervisor: newSupervisor,
		newSink:       newSink,
		out:           out,
	}
}

// Execute runs the pipeline and always returns a complete RunResult,
// with skipped entries filled in for any stage that never ran.
func (o *Orchestrator) Execute(ctx context.Context, pipeline *schema.Pipeline, opts Options) *types.RunResult {
	stages := pipeline.Stages()

	// Branch filter comes first: a filtered-out job touches nothing,
	// not even the secret store.
	if !pipeline.Branches.Allows(opts.Branch) {
		o.out.RunSkipped(opts.Branch)
		runtime := types.NewRuntime(opts.Branch, pipeline.Image, nil, "")
		now := time.Now()
		return &types.RunResult{
			RunID:     runtime.RunID,
			Branch:    opts.Branch,
			Image:     pipeline.Image,
			Status:    types.StatusSkipped,
			StartTime: now,
			EndTime:   now,
			Stages:    scheduler.SkipAll(stages),
		}
	}

	// Resolve the environment before any service starts so a missing
	// secret fails the job without side effects.
	resolved, err := env.Resolve(opts.Defaults, pipeline.Env, opts.SecretValues, pipeline.Secrets.Required)
	if err != nil {
		runtime := types.NewRuntime(opts.Branch, pipeline.Image, nil, "")
		return o.fail(&types.RunResult{
			RunID:     runtime.RunID,
			Branch:    opts.Branch,
			Image:     pipeline.Image,
			StartTime: time.Now(),
			Stages:    scheduler.SkipAll(stages),
		}, err)
	}

	runtime := types.NewRuntime(opts.Branch, pipeline.Image, resolved, "")
	o.out.RunStarted(runtime)

	result := &types.RunResult{
		RunID:     runtime.RunID,
		Branch:    opts.Branch,
		Image:     pipeline.Image,
		StartTime: time.Now(),
	}

	sink, err := o.newSink(runtime.RunID)
	if err != nil {
		result.Stages = scheduler.SkipAll(stages)
		return o.fail(result, err)
	}
	runtime.LogDir = sink.Path()

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	supervisor := o.newSupervisor(runtime.RunID)

	handles, startErr := o.startServices(runCtx, supervisor, pipeline.Services)

	// Every started service is stopped exactly once, no matter how the
	// run ends. Stop is best-effort by contract and does not observe
	// the (possibly cancelled) run context.
	defer func() {
		for _, handle := range handles {
			supervisor.Stop(handle)
		}
	}()

	if startErr != nil {
		result.Stages = scheduler.SkipAll(stages)
		o.fail(result, startErr)
		o.writeReport(sink, result)
		return result
	}

	sched := scheduler.New(o.runner, sink, o.out)
	stageResults, status := sched.Run(runCtx, stages, runtime.EnvSlice())
	result.Stages = stageResults
	result.Status = status
	result.EndTime = time.Now()

	o.writeReport(sink, result)

	if result.Failed() {
		o.out.RunFailed(nil)
	} else {
		o.out.RunCompleted(result.Duration())
	}
	return result
}

// DryRun prints what Execute would do without starting services or
// spawning steps. The environment is still resolved so missing secrets
// surface during a dry run too.
func (o *Orchestrator) DryRun(pipeline *schema.Pipeline, opts Options) error {
	o.out.Header("DRY-RUN")

	if !pipeline.Branches.Allows(opts.Branch) {
		o.out.Warning("Branch %q not in the allow-list; the job would be skipped", opts.Branch)
		return nil
	}

	if _, err := env.Resolve(opts.Defaults, pipeline.Env, opts.SecretValues, pipeline.Secrets.Required); err != nil {
		return err
	}

	for _, ref := range pipeline.Services {
		o.out.Info("service: %s (image: %s, probe: %s)", ref.Name, ref.Image, ref.Probe.Kind())
	}

	for _, stage := range pipeline.Stages() {
		o.out.Info("\nstage %s (%s):", stage.Name, stage.Policy)
		for _, step := range stage.Steps {
			if step.Dir != "" {
				o.out.Info("  - %s (dir: %s)", step.Run, step.Dir)
			} else {
				o.out.Info("  - %s", step.Run)
			}
		}
	}

	return nil
}

// startServices provisions every declared service concurrently and
// waits until all are ready. Handles are returned for every service
// that actually started, including ones that failed their readiness
// probe, so the caller can stop them.
func (o *Orchestrator) startServices(ctx context.Context, supervisor service.Supervisor, refs []schema.ServiceRef) ([]*service.Handle, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	type startResult struct {
		handle *service.Handle
		err    error
	}

	results := make(chan startResult, len(refs))
	var wg sync.WaitGroup

	for _, ref := range refs {
		wg.Add(1)
		go func(ref schema.ServiceRef) {
			defer wg.Done()

			o.out.ServiceStarting(ref)

			handle, err := supervisor.Start(ctx, ref)
			if err != nil {
				results <- startResult{err: err}
				return
			}

			if err := supervisor.WaitReady(ctx, handle); err != nil {
				results <- startResult{handle: handle, err: err}
				return
			}

			results <- startResult{handle: handle}
		}(ref)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var handles []*service.Handle
	var firstErr error
	for res := range results {
		if res.handle != nil {
			handles = append(handles, res.handle)
		}
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
	}

	return handles, firstErr
}

func (o *Orchestrator) writeReport(sink ResultSink, result *types.RunResult) {
	// The report must exist even for failed runs; a write failure is
	// only worth a warning.
	if err := sink.WriteResult(result); err != nil {
		o.out.Warning("failed to write run report: %v", err)
	}
}

func (o *Orchestrator) fail(result *types.RunResult, err error) *types.RunResult {
	result.Status = types.StatusFailed
	result.Error = err.Error()
	result.EndTime = time.Now()
	o.out.RunFailed(err)
	return result
}
