package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/kilnci/kiln/kiln/schema"
	"github.com/kilnci/kiln/kiln/types"
)

const defaultGracePeriod = 5 * time.Second

// Local runs steps as child processes of the engine. Each step gets its
// own process group so that termination reaches the whole shell tree,
// not just the immediate child.
type Local struct {
	// Shell interprets the step command. Defaults to /bin/sh.
	Shell string

	// StepTimeout bounds a single step. Zero disables the per-step
	// timeout; job-level cancellation still applies through ctx.
	StepTimeout time.Duration

	// GracePeriod between SIGTERM and SIGKILL when a step is
	// terminated. Defaults to 5s.
	GracePeriod time.Duration
}

func NewLocal(stepTimeout time.Duration) *Local {
	return &Local{StepTimeout: stepTimeout}
}

func (l *Local) Run(ctx context.Context, step schema.Step, env []string, output io.Writer) Outcome {
	shell := l.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell, "-c", step.Run)
	cmd.Dir = step.Dir
	cmd.Env = env
	cmd.Stdout = output
	cmd.Stderr = output
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return Outcome{ExitCode: -1, Reason: types.ReasonSpawn, Err: fmt.Errorf("failed to start step: %w", err)}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if l.StepTimeout > 0 {
		timer := time.NewTimer(l.StepTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		return outcomeFromWait(err)

	case <-ctx.Done():
		l.terminate(cmd, done)
		return Outcome{ExitCode: -1, Reason: types.ReasonCancelled, Err: ctx.Err()}

	case <-timeout:
		l.terminate(cmd, done)
		return Outcome{
			ExitCode: -1,
			Reason:   types.ReasonTimeout,
			Err:      fmt.Errorf("step timed out after %s", l.StepTimeout),
		}
	}
}

// terminate asks the process group to exit and escalates to SIGKILL
// after the grace period. It drains the wait channel so the child is
// fully reaped before returning.
func (l *Local) terminate(cmd *exec.Cmd, done <-chan error) {
	grace := l.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	_ = signalProcessGroup(cmd, syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(grace):
		_ = killProcessGroup(cmd)
		<-done
	}
}

func outcomeFromWait(err error) Outcome {
	if err == nil {
		return Outcome{ExitCode: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Outcome{ExitCode: exitErr.ExitCode(), Reason: types.ReasonExit}
	}

	return Outcome{ExitCode: -1, Reason: types.ReasonSpawn, Err: err}
}
