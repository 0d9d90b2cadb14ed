package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kilnci/kiln/kiln/runner"
	"github.com/kilnci/kiln/kiln/schema"
	"github.com/kilnci/kiln/kiln/types"
	"golang.org/x/crypto/ssh"
)

// Runner executes steps on a remote host over SSH. It satisfies the
// same contract as the local backend: non-zero exits are outcomes, not
// errors.
type Runner struct {
	client Client
	host   Host

	// StepTimeout bounds a single step. Zero disables it.
	StepTimeout time.Duration
}

func NewRunner(client Client, host Host, stepTimeout time.Duration) *Runner {
	return &Runner{
		client:      client,
		host:        host,
		StepTimeout: stepTimeout,
	}
}

func (r *Runner) Run(ctx context.Context, step schema.Step, env []string, output io.Writer) runner.Outcome {
	sess, err := r.client.Connect(ctx, r.host)
	if err != nil {
		return runner.Outcome{ExitCode: -1, Reason: types.ReasonSpawn, Err: err}
	}
	defer sess.Close()

	runCtx := ctx
	if r.StepTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.StepTimeout)
		defer cancel()
	}

	err = sess.Run(runCtx, buildCommand(step, env), output, output)
	if err == nil {
		return runner.Outcome{ExitCode: 0}
	}

	// Distinguish why the run ended before looking at exit codes: a
	// deadline on runCtx is a step timeout, the parent ctx going away
	// is job cancellation.
	if runCtx.Err() != nil && ctx.Err() == nil {
		return runner.Outcome{
			ExitCode: -1,
			Reason:   types.ReasonTimeout,
			Err:      fmt.Errorf("step timed out after %s", r.StepTimeout),
		}
	}
	if ctx.Err() != nil {
		return runner.Outcome{ExitCode: -1, Reason: types.ReasonCancelled, Err: ctx.Err()}
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return runner.Outcome{ExitCode: exitErr.ExitStatus(), Reason: types.ReasonExit}
	}

	return runner.Outcome{ExitCode: -1, Reason: types.ReasonSpawn, Err: err}
}

// buildCommand renders the step as a single remote shell line: exported
// environment, optional working directory, then the opaque command.
func buildCommand(step schema.Step, env []string) string {
	var b strings.Builder

	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "export %s=%s; ", name, shellQuote(value))
	}

	if step.Dir != "" {
		fmt.Fprintf(&b, "cd %s && ", shellQuote(step.Dir))
	}

	b.WriteString(step.Run)
	return b.String()
}

// shellQuote single-quotes a value for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
