package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kilnci/kiln/kiln/schema"
	"github.com/kilnci/kiln/kiln/types"
	"github.com/wzshiming/ctc"
)

// Output writes human-facing run progress. It doubles as the
// scheduler's observer.
type Output struct {
	stdout io.Writer
	stderr io.Writer
}

func NewOutput(stdout, stderr io.Writer) *Output {
	return &Output{
		stdout: stdout,
		stderr: stderr,
	}
}

// Header prints a formatted section header
func (o *Output) Header(text string) {
	fmt.Fprintf(o.stdout, "\n%s\n", strings.Repeat("=", len(text)))
	fmt.Fprintf(o.stdout, "%s\n", text)
	fmt.Fprintf(o.stdout, "%s\n\n", strings.Repeat("=", len(text)))
}

// Info prints an informational message
func (o *Output) Info(format string, args ...any) {
	fmt.Fprintf(o.stdout, format+"\n", args...)
}

// Success prints a success message with checkmark
func (o *Output) Success(format string, args ...any) {
	fmt.Fprintf(o.stdout, "✓ "+format+"\n", args...)
}

// Error prints an error message
func (o *Output) Error(format string, args ...any) {
	fmt.Fprintf(o.stderr, o.dotRed()+" "+format+"\n", args...)
}

// Warning prints a warning message
func (o *Output) Warning(format string, args ...any) {
	fmt.Fprintf(o.stdout, "⚠ "+format+"\n", args...)
}

// RunStarted prints the run header
func (o *Output) RunStarted(runtime *types.Runtime) {
	o.Header(fmt.Sprintf("Run: %s", runtime.RunID))
	if runtime.Branch != "" {
		o.Info("Branch: %s", runtime.Branch)
	}
	if runtime.Image != "" {
		o.Info("Image: %s", runtime.Image)
	}
	o.Info("Started: %s", time.Now().Format(time.RFC3339))
}

// RunCompleted prints the run completion summary
func (o *Output) RunCompleted(duration time.Duration) {
	o.Success("Job completed successfully")
	o.Info("Duration: %s", duration)
}

// RunSkipped explains why the whole job did not run
func (o *Output) RunSkipped(branch string) {
	o.Warning("Branch %q not in the allow-list, job skipped", branch)
}

// RunFailed prints the failure note with the originating error
func (o *Output) RunFailed(err error) {
	o.Error("Job failed")
	if err != nil {
		o.Info("Error: %v", err)
	}
}

// ServiceStarting announces a service being provisioned
func (o *Output) ServiceStarting(ref schema.ServiceRef) {
	o.Info("Starting service %s (probe: %s)", ref.Name, ref.Probe.Kind())
}

// StageStarted implements the scheduler observer
func (o *Output) StageStarted(stage schema.Stage) {
	fmt.Fprintf(o.stdout, "\n%sStage: %s%s (%s, %d steps)\n",
		ctc.ForegroundCyan, stage.Name, ctc.Reset, stage.Policy, len(stage.Steps))
}

// StageFinished implements the scheduler observer
func (o *Output) StageFinished(result types.StageResult) {
	switch result.Status {
	case types.StatusSuccess:
		o.Success("Stage %s completed (%s)", result.Name, result.Duration.Round(time.Millisecond))
	case types.StatusFailed:
		o.Error("Stage %s failed", result.Name)
	default:
		o.Warning("Stage %s skipped", result.Name)
	}
}

// StepStarted implements the scheduler observer
func (o *Output) StepStarted(stage string, index, total int, command string) {
	fmt.Fprintf(o.stdout, "  [%d/%d] %s\n", index+1, total, command)
}

// StepFinished implements the scheduler observer
func (o *Output) StepFinished(result types.StepResult) {
	switch result.Status {
	case types.StatusFailed:
		detail := fmt.Sprintf("exit %d", result.ExitCode)
		if result.Reason != "" && result.Reason != types.ReasonExit {
			detail = result.Reason
		}
		o.Error("step %d failed (%s)", result.Index+1, detail)
	case types.StatusSkipped:
		fmt.Fprintf(o.stdout, "  %s- step %d skipped%s\n", ctc.ForegroundYellow, result.Index+1, ctc.Reset)
	}
}

func (o *Output) dotRed() string {
	return fmt.Sprint(ctc.ForegroundRed, "•", ctc.Reset)
}
