package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kilnci/kiln/kiln/types"
)

// Summary renders the per-stage, per-step breakdown as a table. It is
// always printed, even when the job failed before any stage ran.
func Summary(w io.Writer, result *types.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Step", "Command", "Status", "Exit", "Duration"})

	for _, stage := range result.Stages {
		for _, step := range stage.Steps {
			t.AppendRow(table.Row{
				stage.Name,
				step.Index + 1,
				truncate(step.Command, 48),
				statusCell(step.Status, step.Reason),
				exitCell(step),
				durationCell(step.Duration),
			})
		}
		t.AppendSeparator()
	}

	t.AppendFooter(table.Row{"job", "", "", statusCell(result.Status, ""), "", durationCell(result.Duration())})
	t.Render()

	if result.Error != "" {
		fmt.Fprintf(w, "error: %s\n", result.Error)
	}
}

func statusCell(status types.Status, reason string) string {
	label := string(status)
	if reason != "" && reason != types.ReasonExit {
		label = fmt.Sprintf("%s (%s)", status, reason)
	}

	switch status {
	case types.StatusSuccess:
		return text.FgGreen.Sprint(label)
	case types.StatusFailed:
		return text.FgRed.Sprint(label)
	default:
		return text.FgYellow.Sprint(label)
	}
}

func exitCell(step types.StepResult) string {
	if step.Status == types.StatusSkipped {
		return "-"
	}
	return fmt.Sprintf("%d", step.ExitCode)
}

func durationCell(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
