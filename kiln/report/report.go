package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kilnci/kiln/kiln/types"
)

// Dir collects everything one run produces: per-step log files and the
// final report.json. It implements the scheduler's output sink.
type Dir struct {
	path string
}

// NewDir creates (or reuses) the run directory under baseDir.
func NewDir(baseDir, runID string) (*Dir, error) {
	path := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Path() string {
	return d.path
}

// StepOutput opens the log file for one step. Combined stdout/stderr of
// the step streams into it while the step runs.
func (d *Dir) StepOutput(stage string, index int) (io.WriteCloser, string, error) {
	name := fmt.Sprintf("%s-%02d.log", stage, index)
	path := filepath.Join(d.path, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create step log %s: %w", path, err)
	}
	return f, path, nil
}

// WriteResult persists the full run report as report.json next to the
// step logs.
func (d *Dir) WriteResult(result *types.RunResult) error {
	path := filepath.Join(d.path, "report.json")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run report %s: %w", path, err)
	}
	return nil
}
