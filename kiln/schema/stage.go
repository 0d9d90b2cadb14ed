package schema

import "fmt"

// Canonical stage names for the fixed descriptor keys.
const (
	StageInstall = "install"
	StageTest    = "test"
	StageFinish  = "on_finish"
)

// Policy controls how a stage reacts to upstream and in-stage failures.
type Policy string

const (
	// PolicyFailFast stops the stage on the first failed step and skips
	// every later fail-fast stage.
	PolicyFailFast Policy = "fail-fast"

	// PolicyAlwaysRun executes the stage even when an earlier stage
	// failed or was skipped. Used for cleanup and upload stages.
	PolicyAlwaysRun Policy = "always-run"
)

// Stage is a named, ordered group of steps sharing one policy.
type Stage struct {
	Name   string
	Policy Policy
	Steps  []Step
}

// Step is one opaque external command. The engine never interprets the
// command text; it only spawns it and records the outcome.
type Step struct {
	Run string `yaml:"run"`
	Dir string `yaml:"dir,omitempty"`
}

// UnmarshalYAML accepts either a scalar command string or a {run, dir}
// mapping, so descriptors can stay terse for the common case.
func (s *Step) UnmarshalYAML(unmarshal func(any) error) error {
	var command string
	if err := unmarshal(&command); err == nil {
		s.Run = command
		s.Dir = ""
		return nil
	}

	type rawStep Step
	var raw rawStep
	if err := unmarshal(&raw); err != nil {
		return fmt.Errorf("step must be a command string or a {run, dir} mapping: %w", err)
	}
	*s = Step(raw)
	return nil
}
