package loader

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kilnci/kiln/kiln/schema"
	"gopkg.in/yaml.v3"
)

// ConfigError marks a malformed descriptor. The job never starts when
// loading returns one.
type ConfigError struct {
	Path   string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid pipeline %s: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("invalid pipeline: %s", e.Detail)
}

type Loader struct{}

func New() *Loader {
	return &Loader{}
}

// LoadFile parses and validates a pipeline descriptor. Unknown keys are
// rejected so typos surface as configuration errors instead of silently
// dropped settings.
func (l *Loader) LoadFile(path string) (*schema.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file %s: %w", path, err)
	}

	pipeline, err := l.Parse(data)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return nil, err
	}
	return pipeline, nil
}

// Parse decodes a descriptor from raw YAML and validates it.
func (l *Loader) Parse(data []byte) (*schema.Pipeline, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var pipeline schema.Pipeline
	if err := dec.Decode(&pipeline); err != nil {
		return nil, &ConfigError{Detail: err.Error()}
	}

	if err := l.Validate(&pipeline); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// Validate checks the descriptor for structural correctness beyond what
// YAML decoding can express.
func (l *Loader) Validate(p *schema.Pipeline) error {
	if len(p.Install) == 0 && len(p.Test) == 0 && len(p.OnFinish) == 0 {
		return &ConfigError{Detail: "pipeline declares no stages"}
	}

	for _, stage := range p.Stages() {
		for i, step := range stage.Steps {
			if strings.TrimSpace(step.Run) == "" {
				return &ConfigError{Detail: fmt.Sprintf("stage %q step %d has an empty command", stage.Name, i)}
			}
		}
	}

	seen := make(map[string]bool, len(p.Services))
	for i, svc := range p.Services {
		if strings.TrimSpace(svc.Name) == "" {
			return &ConfigError{Detail: fmt.Sprintf("service %d has no name", i)}
		}
		if seen[svc.Name] {
			return &ConfigError{Detail: fmt.Sprintf("duplicate service %q", svc.Name)}
		}
		seen[svc.Name] = true

		if err := validateProbe(svc); err != nil {
			return err
		}
	}

	for _, name := range p.Secrets.Required {
		if strings.TrimSpace(name) == "" {
			return &ConfigError{Detail: "secrets.required contains an empty variable name"}
		}
	}

	return nil
}

func validateProbe(svc schema.ServiceRef) error {
	count := 0
	if svc.Probe.TCP != "" {
		count++
	}
	if svc.Probe.HTTP != "" {
		count++
	}
	if svc.Probe.Cmd != "" {
		count++
	}
	if count == 0 {
		return &ConfigError{Detail: fmt.Sprintf("service %q has no readiness probe", svc.Name)}
	}
	if count > 1 {
		return &ConfigError{Detail: fmt.Sprintf("service %q has multiple probe types set", svc.Name)}
	}
	return nil
}
