package schema

import (
	"fmt"
	"time"
)

// ServiceRef declares an auxiliary service the job depends on, e.g. a
// database. The service must pass its readiness probe before any stage
// runs.
type ServiceRef struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image,omitempty"`
	Probe Probe  `yaml:"probe"`
}

// Probe describes how readiness of a service is observed. Exactly one of
// TCP, HTTP or Cmd must be set; the loader enforces this.
type Probe struct {
	// TCP is a host:port address that must accept a connection.
	TCP string `yaml:"tcp,omitempty"`

	// HTTP is a URL that must answer with a 2xx status.
	HTTP string `yaml:"http,omitempty"`

	// Cmd is a shell command that must exit 0.
	Cmd string `yaml:"cmd,omitempty"`

	// Timeout bounds the whole readiness wait. Zero means the
	// supervisor default.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Interval between probe attempts. Zero means the supervisor
	// default.
	Interval Duration `yaml:"interval,omitempty"`
}

// Duration wraps time.Duration so descriptors can say "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Kind returns a short label for the probe type, used in logs and
// dry-run output.
func (p Probe) Kind() string {
	switch {
	case p.TCP != "":
		return "tcp"
	case p.HTTP != "":
		return "http"
	case p.Cmd != "":
		return "cmd"
	default:
		return "none"
	}
}
