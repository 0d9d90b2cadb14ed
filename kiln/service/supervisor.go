package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kilnci/kiln/kiln/schema"
)

// StartError means a declared service could not be started. It is fatal
// for the job and triggers cleanup of anything started before it.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start service %q: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// TimeoutError means a service started but never passed its readiness
// probe within the allowed window.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("service %q not ready after %s", e.Name, e.Timeout)
}

// Handle identifies one started service instance so it can be stopped
// later. Stop must be attempted for every handle Start returned, even
// when the job fails.
type Handle struct {
	Service schema.ServiceRef
	ID      string
}

// Supervisor starts, readiness-checks and stops auxiliary services.
// Stop is best-effort and never returns an error; a service left behind
// is reported through the supervisor's log writer instead.
type Supervisor interface {
	Start(ctx context.Context, ref schema.ServiceRef) (*Handle, error)
	WaitReady(ctx context.Context, handle *Handle) error
	Stop(handle *Handle)
}

const (
	defaultProbeTimeout  = 60 * time.Second
	defaultProbeInterval = time.Second
)

// Container supervises services through an external container runtime
// CLI (docker, podman). The runtime itself is an injected dependency;
// the engine only shells out to it.
type Container struct {
	// RuntimeCLI is the container runtime binary. Defaults to docker.
	RuntimeCLI string

	// NamePrefix scopes container names to one run so concurrent jobs
	// on the same host cannot collide.
	NamePrefix string

	// Log receives supervisor diagnostics (start/stop notices, stop
	// failures). Defaults to io.Discard.
	Log io.Writer
}

func NewContainer(runtimeCLI, namePrefix string, log io.Writer) *Container {
	if runtimeCLI == "" {
		runtimeCLI = "docker"
	}
	if log == nil {
		log = io.Discard
	}
	return &Container{
		RuntimeCLI: runtimeCLI,
		NamePrefix: namePrefix,
		Log:        log,
	}
}

func (c *Container) Start(ctx context.Context, ref schema.ServiceRef) (*Handle, error) {
	image := ref.Image
	if image == "" {
		image = ref.Name
	}
	name := fmt.Sprintf("%s-%s", c.NamePrefix, ref.Name)

	cmd := exec.CommandContext(ctx, c.RuntimeCLI, "run", "-d", "--name", name, image)
	out, err := cmd.Output()
	if err != nil {
		return nil, &StartError{Name: ref.Name, Err: runtimeError(err)}
	}

	id := strings.TrimSpace(string(out))
	if id == "" {
		id = name
	}

	fmt.Fprintf(c.Log, "service %s started (%s)\n", ref.Name, shortID(id))
	return &Handle{Service: ref, ID: id}, nil
}

func (c *Container) WaitReady(ctx context.Context, handle *Handle) error {
	probe := handle.Service.Probe
	timeout := probe.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	interval := probe.Interval.Std()
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := waitReady(waitCtx, probe, interval); err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return &TimeoutError{Name: handle.Service.Name, Timeout: timeout}
		}
		return err
	}

	fmt.Fprintf(c.Log, "service %s ready\n", handle.Service.Name)
	return nil
}

func (c *Container) Stop(handle *Handle) {
	if handle == nil {
		return
	}

	// Deliberately not bound to the job context: cleanup must run even
	// after cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.RuntimeCLI, "rm", "-f", handle.ID)
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(c.Log, "warning: failed to stop service %s: %v\n", handle.Service.Name, runtimeError(err))
		return
	}
	fmt.Fprintf(c.Log, "service %s stopped\n", handle.Service.Name)
}

// runtimeError surfaces the runtime's stderr when the CLI exits
// non-zero, which is where docker puts the useful message.
func runtimeError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
