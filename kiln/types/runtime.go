package types

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Runtime carries the per-run identity and the resolved environment.
// One Runtime exists per job run and is never shared across runs.
type Runtime struct {
	RunID  string
	Branch string
	Image  string
	Env    map[string]string
	LogDir string
}

// NewRuntime builds a run context from the resolved environment.
// KILN_* built-ins are injected last and cannot be overridden by any
// environment source.
func NewRuntime(branch, image string, resolvedEnv map[string]string, logDir string) *Runtime {
	runID := uuid.New().String()

	env := make(map[string]string, len(resolvedEnv)+3)
	for k, v := range resolvedEnv {
		env[k] = v
	}
	env["KILN_RUN_ID"] = runID
	env["KILN_BRANCH"] = branch
	env["KILN_IMAGE"] = image

	return &Runtime{
		RunID:  runID,
		Branch: branch,
		Image:  image,
		Env:    env,
		LogDir: logDir,
	}
}

// EnvSlice renders the environment in KEY=VALUE form for process
// spawning. Keys are sorted so spawned commands see a stable order.
func (r *Runtime) EnvSlice() []string {
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	envSlice := make([]string, 0, len(keys))
	for _, k := range keys {
		envSlice = append(envSlice, fmt.Sprintf("%s=%s", k, r.Env[k]))
	}
	return envSlice
}
