package kiln

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kilnci/kiln/kiln/loader"
	"github.com/kilnci/kiln/kiln/orchestrator"
	"github.com/kilnci/kiln/kiln/remote"
	"github.com/kilnci/kiln/kiln/report"
	"github.com/kilnci/kiln/kiln/runner"
	"github.com/kilnci/kiln/kiln/secrets"
	"github.com/kilnci/kiln/kiln/service"
	"github.com/kilnci/kiln/kiln/types"
	"github.com/kilnci/kiln/kiln/ui"
	"github.com/kilnci/kiln/kiln/utils"
	"github.com/spf13/cobra"
	"github.com/wzshiming/ctc"
)

type Kiln struct {
	stdout *os.File
	stderr *os.File
	loader *loader.Loader
}

func New(stdout, stderr *os.File) *Kiln {
	return &Kiln{
		stdout: stdout,
		stderr: stderr,
		loader: loader.New(),
	}
}

func (k *Kiln) Run() {
	rootCmd := &cobra.Command{
		Use:     "kiln",
		Short:   "Kiln - CI pipeline execution engine",
		Long:    "Kiln runs declarative CI pipelines: it provisions dependent services, resolves the environment, and executes install/test/finish stages with fail-fast and always-run semantics.",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(
		k.buildRunCommand(),
		k.buildValidateCommand(),
		k.buildInitCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(k.stderr, "%sError:%s %v\n", ctc.ForegroundRed, ctc.Reset, err)
		os.Exit(1)
	}
}

type runFlags struct {
	branch         string
	envVars        []string
	secretsFile    string
	secretsFromEnv bool
	timeout        time.Duration
	stepTimeout    time.Duration
	logsDir        string
	runtimeCLI     string
	sshTarget      string
	sshKey         string
	upload         bool
	dryRun         bool
}

func (k *Kiln) buildRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:           "run [pipeline.yaml]",
		Short:         "Execute a pipeline",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return k.runPipeline(args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.branch, "branch", "b", "", "Current branch, checked against the pipeline's branch filter")
	cmd.Flags().StringSliceVarP(&flags.envVars, "env", "e", nil, "Runner default environment variables (KEY=VALUE, lowest precedence)")
	cmd.Flags().StringVar(&flags.secretsFile, "secrets-file", "", "YAML file with secret values (highest precedence)")
	cmd.Flags().BoolVar(&flags.secretsFromEnv, "secrets-from-env", false, "Read required secrets from the process environment")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Job-level timeout (0 = none)")
	cmd.Flags().DurationVar(&flags.stepTimeout, "step-timeout", 0, "Per-step timeout (0 = none)")
	cmd.Flags().StringVar(&flags.logsDir, "logs-dir", ".kiln/runs", "Directory for per-run step logs and reports")
	cmd.Flags().StringVar(&flags.runtimeCLI, "runtime", "docker", "Container runtime CLI used to start services")
	cmd.Flags().StringVar(&flags.sshTarget, "ssh", "", "Run steps on a remote host (user@addr) instead of locally")
	cmd.Flags().StringVar(&flags.sshKey, "ssh-key", "~/.ssh/id_ed25519", "SSH private key for --ssh")
	cmd.Flags().BoolVar(&flags.upload, "upload", false, "Upload the run directory to the object store (KILN_S3_* env)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show what would be executed without running")

	return cmd
}

func (k *Kiln) runPipeline(path string, flags runFlags) error {
	pipeline, err := k.loader.LoadFile(path)
	if err != nil {
		return err
	}

	defaults, err := parseEnvVars(flags.envVars)
	if err != nil {
		return err
	}

	store, err := k.secretStore(pipeline.Secrets.Required, flags)
	if err != nil {
		return err
	}

	stepRunner, cleanup, err := k.stepRunner(flags)
	if err != nil {
		return err
	}
	defer cleanup()

	out := ui.NewOutput(k.stdout, k.stderr)

	orch := orchestrator.New(
		stepRunner,
		func(runID string) service.Supervisor {
			return service.NewContainer(flags.runtimeCLI, containerPrefix(runID), k.stdout)
		},
		func(runID string) (orchestrator.ResultSink, error) {
			return report.NewDir(flags.logsDir, runID)
		},
		out,
	)

	opts := orchestrator.Options{
		Branch:       flags.branch,
		Defaults:     defaults,
		SecretValues: store.All(),
		Timeout:      flags.timeout,
	}

	if flags.dryRun {
		return orch.DryRun(pipeline, opts)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := orch.Execute(ctx, pipeline, opts)
	report.Summary(k.stdout, result)

	if flags.upload && result.Status != types.StatusSkipped {
		k.uploadRun(result.RunID, filepath.Join(flags.logsDir, result.RunID))
	}

	if result.Failed() {
		return fmt.Errorf("job failed")
	}
	return nil
}

func (k *Kiln) uploadRun(runID, dir string) {
	cfg := report.ObjectStoreConfigFromEnv()
	if !cfg.Enabled() {
		fmt.Fprintln(k.stderr, "upload requested but KILN_S3_ENDPOINT is not set")
		return
	}

	uploader, err := report.NewUploader(cfg)
	if err != nil {
		fmt.Fprintf(k.stderr, "upload skipped: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := uploader.UploadRun(ctx, runID, dir); err != nil {
		fmt.Fprintf(k.stderr, "upload failed: %v\n", err)
		return
	}
	fmt.Fprintf(k.stdout, "run %s uploaded to %s/%s\n", runID, cfg.Endpoint, cfg.Bucket)
}

func (k *Kiln) secretStore(required []string, flags runFlags) (secrets.Store, error) {
	switch {
	case flags.secretsFile != "":
		return secrets.FromFile(flags.secretsFile)
	case flags.secretsFromEnv:
		return secrets.FromEnv(required), nil
	default:
		return secrets.Static(nil), nil
	}
}

func (k *Kiln) stepRunner(flags runFlags) (runner.Runner, func(), error) {
	if flags.sshTarget == "" {
		return runner.NewLocal(flags.stepTimeout), func() {}, nil
	}

	user, addr, ok := strings.Cut(flags.sshTarget, "@")
	if !ok {
		return nil, nil, fmt.Errorf("invalid --ssh target %q (expected user@addr)", flags.sshTarget)
	}

	client := remote.NewClient()
	host := remote.Host{
		Name:    addr,
		Address: addr,
		User:    user,
		KeyPath: flags.sshKey,
	}
	return remote.NewRunner(client, host, flags.stepTimeout), func() { _ = client.Close() }, nil
}

func (k *Kiln) buildValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "validate [path...]",
		Short:         "Validate pipeline descriptors without running them",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return k.validatePaths(args)
		},
	}
	return cmd
}

func (k *Kiln) validatePaths(paths []string) error {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() && utils.HasDescriptorExtension(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if len(files) == 0 {
		return fmt.Errorf("no pipeline descriptors found")
	}

	failed := 0
	for _, file := range files {
		if _, err := k.loader.LoadFile(file); err != nil {
			fmt.Fprintf(k.stderr, "%s✗%s %s: %v\n", ctc.ForegroundRed, ctc.Reset, file, err)
			failed++
			continue
		}
		fmt.Fprintf(k.stdout, "%s✓%s %s\n", ctc.ForegroundGreen, ctc.Reset, file)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d descriptors invalid", failed, len(files))
	}
	return nil
}

func parseEnvVars(envVars []string) (map[string]string, error) {
	env := make(map[string]string)
	for _, ev := range envVars {
		name, value, ok := strings.Cut(ev, "=")
		if !ok {
			return nil, fmt.Errorf("invalid environment variable format: %s (expected KEY=VALUE)", ev)
		}
		env[name] = value
	}
	return env, nil
}

func containerPrefix(runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return "kiln-" + short
}
