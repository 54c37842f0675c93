package anonymizer

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

//go:embed bridge.py
var bridgeScript string

// Exit codes of the bridge script.
// Any other non-zero status is a permanent anonymization failure.
const (
	exitUnavailable = 2
	exitTransient   = 3
)

// DefaultProbeTimeout bounds the library availability check done when a
// CommandClient is created.
const DefaultProbeTimeout = 30 * time.Second

// CommandClient runs gdpr-helpers through the Python bridge script.
type CommandClient struct {
	settings     Settings
	runner       CommandRunner
	logger       *slog.Logger
	probeTimeout time.Duration

	// workDir is the directory the library writes its "artifacts"
	// directory into.
	workDir string

	// artifactsDir is the absolute artifacts directory.
	artifactsDir string
}

// CommandClientOption configures a CommandClient.
type CommandClientOption func(*CommandClient)

// WithRunner sets the CommandRunner. The default is an ExecRunner.
func WithRunner(r CommandRunner) CommandClientOption {
	return func(c *CommandClient) {
		c.runner = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CommandClientOption {
	return func(c *CommandClient) {
		c.logger = logger
	}
}

// WithProbeTimeout sets the timeout of the availability check.
func WithProbeTimeout(d time.Duration) CommandClientOption {
	return func(c *CommandClient) {
		c.probeTimeout = d
	}
}

// NewCommandClient validates settings and checks that the interpreter can
// import gdpr-helpers. Errors wrap ErrInvalidSettings or ErrLibraryUnavailable.
func NewCommandClient(ctx context.Context, settings Settings, opts ...CommandClientOption) (*CommandClient, error) {
	c := &CommandClient{
		settings:     settings,
		logger:       slog.Default(),
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = NewExecRunner(c.logger)
	}
	if c.settings.Python == "" {
		c.settings.Python = "python3"
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var err error
	if c.artifactsDir, err = filepath.Abs(settings.ArtifactsDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	c.workDir = filepath.Dir(c.artifactsDir)
	if c.settings.TransformsConfig, err = filepath.Abs(settings.TransformsConfig); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if c.settings.SyntheticsConfig, err = filepath.Abs(settings.SyntheticsConfig); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	if err := c.probe(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCommandFactory returns a Factory that builds CommandClients.
func NewCommandFactory(opts ...CommandClientOption) Factory {
	return func(ctx context.Context, settings Settings) (Client, error) {
		return NewCommandClient(ctx, settings, opts...)
	}
}

// probe runs the bridge in probe mode.
func (c *CommandClient) probe(ctx context.Context) error {
	if c.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.probeTimeout)
		defer cancel()
	}

	out, err := c.runner.Run(ctx, c.command("--probe"))
	if err == nil {
		return nil
	}
	if out.ExitCode == -1 {
		return fmt.Errorf("%w: cannot run %s: %w", ErrLibraryUnavailable, c.settings.Python, err)
	}
	return fmt.Errorf("%w: %s", ErrLibraryUnavailable, failureMessage(out, err))
}

// Anonymize runs the bridge on the dataset.
func (c *CommandClient) Anonymize(ctx context.Context, dataset Dataset) Result {
	if dataset.Name == "" {
		return Failure("dataset name is empty", false)
	}
	// The bridge runs in workDir, not in the current directory.
	path, err := filepath.Abs(dataset.Path)
	if err != nil {
		return Failure(fmt.Sprintf("cannot resolve dataset path: %v", err), false)
	}

	c.logger.Info("anonymizing dataset",
		"dataset", path,
		"project", c.settings.ProjectName,
		"run_mode", c.settings.RunMode,
		"endpoint", c.settings.Endpoint,
	)

	out, err := c.runner.Run(ctx, c.command(
		"--project", c.settings.ProjectName,
		"--run-mode", c.settings.RunMode,
		"--transforms", c.settings.TransformsConfig,
		"--synthetics", c.settings.SyntheticsConfig,
		"--endpoint", c.settings.Endpoint,
		"--dataset", path,
		"--name", dataset.Name,
		"--artifacts", c.artifactsDir,
	))

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return Failure("anonymization timed out", true)
		}
		return Failure("anonymization was cancelled", true)
	}
	if err == nil {
		return Success()
	}

	msg := failureMessage(out, err)
	switch out.ExitCode {
	case exitTransient:
		return Failure(msg, true)
	case exitUnavailable:
		return Failure("gdpr-helpers is no longer importable: "+msg, false)
	default:
		return Failure(msg, false)
	}
}

// command builds the bridge invocation with the given arguments.
func (c *CommandClient) command(args ...string) Command {
	cmd := Command{
		Name: c.settings.Python,
		Args: append([]string{"-c", bridgeScript}, args...),
		Dir:  c.workDir,
	}
	if c.settings.APIKey != "" {
		cmd.Env = []string{"GRETEL_API_KEY=" + c.settings.APIKey}
	}
	return cmd
}

// failureMessage extracts the bridge's "error: " line, falling back to
// the last stderr line and then to err.
func failureMessage(out CommandOutput, err error) string {
	lines := strings.Split(strings.TrimSpace(out.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if msg, ok := strings.CutPrefix(strings.TrimSpace(lines[i]), "error: "); ok {
			return msg
		}
	}
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}
