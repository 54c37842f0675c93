package anonymizer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Run waits for the output pipes after the
// process was killed. Children of the process may keep them open.
const waitDelay = 5 * time.Second

// Command describes one process invocation.
type Command struct {
	// Name is the program to run.
	Name string

	// Args are the program arguments.
	Args []string

	// Env is appended to the current process environment.
	Env []string

	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// CommandOutput is what a finished process produced.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes commands.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandOutput, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

var _ CommandRunner = (*ExecRunner)(nil)

// NewExecRunner creates an ExecRunner. A nil logger uses slog.Default().
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run starts the command and waits for it. A non-zero exit status is
// returned as an *exec.ExitError together with the captured output.
// The command is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, c Command) (CommandOutput, error) {
	r.logger.Debug("running command", "name", c.Name, "dir", c.Dir)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // interpreter is configured by the operator
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := CommandOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// The process could not be started at all.
		out.ExitCode = -1
	}

	r.logger.Debug("command finished", "name", c.Name, "exit_code", out.ExitCode, "stdout", out.Stdout)
	return out, err
}

// FakeCommandRunner returns canned output and records the commands it ran.
type FakeCommandRunner struct {
	// RunFunc, when set, produces the output for each command.
	RunFunc func(ctx context.Context, cmd Command) (CommandOutput, error)

	// Commands lists every command passed to Run.
	Commands []Command
}

var _ CommandRunner = (*FakeCommandRunner)(nil)

// Run records cmd and delegates to RunFunc.
func (f *FakeCommandRunner) Run(ctx context.Context, cmd Command) (CommandOutput, error) {
	f.Commands = append(f.Commands, cmd)
	if f.RunFunc == nil {
		return CommandOutput{}, nil
	}
	return f.RunFunc(ctx, cmd)
}
