package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
)

// Command describes one external command invocation.
type Command struct {
	// Argv is the command line, argv[0] being the program to run.
	Argv []string

	// Timeout bounds the command execution. Zero means no timeout; only
	// short-lived administrative commands (mount, losetup) set one, build
	// commands run inside a container may run indefinitely.
	Timeout time.Duration

	// Terminal attaches the caller's stdin/stdout/stderr to the command.
	// Mutually exclusive with any capture writer.
	Terminal bool

	// Stdout and Stderr receive separately captured output streams.
	Stdout io.Writer
	Stderr io.Writer

	// Combined receives the interlaced stdout+stderr stream. Mutually
	// exclusive with Stdout/Stderr.
	Combined io.Writer

	// Env holds extra KEY=value entries appended to the inherited
	// process environment.
	Env []string
}

// Runner runs external commands. The production implementation is
// ExecRunner; tests substitute a MockRunner so that no system call is
// issued.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command. Output not claimed by a caller-supplied writer
// is captured internally and attached to the returned SystemCommandError on
// failure, so that every failure can be diagnosed without re-running.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	if len(c.Argv) == 0 {
		return errdefs.Validationf("cannot run an empty command line")
	}
	if c.Terminal && (c.Stdout != nil || c.Stderr != nil || c.Combined != nil) {
		return errdefs.Validationf("cannot both forward the terminal and capture command output")
	}
	if c.Combined != nil && (c.Stdout != nil || c.Stderr != nil) {
		return errdefs.Validationf("cannot capture both a combined output and separate stdout/stderr")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	quoted := QuoteCommand(c.Argv)
	log.WithComponent("system").Debug().Str("command", quoted).Msg("running command")

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Env = append(os.Environ(), c.Env...)

	var outBuf, errBuf, combinedBuf bytes.Buffer
	separate := c.Stdout != nil || c.Stderr != nil

	switch {
	case c.Terminal:
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case separate:
		cmd.Stdout = teeWriter(&outBuf, c.Stdout)
		cmd.Stderr = teeWriter(&errBuf, c.Stderr)
	default:
		// Combined capture, interlaced as it would appear in a shell.
		w := teeWriter(&combinedBuf, c.Combined)
		cmd.Stdout = w
		cmd.Stderr = w
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	scerr := &errdefs.SystemCommandError{
		Command: quoted,
		Reason:  failureReason(ctx, err),
	}
	if !c.Terminal {
		if separate {
			scerr.Stdout = outBuf.String()
			scerr.Stderr = errBuf.String()
		} else {
			scerr.Combined = combinedBuf.String()
		}
	}
	return scerr
}

// LookPath resolves a program name against PATH. A missing program is an
// EnvironmentError: the environment does not meet the requirements to
// proceed, and nothing was executed.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errdefs.Environmentf("required utility %q not found in PATH", name)
	}
	return path, nil
}

func teeWriter(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func failureReason(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timed out"
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return "command not found in PATH"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("exited with status %d", exitErr.ExitCode())
	}
	return err.Error()
}

// QuoteCommand renders an argv list as a single shell-quoted command line
// suitable for diagnostics.
func QuoteCommand(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, arg := range argv {
		quoted = append(quoted, quoteArg(arg))
	}
	return strings.Join(quoted, " ")
}

func quoteArg(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\"'\\$&|;<>()*?[]#~%{}`!") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
