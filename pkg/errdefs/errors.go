package errdefs

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed input (mount options, paths, names)
// detected before any side effect takes place.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf creates a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// EnvironmentError reports that the runtime environment does not meet the
// requirements to proceed (missing external utility, unsupported kernel
// feature). It is raised before the affected resource is touched.
type EnvironmentError struct {
	Msg string
}

func (e *EnvironmentError) Error() string {
	return e.Msg
}

// Environmentf creates an EnvironmentError from a format string.
func Environmentf(format string, args ...any) error {
	return &EnvironmentError{Msg: fmt.Sprintf(format, args...)}
}

// SystemCommandError reports the failure of an external command. It carries
// the command line, the reason of failure and whatever output was captured
// so that the failure can be diagnosed without re-running the command.
type SystemCommandError struct {
	// Command is the shell-quoted command line that failed.
	Command string

	// Reason describes why the command failed (non-zero exit, timeout,
	// could not be started).
	Reason string

	// Stdout and Stderr hold separately captured output streams, when the
	// caller asked for separate capture.
	Stdout string
	Stderr string

	// Combined holds the interlaced stdout+stderr output, when the command
	// ran with a single combined capture. Combined is mutually exclusive
	// with Stdout/Stderr.
	Combined string
}

func (e *SystemCommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %q failed", e.Command)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Stdout != "" {
		fmt.Fprintf(&b, "\n v-- stdout --v\n%s\n ^-- end of stdout --^", strings.TrimRight(e.Stdout, "\n"))
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\n v-- stderr --v\n%s\n ^-- end of stderr --^", strings.TrimRight(e.Stderr, "\n"))
	}
	if e.Combined != "" {
		fmt.Fprintf(&b, "\n v-- output --v\n%s\n ^-- end of output --^", strings.TrimRight(e.Combined, "\n"))
	}
	return b.String()
}

// SnapshotError reports a failure to snapshot a container session rootfs
// into a squashfs image, including the attempt to snapshot a read-only
// session.
type SnapshotError struct {
	Msg string
	Err error
}

func (e *SnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// Snapshotf creates a SnapshotError wrapping err (err may be nil).
func Snapshotf(err error, format string, args ...any) error {
	return &SnapshotError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// SessionStateError reports an operation attempted outside its valid
// session state, such as running a command after the session was closed.
type SessionStateError struct {
	Op    string
	State string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("operation %q is not permitted in session state %q", e.Op, e.State)
}
