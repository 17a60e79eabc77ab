/*
Package errdefs defines the error taxonomy shared by all Burrow packages.

Every failure surfaced by Burrow falls into one of five categories:

  - ValidationError: malformed input (mount options containing commas,
    relative or unnormalized paths, invalid container names). Raised before
    any side effect; a validation error never reaches the kernel or an
    external command.
  - EnvironmentError: the host cannot support the requested operation
    (required utility missing from PATH, kernel feature unavailable).
    Raised before the affected resource is touched.
  - SystemCommandError: an external command (mount, losetup, mksquashfs,
    the OCI launcher) exited non-zero, timed out or could not be started.
    Carries the command line and captured output for diagnosis without
    re-running.
  - SnapshotError: a rootfs snapshot could not be produced, including the
    degenerate case of snapshotting a read-only session.
  - SessionStateError: an operation was attempted outside its valid
    lifecycle state, such as running a command in a closed session.

All types are plain structs usable with errors.As. Wrapping follows the
standard fmt.Errorf("...: %w", err) convention; multiple failures collected
during cleanup are combined with errors.Join so that a teardown error never
replaces an in-flight error.
*/
package errdefs
