/*
Package system wraps the external commands Burrow drives (mount, umount,
losetup, mksquashfs, the OCI launcher) behind a single Runner interface.

# Architecture

	┌──────────────────── COMMAND EXECUTION ───────────────────┐
	│                                                           │
	│  ┌─────────────────────────────────────────────┐         │
	│  │                 Runner                       │         │
	│  │  Run(ctx, Command) / LookPath(name)          │         │
	│  └───────────┬─────────────────────┬───────────┘         │
	│              │                     │                      │
	│  ┌───────────▼──────────┐  ┌───────▼───────────┐         │
	│  │      ExecRunner      │  │    MockRunner      │         │
	│  │  - os/exec           │  │  - records argv    │         │
	│  │  - timeout via ctx   │  │  - scripted errors │         │
	│  │  - output capture    │  │  - no system call  │         │
	│  └──────────────────────┘  └────────────────────┘         │
	└───────────────────────────────────────────────────────────┘

Execution is synchronous: Run blocks until the command exits or its timeout
expires. Timeouts apply to short-lived administrative commands only; builds
run inside a container carry no timeout.

Failures are reported as errdefs.SystemCommandError carrying the quoted
command line, the exit reason and the captured output (separate stdout and
stderr, or the interlaced combined stream), so no failed command ever needs
re-running to be diagnosed. A program missing from PATH at LookPath time is
an errdefs.EnvironmentError instead, raised before anything executes.

The package also hosts small host probes: KernelVersion (used to gate
overlayfs tuning options on older kernels) and TTYAttached (used to decide
whether container commands get the caller's terminal).
*/
package system
