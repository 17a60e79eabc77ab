package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/mount"
	"github.com/cuemby/burrow/pkg/system"
)

// State of a container session.
type State string

const (
	// StateAssembled means the rootfs mount stack is held and commands may
	// run. A session is handed to the caller already assembled; the
	// intermediate creation state is never observable from outside.
	StateAssembled State = "assembled"

	// StateClosed means the mount stack was torn down and the bundle
	// directory removed.
	StateClosed State = "closed"
)

// SessionConfig carries the host-side knobs of a session.
type SessionConfig struct {
	// Runner executes the external commands (mount, losetup, the
	// launcher).
	Runner system.Runner

	// WorkDir receives the per-session bundle directories.
	WorkDir string

	// TmpfsSize bounds the scratch tmpfs backing the overlay upper and
	// work directories of a writable session.
	TmpfsSize string

	// Stdout and Stderr receive the output of non-terminal commands run in
	// the container. Leave nil to only capture output into errors.
	Stdout io.Writer
	Stderr io.Writer
}

const (
	defaultWorkDir   = "/var/lib/burrow/containers"
	defaultTmpfsSize = "10g"
)

// Session is one container instance: an ephemeral bundle directory, the
// rootfs assembled inside it through the mount stack, and the launcher
// invocations running commands in it. Sessions are not safe for concurrent
// use; callers serialize access.
type Session struct {
	spec   *Spec
	runner system.Runner
	cfg    SessionConfig

	// name is the per-session unique container instance name passed to
	// the launcher.
	name      string
	bundleDir string
	rootfsDir string

	state    State
	releases *mount.ReleaseStack
	opened   *metrics.Timer
}

// OpenSession creates the bundle directory and assembles the rootfs mount
// stack for the spec. On success the returned session is ready to run
// commands and the caller owns its Close. On failure everything acquired
// along the way is released before the error returns, in reverse
// acquisition order.
func OpenSession(ctx context.Context, spec *Spec, cfg SessionConfig) (*Session, error) {
	if cfg.Runner == nil {
		return nil, errdefs.Validationf("a session requires a command runner")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = defaultWorkDir
	}
	if cfg.TmpfsSize == "" {
		cfg.TmpfsSize = defaultTmpfsSize
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session working directory: %w", err)
	}

	// The unique suffix also names the container instance for the
	// launcher, so that concurrent sessions of the same spec never
	// collide.
	name := fmt.Sprintf("%s.%s", spec.Name(), uuid.New().String())
	bundleDir := filepath.Join(cfg.WorkDir, name)
	if err := os.Mkdir(bundleDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bundle directory: %w", err)
	}

	s := &Session{
		spec:      spec,
		runner:    cfg.Runner,
		cfg:       cfg,
		name:      name,
		bundleDir: bundleDir,
		rootfsDir: filepath.Join(bundleDir, "rootfs"),
		state:     StateAssembled,
		releases:  &mount.ReleaseStack{},
		opened:    metrics.NewTimer(),
	}
	if err := s.assembleRootfs(ctx); err != nil {
		// Unwind whatever was acquired, then drop the bundle directory.
		if rerr := s.releases.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if rmErr := os.RemoveAll(bundleDir); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove bundle directory: %w", rmErr))
		}
		return nil, err
	}

	mode := "overlay"
	if spec.ReadOnly() {
		mode = "readonly"
	}
	metrics.SessionsOpen.Inc()
	metrics.SessionsTotal.WithLabelValues(mode).Inc()
	log.WithContainer(spec.Name()).Info().
		Str("session", name).
		Str("bundle", bundleDir).
		Str("mode", mode).
		Msg("container session opened")
	return s, nil
}

// assembleRootfs mounts the rootfs at s.rootfsDir, pushing a release
// action for every acquired resource in acquisition order. A read-only
// session mounts the squashfs image directly; a writable one stacks
// squashfs lower, tmpfs scratch and an overlay merge.
func (s *Session) assembleRootfs(ctx context.Context) error {
	if err := os.Mkdir(s.rootfsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create rootfs directory: %w", err)
	}

	// Teardown runs on Close (or on an assembly failure): its context must
	// not inherit a cancellation that may have caused the failure.
	cleanupCtx := context.WithoutCancel(ctx)

	if s.spec.ReadOnly() {
		sq, err := mount.NewSquashfsMount(s.spec.RootfsImage(), s.rootfsDir)
		if err != nil {
			return err
		}
		if err := sq.Mount(ctx, s.runner); err != nil {
			metrics.MountFailures.WithLabelValues("squashfs").Inc()
			return err
		}
		metrics.MountsActive.Inc()
		metrics.LoopDevicesAttached.Inc()
		s.releases.Push(func() error {
			metrics.MountsActive.Dec()
			metrics.LoopDevicesAttached.Dec()
			return sq.Unmount(cleanupCtx, s.runner)
		})
		// The squashfs is immutable: a read-only session relies on the
		// resolver configuration the image ships with.
		return nil
	}

	overlayDir := filepath.Join(s.bundleDir, "overlay")
	lowerDir := filepath.Join(overlayDir, "lower")
	scratchDir := filepath.Join(overlayDir, "tmpfs")
	for _, dir := range []string{overlayDir, lowerDir, scratchDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create overlay directory: %w", err)
		}
	}

	sq, err := mount.NewSquashfsMount(s.spec.RootfsImage(), lowerDir)
	if err != nil {
		return err
	}
	if err := sq.Mount(ctx, s.runner); err != nil {
		metrics.MountFailures.WithLabelValues("squashfs").Inc()
		return err
	}
	metrics.MountsActive.Inc()
	metrics.LoopDevicesAttached.Inc()
	s.releases.Push(func() error {
		metrics.MountsActive.Dec()
		metrics.LoopDevicesAttached.Dec()
		return sq.Unmount(cleanupCtx, s.runner)
	})

	scratch, err := mount.NewTmpfsMount(scratchDir, []string{"size=" + s.cfg.TmpfsSize})
	if err != nil {
		return err
	}
	if err := scratch.Mount(ctx, s.runner); err != nil {
		metrics.MountFailures.WithLabelValues("tmpfs").Inc()
		return err
	}
	metrics.MountsActive.Inc()
	s.releases.Push(func() error {
		metrics.MountsActive.Dec()
		return scratch.Unmount(cleanupCtx, s.runner)
	})

	upperDir := filepath.Join(scratchDir, "upper")
	workDir := filepath.Join(scratchDir, "work")
	for _, dir := range []string{upperDir, workDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create overlay scratch directory: %w", err)
		}
	}

	overlay, err := mount.NewOverlayfsMount(
		s.rootfsDir, []string{lowerDir}, upperDir, workDir, s.overlayTuning())
	if err != nil {
		return err
	}
	if err := overlay.Mount(ctx, s.runner); err != nil {
		metrics.MountFailures.WithLabelValues("overlay").Inc()
		return err
	}
	metrics.MountsActive.Inc()
	s.releases.Push(func() error {
		metrics.MountsActive.Dec()
		return overlay.Unmount(cleanupCtx, s.runner)
	})

	return s.copyHostResolvConf()
}

// overlayTuning returns the overlay options applicable on the running
// kernel. An undeterminable kernel version only costs the tuning, not the
// session.
func (s *Session) overlayTuning() []string {
	kernel, err := system.KernelVersion()
	if err != nil {
		log.WithComponent("container").Warn().Err(err).
			Msg("cannot determine kernel version, overlay tuning options skipped")
		return nil
	}
	return mount.OverlayTuningOptions(kernel)
}

// copyHostResolvConf propagates the host resolver configuration into the
// assembled rootfs when the container shares the host network namespace.
// Only writable sessions call it: a read-only squashfs rootfs cannot take
// the copy.
func (s *Session) copyHostResolvConf() error {
	if !s.spec.SharedHostNetwork() {
		return nil
	}
	data, err := os.ReadFile("/etc/resolv.conf")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read host resolver configuration: %w", err)
	}
	dest := filepath.Join(s.rootfsDir, "etc", "resolv.conf")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("failed to copy host resolver configuration: %w", err)
	}
	return nil
}

func (s *Session) Name() string      { return s.name }
func (s *Session) BundleDir() string { return s.bundleDir }
func (s *Session) RootfsDir() string { return s.rootfsDir }
func (s *Session) State() State      { return s.state }
func (s *Session) Spec() *Spec       { return s.spec }

// launcherPath resolves the container launcher binary.
func (s *Session) launcherPath() (string, error) {
	if path, err := s.runner.LookPath("runc"); err == nil {
		return path, nil
	}
	if path, err := s.runner.LookPath("docker-runc"); err == nil {
		return path, nil
	}
	return "", errdefs.Environmentf("cannot find the %q or %q container launcher in PATH",
		"runc", "docker-runc")
}

// Run serializes the runtime spec for the invocation into the bundle and
// launches it. A command failure is reported but does not tear down the
// session: further commands may run against the same rootfs.
func (s *Session) Run(ctx context.Context, inv Invocation) error {
	if s.state != StateAssembled {
		return &errdefs.SessionStateError{Op: "run", State: string(s.state)}
	}
	if len(inv.Args) == 0 {
		return errdefs.Validationf("cannot run an empty command line in a container")
	}

	launcher, err := s.launcherPath()
	if err != nil {
		return err
	}

	doc, err := json.MarshalIndent(s.spec.runtimeSpec(inv), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize the runtime spec: %w", err)
	}
	configPath := filepath.Join(s.bundleDir, "config.json")
	if err := os.WriteFile(configPath, doc, 0o644); err != nil {
		return fmt.Errorf("failed to write the runtime spec: %w", err)
	}

	log.WithContainer(s.spec.Name()).Debug().
		Str("session", s.name).
		Str("command", system.QuoteCommand(inv.Args)).
		Bool("terminal", inv.Terminal).
		Msg("running command in container")

	cmd := system.Command{
		Argv: []string{launcher, "run", "--bundle", s.bundleDir, s.name},
	}
	if inv.Terminal {
		cmd.Terminal = true
	} else {
		cmd.Stdout = s.cfg.Stdout
		cmd.Stderr = s.cfg.Stderr
	}

	timer := metrics.NewTimer()
	err = s.runner.Run(ctx, cmd)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	timer.ObserveDurationVec(metrics.CommandDuration, outcome)
	metrics.CommandsTotal.WithLabelValues(outcome).Inc()
	return err
}

// Snapshot compresses the current rootfs contents into a squashfs image at
// outFile, reusable as the rootfs image of a future spec. Only writable
// sessions can snapshot: a read-only rootfs is already the image it was
// mounted from.
func (s *Session) Snapshot(ctx context.Context, outFile string) error {
	if s.state != StateAssembled {
		return &errdefs.SessionStateError{Op: "snapshot", State: string(s.state)}
	}
	if s.spec.ReadOnly() {
		return errdefs.Snapshotf(nil,
			"cannot snapshot the read-only container %q", s.spec.Name())
	}

	log.WithContainer(s.spec.Name()).Info().
		Str("session", s.name).
		Str("output", outFile).
		Msg("snapshotting container rootfs")

	timer := metrics.NewTimer()
	err := mount.MakeSquashfs(ctx, s.runner, outFile, s.rootfsDir, mount.DefaultSquashfsOptions())
	timer.ObserveDuration(metrics.SnapshotDuration)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("failure").Inc()
		return errdefs.Snapshotf(err, "failed to snapshot container %q", s.spec.Name())
	}
	metrics.SnapshotsTotal.WithLabelValues("success").Inc()
	return nil
}

// Close tears down the mount stack in exact reverse acquisition order and
// removes the bundle directory. Every release is attempted even when an
// earlier one fails; the failures are reported together. Closing twice is
// a state error.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return &errdefs.SessionStateError{Op: "close", State: string(s.state)}
	}
	s.state = StateClosed

	err := s.releases.Release()
	if rmErr := os.RemoveAll(s.bundleDir); rmErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to remove bundle directory: %w", rmErr))
	}

	metrics.SessionsOpen.Dec()
	s.opened.ObserveDuration(metrics.SessionDuration)
	log.WithContainer(s.spec.Name()).Info().
		Str("session", s.name).
		Msg("container session closed")
	return err
}
