package sdk

import (
	"context"
	"errors"
	"fmt"
	"os"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/cuemby/burrow/pkg/container"
	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/recipe"
)

// SessionOptions select what one SDK session works on.
type SessionOptions struct {
	// Action names the recipe action driving the session (bootstrap,
	// build, image, ...); it decides which cache directories are writable
	// and is exported as CURRENT_ACTION.
	Action string

	// Target is the recipe the action operates on. It may be the SDK's
	// own recipe.
	Target *recipe.Recipe

	// WritableRepoRoot binds the whole source tree read-write instead of
	// the per-action output and cache directories only.
	WritableRepoRoot bool

	// Terminal attaches the caller's terminal to every command.
	Terminal bool

	// Env overrides the SDK recipe's fixed environment; the injected
	// CURRENT_* variables override both.
	Env map[string]string

	// SharedHostNetwork keeps the container in the host network
	// namespace.
	SharedHostNetwork bool
}

// Session is one open SDK session: a container session plus the fixed
// cwd/env/terminal triple every command runs with.
//
// The prelude commands have already run when Session is handed to the
// caller. Close runs the postlude commands and tears the container down;
// a command failure during the session body does not prevent the postlude
// from running, and a postlude failure is reported by Close without
// erasing the body failure already returned to the caller.
type Session struct {
	sdk       *Sdk
	container *container.Session

	cwd      string
	env      map[string]string
	terminal bool

	restore func() error
	closed  bool
}

// Session opens a container session for the options, bracketed by a
// privilege elevation when the Sdk carries a privilege context, and runs
// the SDK recipe's prelude commands. Any prelude failure closes the
// container session again and fails the open.
func (s *Sdk) Session(ctx context.Context, opts SessionOptions) (*Session, error) {
	if opts.Action == "" {
		return nil, errdefs.Validationf("an SDK session requires an action name")
	}
	if opts.Target == nil {
		return nil, errdefs.Validationf("an SDK session requires a targeted recipe")
	}
	if _, err := os.Stat(s.cfg.Image); err != nil {
		return nil, errdefs.Environmentf(
			"cannot find the rootfs image %q for SDK %q, bootstrap it first",
			s.cfg.Image, s.recipe.Identifier())
	}

	env, err := s.environment(opts.Action, opts.Target, opts.Env)
	if err != nil {
		return nil, err
	}
	spec, err := s.containerSpec(opts)
	if err != nil {
		return nil, err
	}

	restore := func() error { return nil }
	if s.cfg.Privilege != nil {
		_, _, restorePriv, err := s.cfg.Privilege.Elevate()
		if err != nil {
			return nil, err
		}
		restore = restorePriv
	}

	cont, err := container.OpenSession(ctx, spec, container.SessionConfig{
		Runner:    s.cfg.Runner,
		WorkDir:   s.cfg.WorkDir,
		TmpfsSize: s.cfg.TmpfsSize,
	})
	if err != nil {
		if rerr := restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}

	sess := &Session{
		sdk:       s,
		container: cont,
		cwd:       s.recipe.Cwd,
		env:       env,
		terminal:  opts.Terminal,
		restore:   restore,
	}
	for _, cmd := range s.recipe.PreludeCommands {
		log.WithComponent("sdk").Debug().
			Str("sdk", s.recipe.Identifier()).
			Str("command", cmd).
			Msg("running prelude command")
		if err := sess.Run(ctx, cmd); err != nil {
			err = fmt.Errorf("prelude command %q failed: %w", cmd, err)
			if cerr := sess.close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return nil, err
		}
	}
	return sess, nil
}

// splitCommandLine splits a command line into argv with shell word rules.
func splitCommandLine(commandLine string) ([]string, error) {
	argv, err := shellwords.Parse(commandLine)
	if err != nil {
		return nil, errdefs.Validationf("cannot split command line %q: %v", commandLine, err)
	}
	if len(argv) == 0 {
		return nil, errdefs.Validationf("cannot run an empty command line")
	}
	return argv, nil
}

// Run splits the command line with shell word rules and runs it in the
// container with the session's fixed cwd, environment and terminal
// policy.
func (s *Session) Run(ctx context.Context, commandLine string) error {
	argv, err := splitCommandLine(commandLine)
	if err != nil {
		return err
	}
	return s.container.Run(ctx, container.Invocation{
		Args:     argv,
		Env:      s.env,
		Cwd:      s.cwd,
		Terminal: s.terminal,
	})
}

// Snapshot compresses the session rootfs into a squashfs image at
// outFile.
func (s *Session) Snapshot(ctx context.Context, outFile string) error {
	return s.container.Snapshot(ctx, outFile)
}

// Container exposes the underlying container session.
func (s *Session) Container() *container.Session { return s.container }

// Close runs the postlude commands, tears down the container session and
// restores the privilege context, in that order. Every step is attempted;
// their failures are reported together.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return &errdefs.SessionStateError{Op: "close", State: "closed"}
	}

	var errs []error
	for _, cmd := range s.sdk.recipe.PostludeCommands {
		log.WithComponent("sdk").Debug().
			Str("sdk", s.sdk.recipe.Identifier()).
			Str("command", cmd).
			Msg("running postlude command")
		if err := s.Run(ctx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("postlude command %q failed: %w", cmd, err))
		}
	}
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close tears down the container and restores privileges without running
// the postlude; the open path uses it when a prelude command fails.
func (s *Session) close() error {
	s.closed = true
	err := s.container.Close()
	if rerr := s.restore(); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return err
}
