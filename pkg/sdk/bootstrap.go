package sdk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/container"
	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/mount"
	"github.com/cuemby/burrow/pkg/system"
)

// Bootstrap builds the SDK rootfs image from a rootfs tar archive: the
// archive is extracted and compressed into a temporary squashfs image, a
// container is spawned from it, the SDK recipe's prelude, the bootstrap
// steps and the postlude run inside, and the resulting filesystem is
// snapshotted into the SDK cache as the image future sessions run from.
//
// An empty steps list is legitimate: an archive may already contain a
// fully prepared SDK.
func (s *Sdk) Bootstrap(ctx context.Context, archive string, steps []string, env map[string]string) (err error) {
	if _, serr := os.Stat(archive); serr != nil {
		return errdefs.Validationf("cannot find the SDK rootfs archive %q", archive)
	}

	restore := func() error { return nil }
	if s.cfg.Privilege != nil {
		_, _, restorePriv, perr := s.cfg.Privilege.Elevate()
		if perr != nil {
			return perr
		}
		restore = restorePriv
	}
	defer func() {
		if rerr := restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	tmpBase := filepath.Join(s.cfg.RepoRoot, "run", "tmp")
	if merr := os.MkdirAll(tmpBase, 0o755); merr != nil {
		return fmt.Errorf("failed to create bootstrap working directory: %w", merr)
	}
	tmpDir, terr := os.MkdirTemp(tmpBase,
		fmt.Sprintf("bootstrap-%s-%s.", s.recipe.Product.Name, s.recipe.Name))
	if terr != nil {
		return fmt.Errorf("failed to create bootstrap working directory: %w", terr)
	}
	// The extracted tree holds root-owned files; removal happens while
	// still elevated.
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove bootstrap working directory: %w", rmErr))
		}
	}()

	contentsDir := filepath.Join(tmpDir, "tar-contents")
	if merr := os.Mkdir(contentsDir, 0o755); merr != nil {
		return fmt.Errorf("failed to create extraction directory: %w", merr)
	}

	log.WithComponent("sdk").Info().
		Str("sdk", s.recipe.Identifier()).
		Str("archive", archive).
		Msg("extracting SDK rootfs archive")
	// Ownership must survive the round trip, hence --numeric-owner.
	if rerr := s.cfg.Runner.Run(ctx, system.Command{
		Argv: []string{"tar", "--numeric-owner", "-xpf", archive, "-C", contentsDir},
	}); rerr != nil {
		return rerr
	}

	bootstrapImage := filepath.Join(tmpDir, "to-bootstrap.squashfs")
	if merr := mount.MakeSquashfs(ctx, s.cfg.Runner, bootstrapImage, contentsDir,
		mount.DefaultSquashfsOptions()); merr != nil {
		return merr
	}

	spec, serr := container.NewSpec(container.Config{
		Name:        fmt.Sprintf("bootstrap-%s-%s", s.recipe.Product.Name, s.recipe.Name),
		RootfsImage: bootstrapImage,
		// Bootstrapping downloads distribution snapshots; the host
		// network is the only one available.
		SharedHostNetwork: true,
	})
	if serr != nil {
		return serr
	}
	spec.AddCapabilities(s.recipe.Capabilities...)
	mounts, merr := s.mountpoints("bootstrap", s.recipe, false)
	if merr != nil {
		return merr
	}
	for _, m := range mounts {
		spec.AddMountpoint(m)
	}
	for _, dev := range s.recipe.DeviceBindings {
		binding, berr := container.NewDeviceBinding(dev, "")
		if berr != nil {
			return berr
		}
		spec.AddDeviceBinding(binding)
	}

	cont, oerr := container.OpenSession(ctx, spec, container.SessionConfig{
		Runner:    s.cfg.Runner,
		WorkDir:   s.cfg.WorkDir,
		TmpfsSize: s.cfg.TmpfsSize,
	})
	if oerr != nil {
		return oerr
	}
	defer func() {
		if cerr := cont.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	runEnv, eerr := s.environment("bootstrap", s.recipe, env)
	if eerr != nil {
		return eerr
	}
	terminal := system.TTYAttached()
	run := func(argv []string) error {
		return cont.Run(ctx, container.Invocation{
			Args:     argv,
			Env:      runEnv,
			Cwd:      s.recipe.Cwd,
			Terminal: terminal,
		})
	}

	// Marker file some build scripts probe to detect an SDK context.
	if rerr := run([]string{"sh", "-c", "> /.sdk"}); rerr != nil {
		return rerr
	}
	for _, cmd := range append(append([]string{}, s.recipe.PreludeCommands...),
		append(steps, s.recipe.PostludeCommands...)...) {
		log.WithComponent("sdk").Info().
			Str("sdk", s.recipe.Identifier()).
			Str("command", cmd).
			Msg("bootstrapping SDK")
		argv, perr := splitCommandLine(cmd)
		if perr != nil {
			return perr
		}
		if rerr := run(argv); rerr != nil {
			return rerr
		}
	}

	if merr := os.MkdirAll(filepath.Dir(s.cfg.Image), 0o755); merr != nil {
		return fmt.Errorf("failed to create the SDK cache directory: %w", merr)
	}
	return cont.Snapshot(ctx, s.cfg.Image)
}
