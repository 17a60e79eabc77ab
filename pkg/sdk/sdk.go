package sdk

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/container"
	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/privilege"
	"github.com/cuemby/burrow/pkg/recipe"
	"github.com/cuemby/burrow/pkg/system"
)

// repoMountTarget is where the source tree is bound inside SDK
// containers.
const repoMountTarget = "/mnt"

// Sdk drives build sessions of a product recipe inside a container spawned
// from the SDK rootfs image.
type Sdk struct {
	recipe *recipe.Recipe
	cfg    Config
}

// Config carries the host-side dependencies of an Sdk.
type Config struct {
	// Runner executes every external command.
	Runner system.Runner

	// RepoRoot is the source tree root, bound at /mnt inside SDK
	// containers.
	RepoRoot string

	// Image is the squashfs rootfs image of the SDK. Defaults to
	// "rootfs.squashfs" in the SDK recipe's cache directory.
	Image string

	// Privilege, when set, elevates to root around each session so that
	// the mount stack and the launcher can operate. Leave nil when the
	// process already runs with sufficient privileges.
	Privilege *privilege.Context

	// WorkDir and TmpfsSize are forwarded to the container sessions.
	WorkDir   string
	TmpfsSize string
}

// New creates an Sdk from its recipe. The recipe's capabilities, device
// bindings, prelude/postlude commands, fixed environment and working
// directory all apply to every session opened from it.
func New(r *recipe.Recipe, cfg Config) (*Sdk, error) {
	if cfg.Runner == nil {
		return nil, errdefs.Validationf("an SDK requires a command runner")
	}
	if cfg.RepoRoot == "" {
		return nil, errdefs.Validationf("an SDK requires the source tree root")
	}
	repoRoot, err := filepath.Abs(cfg.RepoRoot)
	if err != nil {
		return nil, errdefs.Validationf("invalid source tree root %q: %v", cfg.RepoRoot, err)
	}
	cfg.RepoRoot = repoRoot
	if cfg.Image == "" {
		cfg.Image = filepath.Join(repoRoot, r.CacheSubpath(), "rootfs.squashfs")
	}
	// The image may not exist yet: Bootstrap produces it. Session checks
	// for it before opening anything.
	return &Sdk{recipe: r, cfg: cfg}, nil
}

// Recipe returns the SDK's own recipe.
func (s *Sdk) Recipe() *recipe.Recipe { return s.recipe }

// environment builds the variable set injected into every command of a
// session: the SDK recipe's fixed environment, the caller overrides, then
// the CURRENT_* context variables describing the targeted recipe, the
// action and the SDK itself. Product properties are numbered in
// descriptor order, with an index variable listing their keys.
func (s *Sdk) environment(action string, target *recipe.Recipe, overrides map[string]string) (map[string]string, error) {
	env := make(map[string]string, len(s.recipe.Env)+len(overrides)+12)
	for k, v := range s.recipe.Env {
		env[k] = v
	}
	for k, v := range overrides {
		env[k] = v
	}

	instrumented := target.InstrumentationLevel != recipe.Production
	taintedVersion, err := target.Product.TaintedVersion(instrumented)
	if err != nil {
		return nil, err
	}

	env["CURRENT_PRODUCT"] = target.Product.Name
	env["CURRENT_PRODUCT_VERSION"] = target.Product.Version
	env["CURRENT_PRODUCT_TAINTED_VERSION"] = taintedVersion
	env["CURRENT_RECIPE"] = target.Name
	env["CURRENT_RECIPE_INSTRUMENTATION_LEVEL"] = strconv.Itoa(int(target.InstrumentationLevel))
	env["CURRENT_ACTION"] = action
	env["CURRENT_SDK_PRODUCT"] = s.recipe.Product.Name
	env["CURRENT_SDK_RECIPE"] = s.recipe.Name

	props := target.Product.Properties
	for idx, prop := range props {
		env[fmt.Sprintf("CURRENT_PRODUCT_PROPERTY_%d", idx)] = prop.Value
	}
	env["CURRENT_PRODUCT_PROPERTIES"] = strings.Join(props.Keys(), " ")
	return env, nil
}

// mountpoints returns the SDK context mounts: the source tree at /mnt,
// the per-action output and cache directories read-write when the tree
// itself is read-only, and dedicated tmpfs mounts for /tmp and /var/tmp.
//
// /tmp and /var/tmp get their own tmpfs instead of relying on the rootfs
// overlay upper layer: GNU tar trips over overlayfs directory renames
// ("Directory renamed before its status could be extracted"), and package
// builds exercise tar heavily under /var/tmp.
func (s *Sdk) mountpoints(action string, target *recipe.Recipe, writableRepoRoot bool) ([]*container.Mountpoint, error) {
	repoOption := "ro"
	if writableRepoRoot {
		repoOption = "rw"
	}
	repoMount, err := container.NewMountpoint(
		s.cfg.RepoRoot, repoMountTarget, "", []string{"bind", repoOption})
	if err != nil {
		return nil, err
	}
	mounts := []*container.Mountpoint{repoMount}

	if !writableRepoRoot {
		rwSubpaths := []string{
			filepath.Join(target.OutSubpath(), action),
			filepath.Join(target.CacheSubpath(), action),
		}
		if action == "bootstrap" || action == "build" {
			// Only build-like actions touch the binary package cache or
			// download assets.
			rwSubpaths = append(rwSubpaths, filepath.Join(target.CacheSubpath(), "binpkgs"))
			for _, dir := range s.recipe.WritableAssetDirs {
				rwSubpaths = append(rwSubpaths, filepath.Join("assets", dir))
			}
		}
		for _, subpath := range rwSubpaths {
			source := filepath.Join(s.cfg.RepoRoot, subpath)
			if err := os.MkdirAll(source, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create session directory: %w", err)
			}
			m, err := container.NewMountpoint(
				source, filepath.Join(repoMountTarget, subpath), "", []string{"bind", "rw"})
			if err != nil {
				return nil, err
			}
			mounts = append(mounts, m)
		}
	}

	tmpMount, err := container.NewMountpoint("tmpfs", "/tmp", "tmpfs", []string{"nodev", "nosuid"})
	if err != nil {
		return nil, err
	}
	// No mount options on /var/tmp, the package manager needs exec and
	// device nodes there.
	varTmpMount, err := container.NewMountpoint("tmpfs", "/var/tmp", "tmpfs", nil)
	if err != nil {
		return nil, err
	}
	return append(mounts, tmpMount, varTmpMount), nil
}

// containerSpec assembles the container spec of one session.
func (s *Sdk) containerSpec(opts SessionOptions) (*container.Spec, error) {
	name := fmt.Sprintf("%s-%s.%s.%s-%s",
		s.recipe.Product.Name, s.recipe.Name,
		opts.Action,
		opts.Target.Product.Name, opts.Target.Name)
	spec, err := container.NewSpec(container.Config{
		Name:              name,
		RootfsImage:       s.cfg.Image,
		SharedHostNetwork: opts.SharedHostNetwork,
	})
	if err != nil {
		return nil, err
	}
	spec.AddCapabilities(s.recipe.Capabilities...)

	mounts, err := s.mountpoints(opts.Action, opts.Target, opts.WritableRepoRoot)
	if err != nil {
		return nil, err
	}
	for _, m := range mounts {
		spec.AddMountpoint(m)
	}
	for _, dev := range s.recipe.DeviceBindings {
		binding, err := container.NewDeviceBinding(dev, "")
		if err != nil {
			return nil, err
		}
		spec.AddDeviceBinding(binding)
	}
	return spec, nil
}
