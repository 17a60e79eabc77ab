package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/catalog"
	"github.com/cuemby/burrow/pkg/container"
	"github.com/cuemby/burrow/pkg/system"
)

// parseEnv turns KEY=value flag values into a map.
func parseEnv(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("environment entry %q is not KEY=value", entry)
		}
		env[key] = value
	}
	return env, nil
}

// buildSpec assembles a container spec from the shared run/snapshot flags.
func buildSpec(cmd *cobra.Command, name, image string) (*container.Spec, error) {
	readOnly, _ := cmd.Flags().GetBool("readonly")
	sharedNet, _ := cmd.Flags().GetBool("shared-network")
	hostname, _ := cmd.Flags().GetString("hostname")
	caps, _ := cmd.Flags().GetStringArray("cap")
	devices, _ := cmd.Flags().GetStringArray("device")

	spec, err := container.NewSpec(container.Config{
		Name:              name,
		RootfsImage:       image,
		Hostname:          hostname,
		ReadOnly:          readOnly,
		SharedHostNetwork: sharedNet,
	})
	if err != nil {
		return nil, err
	}
	spec.AddCapabilities(caps...)
	for _, dev := range devices {
		binding, err := container.NewDeviceBinding(dev, "")
		if err != nil {
			return nil, err
		}
		spec.AddDeviceBinding(binding)
	}
	return spec, nil
}

// openSession opens a container session for the spec under privilege
// elevation and returns it together with its privilege restore function.
func openSession(ctx context.Context, spec *container.Spec) (*container.Session, func() error, error) {
	restore := func() error { return nil }
	if priv != nil {
		_, _, restorePriv, err := priv.Elevate()
		if err != nil {
			return nil, nil, err
		}
		restore = restorePriv
	}
	sess, err := container.OpenSession(ctx, spec, container.SessionConfig{
		Runner:    runner,
		WorkDir:   flagWorkDir,
		TmpfsSize: flagTmpfsSize,
	})
	if err != nil {
		if rerr := restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, nil, err
	}
	return sess, restore, nil
}

func addSpecFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "burrow", "Container name")
	cmd.Flags().String("hostname", "", "Container hostname (defaults to the name)")
	cmd.Flags().Bool("shared-network", false, "Share the host network namespace")
	cmd.Flags().StringArray("cap", nil, "Additional capability to grant (repeatable)")
	cmd.Flags().StringArray("device", nil, "Host device to bind into the container (repeatable)")
	cmd.Flags().StringArray("env", nil, "Environment entry KEY=value (repeatable)")
	cmd.Flags().String("cwd", "/", "Working directory inside the container")
	cmd.Flags().Bool("terminal", false, "Attach the terminal (defaults to on when stdin/stdout are terminals)")
}

// invocation assembles a container invocation from the shared flags and
// the command line given after the -- separator.
func invocation(cmd *cobra.Command, argv []string) (container.Invocation, error) {
	env, err := parseEnv(mustStringArray(cmd, "env"))
	if err != nil {
		return container.Invocation{}, err
	}
	cwd, _ := cmd.Flags().GetString("cwd")
	terminal, _ := cmd.Flags().GetBool("terminal")
	if !cmd.Flags().Changed("terminal") {
		terminal = system.TTYAttached()
	}
	return container.Invocation{
		Args:     argv,
		Env:      env,
		Cwd:      cwd,
		Terminal: terminal,
	}, nil
}

func mustStringArray(cmd *cobra.Command, name string) []string {
	v, _ := cmd.Flags().GetStringArray(name)
	return v
}

var runCmd = &cobra.Command{
	Use:   "run <image.squashfs> [-- command...]",
	Short: "Run a command in an ephemeral container from a squashfs image",
	Long: `Run a command in an ephemeral container spawned from a squashfs
rootfs image. Unless --readonly is given, the rootfs gets a writable
tmpfs-backed overlay that is discarded when the command finishes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image := args[0]
		argv := args[1:]
		if len(argv) == 0 {
			argv = []string{"/bin/sh"}
		}

		name, _ := cmd.Flags().GetString("name")
		spec, err := buildSpec(cmd, name, image)
		if err != nil {
			return err
		}
		inv, err := invocation(cmd, argv)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		sess, restore, err := openSession(ctx, spec)
		if err != nil {
			return err
		}
		err = sess.Run(ctx, inv)
		if cerr := sess.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if rerr := restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return err
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <image.squashfs> <output.squashfs> [-- command...]",
	Short: "Run commands in a writable container and snapshot the result",
	Long: `Spawn a writable container from a squashfs rootfs image, run the
given command in it (if any), then compress the resulting filesystem into
a new squashfs image and record it in the image catalog.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, output := args[0], args[1]
		argv := args[2:]

		name, _ := cmd.Flags().GetString("name")
		spec, err := buildSpec(cmd, name, image)
		if err != nil {
			return err
		}
		if spec.ReadOnly() {
			return fmt.Errorf("cannot snapshot a read-only container")
		}

		ctx := cmd.Context()
		sess, restore, err := openSession(ctx, spec)
		if err != nil {
			return err
		}
		err = func() error {
			if len(argv) > 0 {
				inv, err := invocation(cmd, argv)
				if err != nil {
					return err
				}
				if err := sess.Run(ctx, inv); err != nil {
					return err
				}
			}
			return sess.Snapshot(ctx, output)
		}()
		if cerr := sess.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if rerr := restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if err != nil {
			return err
		}

		recordName, _ := cmd.Flags().GetString("record-as")
		if recordName == "" {
			recordName = strings.TrimSuffix(filepath.Base(output), ".squashfs")
		}
		cat, err := catalog.Open(flagDataDir)
		if err != nil {
			return err
		}
		defer cat.Close()
		img, err := cat.Record(catalog.Image{
			Name:   recordName,
			Path:   output,
			Action: "snapshot",
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Snapshot recorded as %q (%s, %d bytes)\n", img.Name, img.Digest, img.Size)
		return nil
	},
}

func init() {
	addSpecFlags(runCmd)
	runCmd.Flags().Bool("readonly", false, "Mount the rootfs read-only, without an overlay")

	addSpecFlags(snapshotCmd)
	// Snapshotting needs the overlay: --readonly stays available so the
	// flag surface matches run, but it is rejected at invocation time.
	snapshotCmd.Flags().Bool("readonly", false, "Rejected: a snapshot requires a writable rootfs")
	snapshotCmd.Flags().String("record-as", "", "Catalog record name (defaults to the output basename)")
}
