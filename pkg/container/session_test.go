package container

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/system"
)

// writeRootfsImage creates a fake squashfs image file and returns its
// symlink-resolved path, the form the loop device table would report.
func writeRootfsImage(t *testing.T) string {
	t.Helper()
	image := filepath.Join(t.TempDir(), "rootfs.squashfs")
	if err := os.WriteFile(image, []byte("squashfs"), 0o644); err != nil {
		t.Fatal(err)
	}
	resolved, err := filepath.EvalSymlinks(image)
	if err != nil {
		t.Fatal(err)
	}
	return resolved
}

// sessionRunner scripts the loop device table so that loop attachment
// resolution succeeds against the mock. failOn, when set, fails the first
// command whose argv starts with that prefix.
func sessionRunner(image string, failOn ...string) *system.MockRunner {
	mr := &system.MockRunner{}
	mr.RunFunc = func(ctx context.Context, cmd system.Command) error {
		if len(failOn) > 0 && len(cmd.Argv) >= len(failOn) {
			match := true
			for i, p := range failOn {
				if cmd.Argv[i] != p {
					match = false
					break
				}
			}
			if match {
				return &errdefs.SystemCommandError{
					Command: system.QuoteCommand(cmd.Argv),
					Reason:  "exited with status 32",
				}
			}
		}
		if len(cmd.Argv) >= 2 && cmd.Argv[0] == "losetup" && cmd.Argv[1] == "-O" {
			fmt.Fprintf(cmd.Stdout, "/dev/loop3 %s 1\n", image)
		}
		return nil
	}
	return mr
}

func openTestSession(t *testing.T, mr *system.MockRunner, cfg Config) *Session {
	t.Helper()
	image := cfg.RootfsImage
	require.NotEmpty(t, image)
	spec := testSpec(t, cfg)
	sess, err := OpenSession(context.Background(), spec, SessionConfig{
		Runner:  mr,
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	return sess
}

func TestOpenSessionReadOnly(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	sess := openTestSession(t, mr, Config{RootfsImage: image, ReadOnly: true})

	assert.Equal(t, StateAssembled, sess.State())
	assert.True(t, strings.HasPrefix(filepath.Base(sess.BundleDir()), "sdk."),
		"bundle directory %q must carry the container name", sess.BundleDir())
	assert.DirExists(t, sess.RootfsDir())

	// One loop attach, one table rescan, one squashfs mount, no overlay.
	assert.Equal(t, 1, mr.CallCount("losetup", "-r", "-f"))
	assert.Equal(t, 1, mr.CallCount("mount", "-t", "squashfs"))
	assert.Equal(t, 0, mr.CallCount("mount", "-t", "overlay"))
	assert.Equal(t, 0, mr.CallCount("mount", "-t", "tmpfs"))

	require.NoError(t, sess.Close())
	assert.Equal(t, 1, mr.CallCount("umount"))
	assert.Equal(t, 1, mr.CallCount("losetup", "-d", "/dev/loop3"))
	assert.NoDirExists(t, sess.BundleDir())
}

func TestOpenSessionWritableStacksMounts(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	sess := openTestSession(t, mr, Config{RootfsImage: image})

	assert.Equal(t, 1, mr.CallCount("mount", "-t", "squashfs"))
	assert.Equal(t, 1, mr.CallCount("mount", "-t", "tmpfs"))
	assert.Equal(t, 1, mr.CallCount("mount", "-t", "overlay"))
	assert.DirExists(t, filepath.Join(sess.BundleDir(), "overlay", "tmpfs", "upper"))
	assert.DirExists(t, filepath.Join(sess.BundleDir(), "overlay", "tmpfs", "work"))

	require.NoError(t, sess.Close())

	// Teardown must run in exact reverse acquisition order: overlay merge,
	// tmpfs scratch, squashfs lower, loop device.
	var teardown []string
	for _, call := range mr.Calls {
		switch call[0] {
		case "umount":
			teardown = append(teardown, call[1])
		case "losetup":
			if call[1] == "-d" {
				teardown = append(teardown, "detach")
			}
		}
	}
	want := []string{
		sess.RootfsDir(),
		filepath.Join(sess.BundleDir(), "overlay", "tmpfs"),
		filepath.Join(sess.BundleDir(), "overlay", "lower"),
		"detach",
	}
	assert.Equal(t, want, teardown)
}

func TestOpenSessionUnwindsOnOverlayFailure(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image, "mount", "-t", "overlay")
	spec := testSpec(t, Config{RootfsImage: image})

	workDir := t.TempDir()
	_, err := OpenSession(context.Background(), spec, SessionConfig{
		Runner:  mr,
		WorkDir: workDir,
	})
	var scerr *errdefs.SystemCommandError
	require.ErrorAs(t, err, &scerr)

	// The tmpfs and squashfs mounts and the loop device acquired before the
	// failure must all be released, and the bundle directory removed.
	assert.Equal(t, 2, mr.CallCount("umount"))
	assert.Equal(t, 1, mr.CallCount("losetup", "-d"))
	entries, readErr := os.ReadDir(workDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "a failed open must not leave a bundle directory behind")
}

func TestSessionRunWritesSpecAndInvokesLauncher(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	sess := openTestSession(t, mr, Config{RootfsImage: image, ReadOnly: true})
	defer sess.Close()

	err := sess.Run(context.Background(), Invocation{
		Args: []string{"/bin/sh", "-c", "true"},
		Cwd:  "/build",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, mr.CallCount("/usr/bin/runc", "run", "--bundle", sess.BundleDir(), sess.Name()))

	data, err := os.ReadFile(filepath.Join(sess.BundleDir(), "config.json"))
	require.NoError(t, err)
	var doc specs.Spec
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"/bin/sh", "-c", "true"}, doc.Process.Args)
	assert.Equal(t, "/build", doc.Process.Cwd)
	assert.Equal(t, "sdk", doc.Hostname)
}

func TestSessionRunWithoutLauncher(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	mr.Paths = map[string]string{"losetup": "/usr/sbin/losetup", "mount": "/usr/bin/mount"}
	sess := openTestSession(t, mr, Config{RootfsImage: image, ReadOnly: true})
	defer sess.Close()

	err := sess.Run(context.Background(), Invocation{Args: []string{"true"}})
	var eerr *errdefs.EnvironmentError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, 0, mr.CallCount("/usr/bin/runc"))
}

func TestSessionRunFallsBackToDockerRunc(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	mr.Paths = map[string]string{"docker-runc": "/usr/bin/docker-runc"}
	sess := openTestSession(t, mr, Config{RootfsImage: image, ReadOnly: true})
	defer sess.Close()

	require.NoError(t, sess.Run(context.Background(), Invocation{Args: []string{"true"}}))
	assert.Equal(t, 1, mr.CallCount("/usr/bin/docker-runc", "run"))
}

func TestSessionRunAfterClose(t *testing.T) {
	image := writeRootfsImage(t)
	sess := openTestSession(t, sessionRunner(image), Config{RootfsImage: image, ReadOnly: true})
	require.NoError(t, sess.Close())

	err := sess.Run(context.Background(), Invocation{Args: []string{"true"}})
	var serr *errdefs.SessionStateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "run", serr.Op)
}

func TestSessionCloseTwice(t *testing.T) {
	image := writeRootfsImage(t)
	sess := openTestSession(t, sessionRunner(image), Config{RootfsImage: image, ReadOnly: true})
	require.NoError(t, sess.Close())

	err := sess.Close()
	var serr *errdefs.SessionStateError
	require.ErrorAs(t, err, &serr)
}

func TestSnapshotReadOnlySessionIsRejected(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	sess := openTestSession(t, mr, Config{RootfsImage: image, ReadOnly: true})
	defer sess.Close()

	err := sess.Snapshot(context.Background(), filepath.Join(t.TempDir(), "out.squashfs"))
	var snerr *errdefs.SnapshotError
	require.ErrorAs(t, err, &snerr)
	assert.Equal(t, 0, mr.CallCount("mksquashfs"), "a rejected snapshot must have no side effect")
}

func TestSnapshotWritableSession(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	sess := openTestSession(t, mr, Config{RootfsImage: image})
	defer sess.Close()

	out := filepath.Join(t.TempDir(), "out.squashfs")
	require.NoError(t, sess.Snapshot(context.Background(), out))
	assert.Equal(t, 1, mr.CallCount("mksquashfs", sess.RootfsDir(), out))
}

func TestSessionCopiesHostResolvConf(t *testing.T) {
	if _, err := os.Stat("/etc/resolv.conf"); err != nil {
		t.Skip("host has no /etc/resolv.conf")
	}
	image := writeRootfsImage(t)
	mr := sessionRunner(image)
	// The mock performs no real mount, so materialize the /etc the merged
	// rootfs would provide when the overlay mount command runs.
	inner := mr.RunFunc
	mr.RunFunc = func(ctx context.Context, cmd system.Command) error {
		if len(cmd.Argv) >= 3 && cmd.Argv[0] == "mount" && cmd.Argv[2] == "overlay" {
			target := cmd.Argv[len(cmd.Argv)-1]
			if err := os.MkdirAll(filepath.Join(target, "etc"), 0o755); err != nil {
				return err
			}
		}
		return inner(ctx, cmd)
	}

	sess := openTestSession(t, mr, Config{
		RootfsImage:       image,
		SharedHostNetwork: true,
	})
	defer sess.Close()

	assert.FileExists(t, filepath.Join(sess.RootfsDir(), "etc", "resolv.conf"))
}

func TestReadOnlySessionSkipsResolvConfCopy(t *testing.T) {
	image := writeRootfsImage(t)
	mr := sessionRunner(image)

	// The mounted squashfs is immutable, so the session must not try to
	// write into it; opening must succeed without any /etc materialized
	// under the mount target.
	sess := openTestSession(t, mr, Config{
		RootfsImage:       image,
		ReadOnly:          true,
		SharedHostNetwork: true,
	})
	defer sess.Close()

	assert.NoFileExists(t, filepath.Join(sess.RootfsDir(), "etc", "resolv.conf"))
}
