package mount

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/system"
)

// LoopDevice attaches a regular file as a block device node through
// losetup(8).
type LoopDevice struct {
	// BackingFile is the absolute, symlink-resolved path of the backing
	// file; the resolved form is what the loop device table reports, so it
	// is what attachment disambiguation matches on.
	BackingFile string

	// Device is the loop device node. Empty until attach when the node
	// choice is left to the kernel.
	Device string

	ReadOnly bool
}

// NewLoopDevice prepares a loop device binding over backingFile. device may
// be empty, in which case the kernel picks a free node at attach time and
// the assigned node is discovered by rescanning the loop device table.
func NewLoopDevice(backingFile, device string, readOnly bool) (*LoopDevice, error) {
	abs, err := filepath.Abs(backingFile)
	if err != nil {
		return nil, errdefs.Validationf("invalid backing file path %q: %v", backingFile, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errdefs.Validationf("backing file %q cannot be resolved: %v", backingFile, err)
	}
	if device != "" {
		if !filepath.IsAbs(device) {
			return nil, errdefs.Validationf("loop device %q must be an absolute path", device)
		}
		device = filepath.Clean(device)
	}
	return &LoopDevice{
		BackingFile: resolved,
		Device:      device,
		ReadOnly:    readOnly,
	}, nil
}

// Attach binds the backing file. When no device node was supplied the
// kernel picks a free one, and the assigned node is resolved afterwards by
// scanning the live loop device table for the backing file.
func (l *LoopDevice) Attach(ctx context.Context, r system.Runner) error {
	argv := []string{"losetup"}
	if l.ReadOnly {
		argv = append(argv, "-r")
	}
	if l.Device != "" {
		argv = append(argv, l.Device)
	} else {
		argv = append(argv, "-f")
	}
	argv = append(argv, l.BackingFile)
	if err := r.Run(ctx, system.Command{Argv: argv, Timeout: adminTimeout}); err != nil {
		return err
	}
	if l.Device != "" {
		return nil
	}
	return l.resolveDevice(ctx, r)
}

// resolveDevice rescans the loop device table for the node assigned to the
// backing file. When the same file is attached more than once the most
// recently assigned node is taken; when none matches the attachment cannot
// be identified (and therefore not detached either), which is an
// environment error.
func (l *LoopDevice) resolveDevice(ctx context.Context, r system.Runner) error {
	devices, err := ListLoopDevices(ctx, r)
	if err != nil {
		return err
	}
	for i := len(devices) - 1; i >= 0; i-- {
		if devices[i].BackingFile == l.BackingFile {
			l.Device = devices[i].Device
			return nil
		}
	}
	return errdefs.Environmentf(
		"could not find the loop device just attached over %q in the loop device table", l.BackingFile)
}

// Detach releases the device node. It must be invoked even if a dependent
// operation failed after a successful attach; logging failures never mask
// the caller's original error because Detach only returns its own.
func (l *LoopDevice) Detach(ctx context.Context, r system.Runner) error {
	if l.Device == "" {
		return errdefs.Validationf("loop device over %q has no device node to detach", l.BackingFile)
	}
	log.WithComponent("mount").Debug().Str("device", l.Device).Msg("detaching loop device")
	return r.Run(ctx, system.Command{
		Argv:    []string{"losetup", "-d", l.Device},
		Timeout: adminTimeout,
	})
}

func (l *LoopDevice) String() string {
	return fmt.Sprintf("<LoopDevice device=%q backing=%q ro=%v>", l.Device, l.BackingFile, l.ReadOnly)
}

// ListLoopDevices returns the loop devices currently attached on the
// system, in table order.
func ListLoopDevices(ctx context.Context, r system.Runner) ([]*LoopDevice, error) {
	var out bytes.Buffer
	argv := []string{"losetup", "-O", "NAME,BACK-FILE,RO", "-n", "-l", "--raw"}
	if err := r.Run(ctx, system.Command{Argv: argv, Stdout: &out, Timeout: adminTimeout}); err != nil {
		return nil, err
	}

	var devices []*LoopDevice
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, &errdefs.SystemCommandError{
				Command: system.QuoteCommand(argv),
				Reason:  fmt.Sprintf("unexpected output line: %q", line),
			}
		}
		devices = append(devices, &LoopDevice{
			Device:      unescapeField(fields[0]),
			BackingFile: unescapeField(fields[1]),
			ReadOnly:    fields[2] == "1",
		})
	}
	return devices, nil
}
