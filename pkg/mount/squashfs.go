package mount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/system"
)

// SquashfsMount mounts a squashfs image file read-only at a target
// directory, by way of a read-only loop device over the image.
type SquashfsMount struct {
	Image  string
	Target string

	loop  *LoopDevice
	entry *Entry
}

// NewSquashfsMount prepares a squashfs mount of image at target.
func NewSquashfsMount(image, target string) (*SquashfsMount, error) {
	absImage, err := filepath.Abs(image)
	if err != nil {
		return nil, errdefs.Validationf("invalid squashfs image path %q: %v", image, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return nil, errdefs.Validationf("invalid mount target path %q: %v", target, err)
	}
	return &SquashfsMount{Image: absImage, Target: absTarget}, nil
}

// Mount attaches a read-only loop device over the image, then mounts it at
// the target. If the mount step fails after the loop attach succeeded, the
// loop device is detached before the error propagates: the two owned
// resources unwind in LIFO order on every path.
func (m *SquashfsMount) Mount(ctx context.Context, r system.Runner) error {
	loop, err := NewLoopDevice(m.Image, "", true)
	if err != nil {
		return err
	}
	if err := loop.Attach(ctx, r); err != nil {
		return err
	}

	entry, err := NewEntry(loop.Device, m.Target, "squashfs", []string{"ro"})
	if err == nil {
		err = entry.Mount(ctx, r)
	}
	if err != nil {
		if derr := loop.Detach(ctx, r); derr != nil {
			return errors.Join(err, fmt.Errorf("failed to detach loop device during cleanup: %w", derr))
		}
		return err
	}

	m.loop = loop
	m.entry = entry
	log.WithComponent("mount").Debug().
		Str("image", m.Image).
		Str("target", m.Target).
		Str("device", loop.Device).
		Msg("squashfs mounted")
	return nil
}

// Unmount detaches the mount and releases the loop device, in reverse
// acquisition order. Both steps are always attempted; their failures are
// reported together.
func (m *SquashfsMount) Unmount(ctx context.Context, r system.Runner) error {
	if m.entry == nil || m.loop == nil {
		return errdefs.Validationf("squashfs image %q is not mounted", m.Image)
	}
	umountErr := m.entry.Unmount(ctx, r)
	detachErr := m.loop.Detach(ctx, r)
	m.entry = nil
	m.loop = nil
	return errors.Join(umountErr, detachErr)
}

// SquashfsOptions control how MakeSquashfs compresses a directory tree.
type SquashfsOptions struct {
	// Compressor is the compression method (gzip, zstd, xz, ...).
	Compressor string

	StoreXattrs       bool
	DetectSparseFiles bool
	FindDuplicates    bool

	// Selective compression of the image sections. All disabled by
	// default: the images produced here are ephemeral build artifacts
	// where build speed matters more than size.
	CompressInodeTable     bool
	CompressDataBlocks     bool
	CompressFragmentBlocks bool
	CompressExtendedAttrs  bool
}

// DefaultSquashfsOptions returns the options used for rootfs snapshots.
func DefaultSquashfsOptions() SquashfsOptions {
	return SquashfsOptions{
		Compressor:        "gzip",
		StoreXattrs:       true,
		DetectSparseFiles: true,
		FindDuplicates:    true,
	}
}

// MakeSquashfs compresses sourceDir into a squashfs image at outFile with
// the mksquashfs utility. A pre-existing output file is removed first:
// mksquashfs would otherwise append into it and silently discard the new
// content.
func MakeSquashfs(ctx context.Context, r system.Runner, outFile, sourceDir string, opts SquashfsOptions) error {
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return errdefs.Validationf("squashfs source %q must be an existing directory", sourceDir)
	}
	if opts.Compressor == "" {
		opts.Compressor = "gzip"
	}
	if _, err := os.Stat(outFile); err == nil {
		if err := os.Remove(outFile); err != nil {
			return fmt.Errorf("failed to remove pre-existing squashfs file: %w", err)
		}
	}

	argv := []string{"mksquashfs", sourceDir, outFile, "-comp", opts.Compressor}
	if opts.StoreXattrs {
		argv = append(argv, "-xattrs")
	} else {
		argv = append(argv, "-no-xattrs")
	}
	if !opts.CompressInodeTable {
		argv = append(argv, "-noI")
	}
	if !opts.CompressDataBlocks {
		argv = append(argv, "-noD")
	}
	if !opts.CompressFragmentBlocks {
		argv = append(argv, "-noF")
	}
	if !opts.CompressExtendedAttrs {
		argv = append(argv, "-noX")
	}
	if !opts.DetectSparseFiles {
		argv = append(argv, "-no-sparse")
	}
	if !opts.FindDuplicates {
		argv = append(argv, "-no-duplicates")
	}
	return r.Run(ctx, system.Command{Argv: argv, Timeout: 10 * time.Minute})
}
