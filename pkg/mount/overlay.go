package mount

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/system"
)

var (
	overlayIndexOffMin     = semver.MustParse("4.13.0")
	overlayNFSExportOffMin = semver.MustParse("4.16.0")
)

// OverlayfsMount mounts an overlay filesystem merging one or more
// read-only lower layers with an optional writable upper layer.
type OverlayfsMount struct {
	Merged string
	Lower  []string
	Upper  string
	Work   string

	// ExtraOptions are appended to the generated layer options. They may
	// not redefine lowerdir/upperdir/workdir.
	ExtraOptions []string

	entry *Entry
}

// NewOverlayfsMount validates and prepares an overlay mount at merged.
// upper and work are interdependent: both present (writable overlay) or
// both absent (read-only stacking).
func NewOverlayfsMount(merged string, lower []string, upper, work string, extra []string) (*OverlayfsMount, error) {
	if len(lower) == 0 {
		return nil, errdefs.Validationf("an overlay requires at least one lower directory")
	}
	absMerged, err := filepath.Abs(merged)
	if err != nil {
		return nil, errdefs.Validationf("invalid merged directory path %q: %v", merged, err)
	}
	absLower := make([]string, 0, len(lower))
	for _, dir := range lower {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, errdefs.Validationf("invalid lower directory path %q: %v", dir, err)
		}
		if strings.Contains(abs, ":") {
			return nil, errdefs.Validationf(
				"lower directory %q contains a colon, which is the layer separator of the overlay mount options", abs)
		}
		absLower = append(absLower, abs)
	}
	if (upper == "") != (work == "") {
		return nil, errdefs.Validationf(
			"upperdir and workdir are interdependent, provide both or none of them")
	}
	if upper != "" {
		if upper, err = filepath.Abs(upper); err != nil {
			return nil, errdefs.Validationf("invalid upper directory path: %v", err)
		}
		if work, err = filepath.Abs(work); err != nil {
			return nil, errdefs.Validationf("invalid work directory path: %v", err)
		}
	}
	for _, opt := range extra {
		if strings.HasPrefix(opt, "lowerdir=") ||
			strings.HasPrefix(opt, "upperdir=") ||
			strings.HasPrefix(opt, "workdir=") {
			return nil, errdefs.Validationf(
				"extra overlay option %q would redefine a layer directory", opt)
		}
	}
	return &OverlayfsMount{
		Merged:       absMerged,
		Lower:        absLower,
		Upper:        upper,
		Work:         work,
		ExtraOptions: extra,
	}, nil
}

func (m *OverlayfsMount) options() []string {
	options := []string{"lowerdir=" + strings.Join(m.Lower, ":")}
	if m.Upper != "" {
		options = append(options, "upperdir="+m.Upper, "workdir="+m.Work)
	}
	return append(options, m.ExtraOptions...)
}

// Mount attaches the overlay.
func (m *OverlayfsMount) Mount(ctx context.Context, r system.Runner) error {
	// Dummy source name, required by mount(8).
	entry, err := NewEntry("overlayfs", m.Merged, "overlay", m.options())
	if err != nil {
		return err
	}
	if err := entry.Mount(ctx, r); err != nil {
		return err
	}
	m.entry = entry
	return nil
}

// Unmount detaches the overlay.
func (m *OverlayfsMount) Unmount(ctx context.Context, r system.Runner) error {
	if m.entry == nil {
		return errdefs.Validationf("overlay at %q is not mounted", m.Merged)
	}
	err := m.entry.Unmount(ctx, r)
	m.entry = nil
	return err
}

// OverlayTuningOptions returns the best-effort overlay options applicable
// on the given kernel. A squashfs lower layer does not support file
// handles, so file handle indexing and NFS exporting are switched off where
// the kernel knows those options; older kernels would reject them at mount
// time, so below the thresholds they are simply omitted.
func OverlayTuningOptions(kernel semver.Version) []string {
	var options []string
	if kernel.GTE(overlayIndexOffMin) {
		options = append(options, "index=off")
	}
	if kernel.GTE(overlayNFSExportOffMin) {
		options = append(options, "nfs_export=off")
	}
	return options
}
