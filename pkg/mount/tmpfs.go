package mount

import (
	"context"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/system"
)

// TmpfsMount mounts an in-memory filesystem at a target directory. It
// backs both dedicated /tmp-like mountpoints and the scratch storage for
// an overlay's upper and work directories.
type TmpfsMount struct {
	Target  string
	Options []string

	entry *Entry
}

// NewTmpfsMount prepares a tmpfs mount at target with the given options
// (e.g. "size=10g", "nodev", "nosuid").
func NewTmpfsMount(target string, options []string) (*TmpfsMount, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, errdefs.Validationf("invalid tmpfs target path %q: %v", target, err)
	}
	if err := ValidateOptions(options); err != nil {
		return nil, err
	}
	return &TmpfsMount{Target: abs, Options: options}, nil
}

// Mount attaches the tmpfs.
func (m *TmpfsMount) Mount(ctx context.Context, r system.Runner) error {
	// Dummy source name, required by mount(8).
	entry, err := NewEntry("tmpfs", m.Target, "tmpfs", m.Options)
	if err != nil {
		return err
	}
	if err := entry.Mount(ctx, r); err != nil {
		return err
	}
	m.entry = entry
	return nil
}

// Unmount detaches the tmpfs.
func (m *TmpfsMount) Unmount(ctx context.Context, r system.Runner) error {
	if m.entry == nil {
		return errdefs.Validationf("tmpfs at %q is not mounted", m.Target)
	}
	err := m.entry.Unmount(ctx, r)
	m.entry = nil
	return err
}
