package mount

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/system"
)

// Timeout for administrative commands (mount, umount, losetup). Never
// applied to commands run inside a container.
const adminTimeout = 5 * time.Second

// Entry is the generic mount primitive: a validated (source, target, type,
// options) tuple that can be attached and detached through the mount(8) and
// umount(8) utilities.
type Entry struct {
	// Source is not always a path to an existing node (e.g. the dummy
	// "overlayfs" or "tmpfs" source values).
	Source  string
	Target  string
	Type    string
	Options []string
}

// NewEntry validates the tuple before any system call can be issued: the
// target must be an absolute, normalized path and no option may contain a
// comma, the option separator of the underlying mount command.
func NewEntry(source, target, fstype string, options []string) (*Entry, error) {
	if !filepath.IsAbs(target) || filepath.Clean(target) != target {
		return nil, errdefs.Validationf("mount target %q must be an absolute and normalized path", target)
	}
	if err := ValidateOptions(options); err != nil {
		return nil, err
	}
	return &Entry{
		Source:  source,
		Target:  target,
		Type:    fstype,
		Options: options,
	}, nil
}

// ValidateOptions rejects any mount option containing a comma, which the
// mount command reserves as its option separator.
func ValidateOptions(options []string) error {
	for _, opt := range options {
		if strings.Contains(opt, ",") {
			return errdefs.Validationf(
				"mount option %q contains a comma, which is the option separator of the mount command", opt)
		}
	}
	return nil
}

// Mount attaches the entry.
func (e *Entry) Mount(ctx context.Context, r system.Runner) error {
	argv := []string{"mount"}
	if e.Type != "" {
		argv = append(argv, "-t", e.Type)
	}
	if len(e.Options) > 0 {
		argv = append(argv, "-o", strings.Join(e.Options, ","))
	}
	argv = append(argv, e.Source, e.Target)
	return r.Run(ctx, system.Command{Argv: argv, Timeout: adminTimeout})
}

// Unmount detaches the entry. It must be attempted during cleanup
// regardless of why cleanup was triggered.
func (e *Entry) Unmount(ctx context.Context, r system.Runner) error {
	return r.Run(ctx, system.Command{
		Argv:    []string{"umount", e.Target},
		Timeout: adminTimeout,
	})
}

func (e *Entry) String() string {
	return fmt.Sprintf("<Entry source=%q target=%q type=%q options=%v>", e.Source, e.Target, e.Type, e.Options)
}

// Mounts returns the mount points of the current mount namespace, read from
// /proc/mounts.
func Mounts() ([]*Entry, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 6 {
			return nil, fmt.Errorf("unexpected mount specification in /proc/mounts: %q", scanner.Text())
		}
		entries = append(entries, &Entry{
			Source:  unescapeField(fields[0]),
			Target:  unescapeField(fields[1]),
			Type:    fields[2],
			Options: strings.Split(fields[3], ","),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	return entries, nil
}

// unescapeField reverses the octal escaping the kernel applies to
// whitespace in /proc/mounts and losetup raw output (e.g. "\040" for a
// space).
func unescapeField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}
