package container

import (
	"path/filepath"
	"regexp"
	"sort"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/mount"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// DefaultCapabilities returns the basic POSIX capabilities granted to a
// container. The list follows the Docker defaults, less the CAP_NET_* ones:
// a container sharing the host network namespace must not be able to
// reconfigure it.
func DefaultCapabilities() []string {
	return []string{
		"CAP_AUDIT_WRITE",
		"CAP_CHOWN",
		"CAP_DAC_OVERRIDE",
		"CAP_FOWNER",
		"CAP_FSETID",
		"CAP_KILL",
		"CAP_MKNOD",
		"CAP_SETFCAP",
		"CAP_SETGID",
		"CAP_SETPCAP",
		"CAP_SETUID",
		"CAP_SYS_CHROOT",
	}
}

// DefaultEnv is the environment every command run in a container starts
// from; caller-supplied variables override it.
func DefaultEnv() map[string]string {
	return map[string]string{
		"PATH": "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"TERM": "xterm",
	}
}

// Config describes a container to build a Spec from.
type Config struct {
	// Name identifies the container; it must match [a-zA-Z0-9._-]+.
	Name string

	// RootfsImage is the path to the squashfs image providing the rootfs.
	RootfsImage string

	// Hostname inside the container; defaults to Name.
	Hostname string

	// ReadOnly mounts the rootfs image directly, with no writable overlay.
	ReadOnly bool

	// SharedHostNetwork keeps the container in the host network namespace
	// so that it has networking without any routing or filtering setup on
	// the host.
	SharedHostNetwork bool
}

// Spec is the immutable-after-construction description of a container:
// rootfs image, capabilities, namespaces, mountpoints and device bindings.
// Mountpoints, device bindings and extra capabilities are added before the
// first session is opened from it.
type Spec struct {
	name              string
	rootfsImage       string
	hostname          string
	readOnly          bool
	sharedHostNetwork bool

	capabilities   map[string]struct{}
	mountpoints    []*Mountpoint
	deviceBindings []*DeviceBinding
}

// NewSpec validates the configuration and builds a container spec carrying
// the default capability set.
func NewSpec(cfg Config) (*Spec, error) {
	if !nameRe.MatchString(cfg.Name) {
		return nil, errdefs.Validationf("container name %q is invalid", cfg.Name)
	}
	if cfg.RootfsImage == "" {
		return nil, errdefs.Validationf("container %q has no rootfs image", cfg.Name)
	}
	rootfsImage, err := filepath.Abs(cfg.RootfsImage)
	if err != nil {
		return nil, errdefs.Validationf("invalid rootfs image path %q: %v", cfg.RootfsImage, err)
	}
	hostname := cfg.Hostname
	if hostname == "" {
		hostname = cfg.Name
	}
	caps := make(map[string]struct{})
	for _, c := range DefaultCapabilities() {
		caps[c] = struct{}{}
	}
	return &Spec{
		name:              cfg.Name,
		rootfsImage:       rootfsImage,
		hostname:          hostname,
		readOnly:          cfg.ReadOnly,
		sharedHostNetwork: cfg.SharedHostNetwork,
		capabilities:      caps,
	}, nil
}

func (s *Spec) Name() string            { return s.name }
func (s *Spec) RootfsImage() string     { return s.rootfsImage }
func (s *Spec) Hostname() string        { return s.hostname }
func (s *Spec) ReadOnly() bool          { return s.readOnly }
func (s *Spec) SharedHostNetwork() bool { return s.sharedHostNetwork }

// AddCapabilities grants additional capabilities on top of the defaults.
func (s *Spec) AddCapabilities(caps ...string) {
	for _, c := range caps {
		s.capabilities[c] = struct{}{}
	}
}

// Capabilities returns the capability set in sorted order.
func (s *Spec) Capabilities() []string {
	caps := make([]string, 0, len(s.capabilities))
	for c := range s.capabilities {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return caps
}

// AddMountpoint appends a caller-supplied mountpoint. The required system
// mountpoints always come ahead of these in the runtime spec.
func (s *Spec) AddMountpoint(m *Mountpoint) {
	s.mountpoints = append(s.mountpoints, m)
}

// AddDeviceBinding binds a host device node into the container.
func (s *Spec) AddDeviceBinding(b *DeviceBinding) {
	s.deviceBindings = append(s.deviceBindings, b)
}

// UnsharedNamespaces returns the Linux namespaces the container is
// unshared from, following the OCI nomenclature. The network namespace is
// kept shared with the host when SharedHostNetwork is set.
func (s *Spec) UnsharedNamespaces() []string {
	namespaces := []string{"pid", "ipc", "uts", "mount"}
	if !s.sharedHostNetwork {
		namespaces = append(namespaces, "network")
	}
	return namespaces
}

// Mountpoint is a mount destination inside a container rootfs, emitted
// into the runtime spec rather than performed directly.
type Mountpoint struct {
	// Source is not always a path to an existing node (e.g. the dummy
	// "tmpfs" source value).
	Source      string
	Destination string
	Type        string
	Options     []string
}

// NewMountpoint validates a container mountpoint: the destination must be
// an absolute normalized path and no option may contain a comma.
func NewMountpoint(source, destination, fstype string, options []string) (*Mountpoint, error) {
	if !filepath.IsAbs(destination) || filepath.Clean(destination) != destination {
		return nil, errdefs.Validationf(
			"mountpoint destination %q must be an absolute and normalized path", destination)
	}
	if err := mount.ValidateOptions(options); err != nil {
		return nil, err
	}
	return &Mountpoint{
		Source:      source,
		Destination: destination,
		Type:        fstype,
		Options:     options,
	}, nil
}
