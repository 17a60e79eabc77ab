package container

import (
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/cuemby/burrow/pkg/errdefs"
)

// DeviceBinding binds a host device node into a container. The device
// status (major/minor numbers, file mode, ownership, char-vs-block kind)
// is captured from the host node at construction time: it is a
// point-in-time snapshot, not a live reference.
//
// The OCI runtime provides /dev/null, /dev/zero, /dev/full, /dev/random,
// /dev/urandom, /dev/tty, /dev/console and /dev/ptmx on its own; those
// never need a binding.
type DeviceBinding struct {
	HostDevice      string
	ContainerDevice string

	devType  string // "c" or "b"
	major    int64
	minor    int64
	fileMode os.FileMode
	uid      uint32
	gid      uint32
}

// NewDeviceBinding captures the current status of hostDevice, which must
// be an absolute path to an existing character or block special file.
// containerDevice defaults to the same path.
func NewDeviceBinding(hostDevice, containerDevice string) (*DeviceBinding, error) {
	if !filepath.IsAbs(hostDevice) || filepath.Clean(hostDevice) != hostDevice {
		return nil, errdefs.Validationf(
			"host device %q must be an absolute and normalized path", hostDevice)
	}
	if containerDevice == "" {
		containerDevice = hostDevice
	} else if !filepath.IsAbs(containerDevice) || filepath.Clean(containerDevice) != containerDevice {
		return nil, errdefs.Validationf(
			"container device %q must be an absolute and normalized path", containerDevice)
	}

	var st unix.Stat_t
	// Lstat: a symlink to a device is not itself a device node.
	if err := unix.Lstat(hostDevice, &st); err != nil {
		return nil, errdefs.Validationf("cannot stat host device %q: %v", hostDevice, err)
	}
	var devType string
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFCHR:
		devType = "c"
	case unix.S_IFBLK:
		devType = "b"
	default:
		return nil, errdefs.Validationf(
			"host device %q must be a character or block special file", hostDevice)
	}

	return &DeviceBinding{
		HostDevice:      hostDevice,
		ContainerDevice: containerDevice,
		devType:         devType,
		major:           int64(unix.Major(uint64(st.Rdev))),
		minor:           int64(unix.Minor(uint64(st.Rdev))),
		fileMode:        os.FileMode(st.Mode & 0o7777),
		uid:             st.Uid,
		gid:             st.Gid,
	}, nil
}

func (b *DeviceBinding) String() string {
	return fmt.Sprintf("<DeviceBinding %s %s %d:%d -> %s>",
		b.devType, b.HostDevice, b.major, b.minor, b.ContainerDevice)
}

// device returns the runtime spec device entry for the binding.
func (b *DeviceBinding) device() specs.LinuxDevice {
	fileMode := b.fileMode
	uid := b.uid
	gid := b.gid
	return specs.LinuxDevice{
		Path:     b.ContainerDevice,
		Type:     b.devType,
		Major:    b.major,
		Minor:    b.minor,
		FileMode: &fileMode,
		UID:      &uid,
		GID:      &gid,
	}
}

// cgroupRule returns the device cgroup allow rule for the binding; the
// device policy is deny-all with one explicit rule per binding.
func (b *DeviceBinding) cgroupRule() specs.LinuxDeviceCgroup {
	major := b.major
	minor := b.minor
	return specs.LinuxDeviceCgroup{
		Allow:  true,
		Type:   b.devType,
		Major:  &major,
		Minor:  &minor,
		Access: "rwm",
	}
}
