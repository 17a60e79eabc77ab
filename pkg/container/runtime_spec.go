package container

import (
	"fmt"
	"sort"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ociVersion is the version of the runtime specification the generated
// bundle configuration declares.
const ociVersion = "1.1.0"

// nofileLimit is the open file descriptor limit applied to the container
// process, hard and soft.
const nofileLimit = 4096

// Invocation is the per-launch tuple turned, together with a Spec, into a
// runtime configuration document.
type Invocation struct {
	// Args is the command line to run inside the container.
	Args []string

	// Env is merged over DefaultEnv; caller values win.
	Env map[string]string

	// Cwd is the working directory inside the container; defaults to "/".
	Cwd string

	// Terminal requests a pseudo-terminal for the process.
	Terminal bool

	// UID and GID of the process inside the container.
	UID uint32
	GID uint32
}

// requiredMountpoints returns the system mountpoints every container
// gets, always ahead of any caller-supplied mountpoint. The list and its
// options come from a `runc spec` default bundle.
func requiredMountpoints() []*Mountpoint {
	return []*Mountpoint{
		{Source: "proc", Destination: "/proc", Type: "proc"},
		{Source: "tmpfs", Destination: "/dev", Type: "tmpfs",
			Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
		{Source: "devpts", Destination: "/dev/pts", Type: "devpts",
			Options: []string{"nosuid", "noexec", "newinstance", "ptmxmode=0666", "mode=0620", "gid=5"}},
		{Source: "shm", Destination: "/dev/shm", Type: "tmpfs",
			Options: []string{"nosuid", "noexec", "nodev", "mode=1777", "size=65536k"}},
		{Source: "mqueue", Destination: "/dev/mqueue", Type: "mqueue",
			Options: []string{"nosuid", "noexec", "nodev"}},
		{Source: "sysfs", Destination: "/sys", Type: "sysfs",
			Options: []string{"nosuid", "noexec", "nodev", "ro"}},
		{Source: "cgroup", Destination: "/sys/fs/cgroup", Type: "cgroup",
			Options: []string{"nosuid", "noexec", "nodev", "relatime", "ro"}},
	}
}

// maskedPaths are host kernel introspection surfaces hidden from the
// container.
func maskedPaths() []string {
	return []string{
		"/proc/kcore",
		"/proc/latency_stats",
		"/proc/timer_list",
		"/proc/timer_stats",
		"/proc/sched_debug",
		"/sys/firmware",
		"/proc/scsi",
	}
}

// readonlyPaths are proc/sys surfaces left visible but never writable.
func readonlyPaths() []string {
	return []string{
		"/proc/asound",
		"/proc/bus",
		"/proc/fs",
		"/proc/irq",
		"/proc/sys",
		"/proc/sysrq-trigger",
	}
}

// mergedEnv flattens DefaultEnv overridden by inv.Env into the
// "KEY=value" form of the runtime spec, in sorted key order so that the
// serialized document is deterministic.
func mergedEnv(env map[string]string) []string {
	merged := DefaultEnv()
	for k, v := range env {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, merged[k]))
	}
	return out
}

// runtimeSpec materializes the runtime configuration document for one
// invocation of a command within the container.
func (s *Spec) runtimeSpec(inv Invocation) *specs.Spec {
	caps := s.Capabilities()
	cwd := inv.Cwd
	if cwd == "" {
		cwd = "/"
	}

	mountpoints := append(requiredMountpoints(), s.mountpoints...)
	mounts := make([]specs.Mount, 0, len(mountpoints))
	for _, m := range mountpoints {
		mounts = append(mounts, specs.Mount{
			Source:      m.Source,
			Destination: m.Destination,
			Type:        m.Type,
			Options:     m.Options,
		})
	}

	devices := make([]specs.LinuxDevice, 0, len(s.deviceBindings))
	// Deny everything in the devices cgroup, then allow each binding.
	deviceRules := []specs.LinuxDeviceCgroup{{Allow: false, Access: "rwm"}}
	for _, b := range s.deviceBindings {
		devices = append(devices, b.device())
		deviceRules = append(deviceRules, b.cgroupRule())
	}

	namespaces := make([]specs.LinuxNamespace, 0, 5)
	for _, ns := range s.UnsharedNamespaces() {
		namespaces = append(namespaces, specs.LinuxNamespace{
			Type: specs.LinuxNamespaceType(ns),
		})
	}

	return &specs.Spec{
		Version: ociVersion,
		Process: &specs.Process{
			Terminal: inv.Terminal,
			User: specs.User{
				UID: inv.UID,
				GID: inv.GID,
			},
			Args: inv.Args,
			Env:  mergedEnv(inv.Env),
			Cwd:  cwd,
			Capabilities: &specs.LinuxCapabilities{
				Bounding:    caps,
				Effective:   caps,
				Inheritable: caps,
				Permitted:   caps,
				Ambient:     caps,
			},
			Rlimits: []specs.POSIXRlimit{
				{Type: "RLIMIT_NOFILE", Hard: nofileLimit, Soft: nofileLimit},
			},
			NoNewPrivileges: true,
		},
		Root: &specs.Root{
			// Relative to the bundle directory. The rootfs stays
			// writable at the OCI level; read-only containers are
			// enforced by the squashfs mount underneath.
			Path:     "rootfs",
			Readonly: false,
		},
		Hostname: s.hostname,
		Mounts:   mounts,
		Linux: &specs.Linux{
			Devices: devices,
			Resources: &specs.LinuxResources{
				Devices: deviceRules,
			},
			Namespaces:    namespaces,
			MaskedPaths:   maskedPaths(),
			ReadonlyPaths: readonlyPaths(),
		},
	}
}
