/*
Package container turns a squashfs rootfs image into a running container
through an OCI-compatible launcher.

A Spec describes the container: rootfs image, hostname, capability set,
namespaces, extra mountpoints and device bindings. A Session materializes
one instance of a Spec: it assembles the rootfs mount stack inside an
ephemeral bundle directory, serializes a runtime configuration document
for each command invocation, and invokes the launcher against the bundle.

# Session Lifecycle

	OpenSession ──► assembled ──► Run (0..n) ──► Close
	                    │
	                    └──► Snapshot (writable sessions only)

A read-only session mounts the squashfs image directly at the bundle's
rootfs directory. A writable session stacks three mounts:

	┌─────────────────────────────────────────────┐
	│  overlay (merged)          bundle/rootfs    │
	├──────────────────┬──────────────────────────┤
	│  squashfs lower  │  tmpfs scratch           │
	│  (via loop dev)  │  (upper + work dirs)     │
	└──────────────────┴──────────────────────────┘

Resources are acquired in that order and released in exact reverse order
on Close, on every path, including when a command run in the session
failed. A writable session can be snapshotted back into a squashfs image,
which then serves as the rootfs image of a future Spec.

# Isolation Defaults

Generated runtime configurations unshare the pid, ipc, uts and mount
namespaces (plus network unless the spec shares the host network
namespace), grant the Docker default capabilities less the CAP_NET_*
ones, deny all devices except explicit bindings, set noNewPrivileges,
and mask the usual kernel introspection paths under /proc and /sys.

All external commands go through a system.Runner, so the whole package
is testable against a mock without touching the kernel.
*/
package container
