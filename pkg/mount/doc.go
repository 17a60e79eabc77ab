/*
Package mount composes the kernel resources a container rootfs is built
from: loop devices, generic mount entries, and the squashfs, overlay and
tmpfs mounts layered on top of them.

# Architecture

	┌───────────────────── MOUNT STACK ─────────────────────────┐
	│                                                            │
	│  ┌──────────────┐  ┌───────────────┐  ┌───────────────┐   │
	│  │ SquashfsMount│  │ OverlayfsMount│  │   TmpfsMount   │   │
	│  │ loop + ro    │  │ lower/upper/  │  │  in-memory     │   │
	│  │ squashfs     │  │ work dirs     │  │  scratch       │   │
	│  └──────┬───────┘  └───────┬───────┘  └───────┬───────┘   │
	│         │                  │                  │            │
	│  ┌──────▼──────┐   ┌───────▼──────────────────▼───────┐   │
	│  │ LoopDevice  │   │             Entry                 │   │
	│  │ losetup(8)  │   │  validated (source, target,       │   │
	│  │ attach/     │   │  type, options) tuple driven      │   │
	│  │ detach      │   │  through mount(8) / umount(8)     │   │
	│  └─────────────┘   └──────────────────────────────────┘   │
	└────────────────────────────────────────────────────────────┘

Validation happens at construction, before any system call: options must
not contain commas (the mount option separator), targets must be absolute
normalized paths, overlay lower directories must not contain colons (the
layer separator), and upperdir/workdir come in pairs.

Resource acquisition is strictly nested. SquashfsMount owns a loop device
and a mount entry and unwinds them LIFO on its own; larger compositions
(the container rootfs stack) push release actions onto a ReleaseStack,
which runs them in reverse acquisition order on every exit path and joins
cleanup errors instead of letting one mask another.

All external commands go through a system.Runner, so the whole package is
testable with a recording mock and no kernel access.
*/
package mount
