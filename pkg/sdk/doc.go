/*
Package sdk orchestrates build sessions inside SDK containers.

An Sdk wraps the recipe describing an SDK image and opens sessions from
it: each session binds the source tree at /mnt, the per-action output and
cache directories read-write, and dedicated tmpfs mounts at /tmp and
/var/tmp, then runs the recipe's prelude commands. Commands issued through
the session carry a fixed working directory, terminal policy and
environment, including the CURRENT_* variables describing the targeted
product, recipe, action and the SDK itself. Closing the session runs the
postlude commands before the container tears down; postlude failures are
reported alongside, never instead of, an earlier failure.

Bootstrap builds the SDK image itself from a rootfs tar archive, running
the bootstrap steps in a throwaway container and snapshotting the result
into the SDK cache.
*/
package sdk
