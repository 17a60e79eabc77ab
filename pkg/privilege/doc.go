/*
Package privilege manages the elevate/restore cycle between an unprivileged
identity and root.

Burrow is installed setuid-root (or started as root) but runs unprivileged:
Drop is called once at process start to park root in the saved-set uid/gid
slots while real and effective ids become the configured unprivileged user.
Operations that need the kernel (mounting, loop device binding, ownership
changes) are bracketed by Elevate, which flips real and effective ids back
to 0 and tightens the umask, and by the returned restore function, which
must run unconditionally afterwards.

The elevation is single-depth and process-wide: the saved-set slot always
designates the unprivileged user once privileges were lowered, so a second
Elevate while already privileged would lose it and is rejected with
ErrNestedElevation. Callers must never enter an elevation from a scope that
already holds one.
*/
package privilege
