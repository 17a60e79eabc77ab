package privilege

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
)

// ErrNestedElevation is returned by Elevate when the process is already
// running with an effective root identity. Nested elevations are
// unsupported: the saved-set slot can only track one unprivileged identity.
var ErrNestedElevation = errors.New("nested privilege elevations are not supported")

// Umask applied while elevated, appropriate for root-owned artifact
// creation.
const elevatedUmask = 0o022

// Context manages the single elevate/restore cycle between an unprivileged
// identity and root. It is constructed once at process start from the
// target unprivileged uid/gid and threaded explicitly through the call
// graph; privilege handling is never a package-load side effect.
type Context struct {
	uid int
	gid int
}

// New creates a privilege context for the given unprivileged identity.
func New(uid, gid int) (*Context, error) {
	if uid <= 0 || gid <= 0 {
		return nil, errdefs.Validationf("unprivileged uid/gid must be non-root, got %d/%d", uid, gid)
	}
	return &Context{uid: uid, gid: gid}, nil
}

// UID returns the unprivileged uid this context restores to.
func (c *Context) UID() int { return c.uid }

// GID returns the unprivileged gid this context restores to.
func (c *Context) GID() int { return c.gid }

// Drop lowers the process privileges at startup: supplementary groups are
// reset to those of the unprivileged user, then real and effective ids are
// set to the unprivileged identity while root is parked in the saved-set
// slot for later elevation.
func (c *Context) Drop() error {
	groups := []int{c.gid}
	if u, err := user.LookupId(strconv.Itoa(c.uid)); err == nil {
		if ids, err := u.GroupIds(); err == nil {
			groups = groups[:0]
			for _, id := range ids {
				if gid, err := strconv.Atoi(id); err == nil {
					groups = append(groups, gid)
				}
			}
		}
	}
	if err := unix.Setgroups(groups); err != nil {
		return fmt.Errorf("failed to reset supplementary groups: %w", err)
	}
	// GID before UID, the other way around fails once uid 0 is gone.
	if err := unix.Setresgid(c.gid, c.gid, 0); err != nil {
		return fmt.Errorf("failed to lower gid: %w", err)
	}
	if err := unix.Setresuid(c.uid, c.uid, 0); err != nil {
		return fmt.Errorf("failed to lower uid: %w", err)
	}
	log.WithComponent("privilege").Debug().
		Int("uid", c.uid).
		Int("gid", c.gid).
		Msg("privileges lowered")
	return nil
}

// Possible reports whether an elevation can succeed: the saved-set ids must
// designate root while the real and effective identity is unprivileged.
func Possible() bool {
	ruid, euid, suid := unix.Getresuid()
	rgid, egid, sgid := unix.Getresgid()
	return suid == 0 && sgid == 0 && ruid != 0 && euid != 0 && rgid != 0 && egid != 0
}

// Elevate flips the real and effective identity to root, preserving the
// current unprivileged identity in the saved-set slot, and tightens the
// umask. It returns the unprivileged uid/gid that were in effect and a
// restore function that must be called unconditionally once the privileged
// work is done.
//
// The restore function reads the unprivileged identity back from the
// saved-set slot rather than from captured values, and restores the prior
// umask. Elevating while already privileged is an error.
func (c *Context) Elevate() (uid, gid int, restore func() error, err error) {
	euid := unix.Geteuid()
	egid := unix.Getegid()
	if euid == 0 || egid == 0 {
		return 0, 0, nil, ErrNestedElevation
	}

	// GID before UID, the other way around fails.
	if err := unix.Setresgid(0, 0, egid); err != nil {
		return 0, 0, nil, errdefs.Environmentf("cannot elevate gid to root: %v", err)
	}
	if err := unix.Setresuid(0, 0, euid); err != nil {
		gidErr := unix.Setresgid(egid, egid, 0)
		return 0, 0, nil, errors.Join(
			errdefs.Environmentf("cannot elevate uid to root: %v", err),
			gidErr,
		)
	}
	prevMask := unix.Umask(elevatedUmask)
	log.WithComponent("privilege").Debug().Msg("privileges elevated")

	restore = func() error {
		unix.Umask(prevMask)
		_, _, suid := unix.Getresuid()
		_, _, sgid := unix.Getresgid()
		// GID before UID, as in Drop: lowering the uid first would leave
		// no permission to change the gid.
		if err := unix.Setresgid(sgid, sgid, 0); err != nil {
			return fmt.Errorf("failed to restore gid: %w", err)
		}
		if err := unix.Setresuid(suid, suid, 0); err != nil {
			return fmt.Errorf("failed to restore uid: %w", err)
		}
		log.WithComponent("privilege").Debug().Msg("privileges restored")
		return nil
	}
	return euid, egid, restore, nil
}
