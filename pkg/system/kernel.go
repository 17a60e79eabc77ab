package system

import (
	"os"
	"regexp"
	"strconv"

	"github.com/blang/semver/v4"
	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"

	"github.com/cuemby/burrow/pkg/errdefs"
)

var kernelReleaseRe = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)

// KernelVersion returns the running Linux kernel version. The trailing
// release suffix (e.g. "-arch1-1") is ignored; a missing micro component
// parses as zero.
func KernelVersion() (semver.Version, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return semver.Version{}, errdefs.Environmentf("cannot read kernel version: %v", err)
	}
	return ParseKernelRelease(unix.ByteSliceToString(uts.Release[:]))
}

// ParseKernelRelease parses a kernel release string such as
// "6.8.0-rc1-custom" into a version.
func ParseKernelRelease(release string) (semver.Version, error) {
	m := kernelReleaseRe.FindStringSubmatch(release)
	if m == nil {
		return semver.Version{}, errdefs.Environmentf("unexpected kernel release string %q", release)
	}
	major, _ := strconv.ParseUint(m[1], 10, 64)
	minor, _ := strconv.ParseUint(m[2], 10, 64)
	var patch uint64
	if m[3] != "" {
		patch, _ = strconv.ParseUint(m[3], 10, 64)
	}
	return semver.Version{Major: major, Minor: minor, Patch: patch}, nil
}

// TTYAttached reports whether the current process is attached to a
// terminal on stdin, stdout and stderr.
func TTYAttached() bool {
	for _, f := range []*os.File{os.Stdin, os.Stdout, os.Stderr} {
		if !isatty.IsTerminal(f.Fd()) {
			return false
		}
	}
	return true
}
