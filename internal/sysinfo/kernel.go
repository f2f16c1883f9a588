package sysinfo

import (
	"golang.org/x/sys/unix"
)

// KernelRelease returns the running kernel release as reported by uname(2).
func KernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Release[:]), nil
}

// KernelAtLeast reports whether release is at or above minimum. Unparseable releases
// are treated as recent enough.
func KernelAtLeast(release, minimum string) bool {
	have, err := ParseVersion(release)
	if err != nil {
		return true
	}
	want, err := ParseVersion(minimum)
	if err != nil {
		return true
	}
	return have.GreaterThanOrEqual(want)
}
