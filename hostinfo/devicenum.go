package hostinfo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DeviceNumber returns the (major, minor) pair path identifies as, for use
// as a model.Device key. A real block device reports its own rdev. A
// regular file — the ramdisk-via-tempfile fixture spec.md §8's scenarios
// stand in for a PV with — carries no block device number, so its inode is
// used as a stable synthetic minor instead; this is a test convenience,
// not a claim that two ordinary files can collide with a real device.
func DeviceNumber(path string) (major, minor uint32, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, 0, fmt.Errorf("hostinfo.DeviceNumber: stat %q: %w", path, err)
	}

	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		dev := uint64(st.Rdev)
		return uint32(unix.Major(dev)), uint32(unix.Minor(dev)), nil
	}

	return 0, uint32(st.Ino), nil
}
