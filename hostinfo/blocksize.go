package hostinfo

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BlockDeviceSize returns the size in bytes of the device or file at path.
// For a real block device it issues the BLKGETSIZE64 ioctl; for a regular
// file (used by tests standing a plain file in for a ramdisk, per
// spec.md §8 scenario 3/6) it falls back to stat size.
func BlockDeviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("hostinfo.BlockDeviceSize: opening %q: %w", path, err)
	}

	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("hostinfo.BlockDeviceSize: stat %q: %w", path, err)
	}

	if info.Mode()&os.ModeDevice == 0 {
		return uint64(info.Size()), nil
	}

	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("hostinfo.BlockDeviceSize: BLKGETSIZE64 on %q: %w", path, err)
	}

	return uint64(size), nil
}
