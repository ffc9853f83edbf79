package fileutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskUsage returns the used fraction of the filesystem containing path.
func DiskUsage(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, fmt.Errorf("statfs %s: zero total blocks", path)
	}
	free := stat.Bavail * uint64(stat.Bsize)
	used := total - free
	return float64(used) / float64(total), nil
}

// CheckWritable verifies the process can create entries in dir.
func CheckWritable(dir string) error {
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("directory %s not writable: %w", dir, err)
	}
	return nil
}
