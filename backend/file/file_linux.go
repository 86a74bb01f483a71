package file

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// deviceSize gets the byte size of a block device
func deviceSize(f *os.File) (int64, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("unable to get device size: %v", err)
	}
	return int64(size), nil
}
