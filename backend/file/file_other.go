//go:build !linux && !darwin

package file

import (
	"errors"
	"os"
)

// deviceSize gets the byte size of a block device
func deviceSize(f *os.File) (int64, error) {
	return 0, errors.New("block devices not supported on this platform")
}
