package testhelper

import (
	"fmt"
	"os"

	"github.com/diskfs/go-exfat/backend"
)

type reader func(b []byte, offset int64) (int, error)

// FileImpl implement github.com/diskfs/go-exfat/backend.Storage
// used for testing to enable stubbing out storage
type FileImpl struct {
	Reader reader
}

// backend.Storage interface guard
var _ backend.Storage = (*FileImpl)(nil)

func (f *FileImpl) Stat() (os.FileInfo, error) {
	return nil, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt read at a particular offset
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// Seek seek a particular offset - does not actually work
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}

// Sys OS-specific file - does not actually work
func (f *FileImpl) Sys() (*os.File, error) {
	return nil, backend.ErrNotSuitable
}

// Writable read-write handle - always fails, FileImpl is a read stub
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	return nil, backend.ErrIncorrectOpenMode
}
