// Package backend provides the storage contract the exfat driver consumes:
// positioned reads over a fixed-size byte extent, whether a disk image file, a
// block device, or anything else that can satisfy the interfaces here. The
// driver never writes; Writable exists so a caller can detect up front that a
// backend was opened read-only.
package backend

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

var (
	ErrIncorrectOpenMode = errors.New("disk file or device not open for write")
	ErrNotSuitable       = errors.New("backing file is not suitable")
	ErrReadBeyondExtent  = errors.New("read beyond the end of the storage extent")
)

type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Closer
}

type WritableFile interface {
	File
	io.WriterAt
}

type Storage interface {
	File
	// OS-specific file for ioctl calls via fd
	Sys() (*os.File, error)
	// file for read-write operations; read-only backends fail with ErrIncorrectOpenMode
	Writable() (WritableFile, error)
}
