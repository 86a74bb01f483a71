package exfat

import (
	"fmt"
	"io"
	"os"

	"github.com/diskfs/go-exfat/filesystem"
)

// File represents a single file in an exFAT filesystem. Its cluster list is
// resolved once at open; reads stitch cluster-sized reads from the backend.
type File struct {
	*directoryEntry
	clusters   []uint32
	offset     int64
	filesystem *FileSystem
}

// Read reads up to len(b) bytes from the File.
// It returns the number of bytes read and any error encountered.
// At end of file, Read returns 0, io.EOF
// reads from the last known offset in the file from last read
// and increments the offset by the number of bytes read.
// Use Seek() to set at a particular point
func (fl *File) Read(b []byte) (int, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}

	// reads are bounded by ValidDataLength, not the allocated clusters, so a
	// read near the end is truncated rather than running into slack space
	size := int64(fl.validDataLength) - fl.offset
	if size <= 0 {
		return 0, io.EOF
	}
	maxRead := size
	if int64(len(b)) < maxRead {
		maxRead = int64(len(b))
	}

	read, err := fl.filesystem.readClusters(fl.clusters, b[:maxRead], fl.offset)
	fl.offset += int64(read)
	if err != nil {
		return read, err
	}
	if fl.offset >= int64(fl.validDataLength) {
		return read, io.EOF
	}
	return read, nil
}

// Write writes to the File - unsupported, read-only filesystem
func (fl *File) Write([]byte) (int, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}
	return 0, filesystem.ErrReadonlyFilesystem
}

// Seek set the offset to a particular point in the file
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}
	newOffset := int64(0)
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekEnd:
		newOffset = int64(fl.validDataLength) + offset
	case io.SeekCurrent:
		newOffset = fl.offset + offset
	}
	if newOffset < 0 {
		return fl.offset, fmt.Errorf("cannot set offset %d before start of file", offset)
	}
	fl.offset = newOffset
	return fl.offset, nil
}

// Close close the file
func (fl *File) Close() error {
	fl.filesystem = nil
	return nil
}

func (fl *File) IsReadOnly() bool {
	return fl.isReadOnly
}

func (fl *File) IsHidden() bool {
	return fl.isHidden
}

func (fl *File) IsSystem() bool {
	return fl.isSystem
}

func (fl *File) IsArchive() bool {
	return fl.isArchive
}
