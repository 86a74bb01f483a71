// Package filesystem provides the interface and constants for filesystem
// implementations. The interesting implementation is in a subpackage,
// github.com/diskfs/go-exfat/filesystem/exfat
package filesystem

import (
	"errors"
	"os"
)

var (
	ErrNotSupported       = errors.New("method not supported by this filesystem")
	ErrNotImplemented     = errors.New("method not implemented (patches are welcome)")
	ErrReadonlyFilesystem = errors.New("read-only filesystem")
)

// FileSystem is a reference to a single filesystem on a disk. Read-only
// implementations return ErrReadonlyFilesystem from every mutating method.
type FileSystem interface {
	// Type return the type of filesystem
	Type() Type
	// Mkdir make a directory
	Mkdir(pathname string) error
	// ReadDir read the contents of a directory
	ReadDir(pathname string) ([]os.FileInfo, error)
	// OpenFile open a handle to read or write to a file
	OpenFile(pathname string, flag int) (File, error)
	// Rename renames (moves) oldpath to newpath. If newpath already exists and is not a directory, Rename replaces it.
	Rename(oldpath, newpath string) error
	// Remove removes the named file or (empty) directory.
	Remove(pathname string) error
	// Label get the label for the filesystem, or "" if none. Be careful to trim it, as it may contain
	// leading or following whitespace. The label is passed as-is and not cleaned up at all.
	Label() string
	// SetLabel changes the label on a writable filesystem. Different filesystems may have different
	// length constraints.
	SetLabel(label string) error
}

// Type represents the type of filesystem this is
type Type int

const (
	// TypeExfat is an exFAT compatible filesystem
	TypeExfat Type = iota
)
