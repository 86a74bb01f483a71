package filesystem

import (
	"io"
)

// File a reference to a single file on disk
type File interface {
	io.ReadSeekCloser
	io.Writer
}
