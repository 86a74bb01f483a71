package backend

import (
	"io"
	"io/fs"
	"os"
)

// SubStorage is a view of a region of an underlying Storage, such as a single
// partition inside a disk image. Reads are offset into the region and bounded
// by its size, so a filesystem handed a SubStorage can never read its
// neighbors' bytes.
type SubStorage struct {
	underlying Storage
	offset     int64
	size       int64
}

func Sub(u Storage, offset, size int64) Storage {
	return SubStorage{
		underlying: u,
		offset:     offset,
		size:       size,
	}
}

func (s SubStorage) Stat() (fs.FileInfo, error) {
	return s.underlying.Stat()
}

func (s SubStorage) Read(b []byte) (int, error) {
	return s.underlying.Read(b)
}

func (s SubStorage) Close() error {
	return s.underlying.Close()
}

func (s SubStorage) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > s.size {
		return 0, ErrReadBeyondExtent
	}
	if max := s.size - off; int64(len(p)) > max {
		n, err = s.underlying.ReadAt(p[:max], s.offset+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.underlying.ReadAt(p, s.offset+off)
}

func (s SubStorage) Seek(offset int64, whence int) (int64, error) {
	var (
		pos int64
		err error
	)

	switch whence {
	case io.SeekStart:
		pos, err = s.underlying.Seek(offset+s.offset, io.SeekStart)
	case io.SeekCurrent:
		pos, err = s.underlying.Seek(offset, io.SeekCurrent)
	case io.SeekEnd:
		pos, err = s.underlying.Seek(s.offset+s.size+offset, io.SeekStart)
	default:
		return -1, ErrNotSuitable
	}

	if err != nil {
		return -1, err
	}

	return pos - s.offset, nil
}

func (s SubStorage) Sys() (*os.File, error) {
	return s.underlying.Sys()
}

func (s SubStorage) Writable() (WritableFile, error) {
	return nil, ErrIncorrectOpenMode
}
