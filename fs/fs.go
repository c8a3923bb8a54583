// Package fs abstracts the physical file underneath a shared file.
//
// Positional reads and writes issue exactly one call to the backend and
// report what was transferred. A short transfer is not an error, and end of
// file is reported as zero bytes with a nil error.
package fs

import (
	"errors"
	"os"
)

// ErrClosed is returned by operations on a file that was already closed.
var ErrClosed = errors.New("fs: file already closed")

type File interface {
	// ReadAt reads up to len(p) bytes at off with a single call.
	// It returns 0, nil at end of file.
	ReadAt(p []byte, off int64) (int, error)
	// WriteAt writes up to len(p) bytes at off with a single call.
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Size() (int64, error)
	Sync() error
	Close() error
	Name() string
	// Fd returns the descriptor number, or a synthetic handle number for
	// backends without descriptors.
	Fd() uintptr
}

// FileSystem opens files.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
}

// Open opens name on fsys, falling back to the OS file system when fsys is nil.
func Open(name string, flag int, perm os.FileMode, fsys FileSystem) (File, error) {
	if fsys == nil {
		fsys = OS
	}
	return fsys.OpenFile(name, flag, perm)
}
