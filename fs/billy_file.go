package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// billy files carry no descriptor; handles are numbered from here to stay
// clear of real descriptors in logs.
const billyHandleBase = 1 << 20

var billyHandles atomic.Uint64

// BillyFileSystem opens files on a go-billy filesystem.
type BillyFileSystem struct {
	fs billy.Filesystem
}

// NewBillyFileSystem wraps fsys.
func NewBillyFileSystem(fsys billy.Filesystem) *BillyFileSystem {
	return &BillyFileSystem{fs: fsys}
}

// NewMemFileSystem returns an in-memory file system.
func NewMemFileSystem() *BillyFileSystem {
	return NewBillyFileSystem(memfs.New())
}

// NewChrootFileSystem returns an OS file system rooted at dir.
func NewChrootFileSystem(dir string) *BillyFileSystem {
	return NewBillyFileSystem(osfs.New(dir))
}

func (b *BillyFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := b.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("billy: openfile %q: %w", name, err)
	}
	return &BillyFile{
		file:   f,
		fs:     b.fs,
		handle: billyHandleBase + uintptr(billyHandles.Add(1)),
	}, nil
}

// BillyFile adapts a billy.File. billy has no positional write, so WriteAt
// seeks and writes; callers must not issue WriteAt concurrently.
type BillyFile struct {
	file   billy.File
	fs     billy.Filesystem
	handle uintptr
	closed atomic.Bool
}

func (f *BillyFile) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	n, err := f.file.ReadAt(p, off)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		return n, fmt.Errorf("billy: readat %q off=%d: %w", f.file.Name(), off, err)
	}
	return n, nil
}

func (f *BillyFile) WriteAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	if _, err := f.file.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("billy: seek %q off=%d: %w", f.file.Name(), off, err)
	}
	n, err := f.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("billy: write %q off=%d: %w", f.file.Name(), off, err)
	}
	return n, nil
}

func (f *BillyFile) Truncate(size int64) error {
	if err := f.file.Truncate(size); err != nil {
		return fmt.Errorf("billy: truncate %q size=%d: %w", f.file.Name(), size, err)
	}
	return nil
}

func (f *BillyFile) Size() (int64, error) {
	info, err := f.fs.Stat(f.file.Name())
	if err != nil {
		return 0, fmt.Errorf("billy: stat %q: %w", f.file.Name(), err)
	}
	return info.Size(), nil
}

// Sync is a no-op; billy files are flushed on Close.
func (f *BillyFile) Sync() error {
	return nil
}

func (f *BillyFile) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("billy: close %q: %w", f.file.Name(), err)
	}
	return nil
}

func (f *BillyFile) Name() string {
	return f.file.Name()
}

func (f *BillyFile) Fd() uintptr {
	return f.handle
}
