package fs

import (
	"fmt"
	"os"
	"syscall"
)

// OS is the file system of the host.
var OS FileSystem = osFileSystem{}

type osFileSystem struct{}

func (osFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return openOSFile(name, flag, perm)
}

type OSFile struct {
	fd   *os.File
	conn syscall.RawConn
}

func openOSFile(name string, flag int, perm os.FileMode) (File, error) {
	fd, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("fs: open %q: %w", name, err)
	}
	return newOSFile(fd)
}

// NewOSFile wraps an already opened *os.File.
func NewOSFile(fd *os.File) (*OSFile, error) {
	return newOSFile(fd)
}

func newOSFile(fd *os.File) (*OSFile, error) {
	conn, err := fd.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("fs: raw conn %q: %w", fd.Name(), err)
	}
	return &OSFile{
		fd:   fd,
		conn: conn,
	}, nil
}

func (of *OSFile) ReadAt(b []byte, off int64) (int, error) {
	n, err := of.pread(b, off)
	if err != nil {
		return n, fmt.Errorf("fs: pread %q off=%d: %w", of.fd.Name(), off, err)
	}
	return n, nil
}

func (of *OSFile) WriteAt(b []byte, off int64) (int, error) {
	n, err := of.pwrite(b, off)
	if err != nil {
		return n, fmt.Errorf("fs: pwrite %q off=%d: %w", of.fd.Name(), off, err)
	}
	return n, nil
}

func (of *OSFile) Truncate(size int64) error {
	if err := of.fd.Truncate(size); err != nil {
		return fmt.Errorf("fs: truncate %q size=%d: %w", of.fd.Name(), size, err)
	}
	return nil
}

func (of *OSFile) Size() (int64, error) {
	stat, err := of.fd.Stat()
	if err != nil {
		return 0, fmt.Errorf("fs: stat %q: %w", of.fd.Name(), err)
	}
	return stat.Size(), nil
}

func (of *OSFile) Sync() error {
	return of.fd.Sync()
}

func (of *OSFile) Close() error {
	if err := of.fd.Close(); err != nil {
		return fmt.Errorf("fs: close %q: %w", of.fd.Name(), err)
	}
	return nil
}

func (of *OSFile) Name() string {
	return of.fd.Name()
}

func (of *OSFile) Fd() uintptr {
	var fd uintptr
	_ = of.conn.Control(func(raw uintptr) {
		fd = raw
	})
	return fd
}
