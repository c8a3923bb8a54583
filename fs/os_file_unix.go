//go:build unix

package fs

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// pread issues one pread(2). Control only pins the descriptor, so concurrent
// readers are not serialized by the runtime.
func (of *OSFile) pread(b []byte, off int64) (n int, err error) {
	ctlErr := of.conn.Control(func(fd uintptr) {
		for {
			n, err = unix.Pread(int(fd), b, off)
			if err == syscall.EINTR {
				continue
			}
			return
		}
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

func (of *OSFile) pwrite(b []byte, off int64) (n int, err error) {
	ctlErr := of.conn.Control(func(fd uintptr) {
		for {
			n, err = unix.Pwrite(int(fd), b, off)
			if err == syscall.EINTR {
				continue
			}
			return
		}
	})
	if ctlErr != nil {
		return 0, ctlErr
	}
	if n < 0 {
		n = 0
	}
	return n, err
}
