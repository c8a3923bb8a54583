//go:build !unix

package fs

import (
	"errors"
	"io"
)

func (of *OSFile) pread(b []byte, off int64) (int, error) {
	n, err := of.fd.ReadAt(b, off)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (of *OSFile) pwrite(b []byte, off int64) (int, error) {
	return of.fd.WriteAt(b, off)
}
