package sharedfile

import (
	"github.com/pkg/errors"

	"github.com/rosedblabs/sharedfile/fs"
)

var (
	// ErrInvalidRefCount is emitted when Unref is called without a matching Ref.
	ErrInvalidRefCount = errors.New("sharedfile: invalid ref count")

	// ErrInvalidOffset is returned when a write would cross the stream's end.
	ErrInvalidOffset = errors.New("sharedfile: write crosses end offset")

	// ErrInvalidRange is returned for malformed start/end stream options.
	ErrInvalidRange = errors.New("sharedfile: invalid range")

	// ErrInvalidFlags is returned for an unknown open-mode string.
	ErrInvalidFlags = fs.ErrInvalidFlags

	// ErrClosed is returned by streams after Close, and by a Coordinator
	// whose caller-supplied file was closed and which has no path to reopen.
	ErrClosed = errors.New("sharedfile: closed")
)
