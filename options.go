package sharedfile

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rosedblabs/sharedfile/fs"
)

// Options is used to create a new Coordinator.
type Options struct {
	// Flags is the open-mode string used for the lazy open, e.g. "r+" or "w".
	// Only the first open truncates or requires a new file: reopens after a
	// Close keep the data written so far.
	Flags string

	// File is an already opened file. When set, the Coordinator never opens
	// the path itself and never emits EventOpen for this file.
	File fs.File

	// Mode is the permission used when the open creates the file. Zero
	// means 0o666.
	Mode os.FileMode

	// AutoClose closes the file once the last stream releases it.
	AutoClose bool

	// FileSystem opens the path. Nil means the host file system.
	FileSystem fs.FileSystem

	// Logger receives lifecycle logs. Nil disables logging.
	Logger *zap.Logger
}

// DefaultOptions is the default options.
var DefaultOptions = Options{
	Flags:      "r+",
	Mode:       0o666,
	AutoClose:  true,
	FileSystem: fs.OS,
	Logger:     zap.NewNop(),
}

// Unbounded marks a stream without an end offset.
const Unbounded int64 = -1

// StreamOptions is used to create ReadStream and WriteStream.
type StreamOptions struct {
	// Start is the first byte offset of the stream.
	Start int64

	// End is the inclusive last byte offset, or Unbounded.
	End int64

	// HighWaterMark is the chunk size used by WriteTo and ReadFrom.
	// Zero selects the default.
	HighWaterMark int

	// Progress is called with the total bytes written after every physical
	// write of a WriteStream.
	Progress func(written int64)
}

// DefaultStreamOptions is the default stream options: the whole file.
var DefaultStreamOptions = StreamOptions{
	Start:         0,
	End:           Unbounded,
	HighWaterMark: 64 * 1024,
}

func (o StreamOptions) validate() error {
	if o.Start < 0 {
		return errors.Wrapf(ErrInvalidRange, "start %d is negative", o.Start)
	}
	if o.End != Unbounded {
		if o.End < 0 {
			return errors.Wrapf(ErrInvalidRange, "end %d is negative", o.End)
		}
		if o.End < o.Start {
			return errors.Wrapf(ErrInvalidRange, "end %d is before start %d", o.End, o.Start)
		}
	}
	if o.HighWaterMark < 0 {
		return errors.Wrapf(ErrInvalidRange, "high water mark %d is negative", o.HighWaterMark)
	}
	return nil
}

// CopyOptions is used by Copy.
type CopyOptions struct {
	// ChunkSize is the byte length of each range copied by one stream pair.
	ChunkSize int64

	// Concurrency is the maximum number of ranges in flight.
	Concurrency int

	// HighWaterMark is the buffer size of each stream pair.
	HighWaterMark int
}

// DefaultCopyOptions is the default copy options.
var DefaultCopyOptions = CopyOptions{
	ChunkSize:     8 * 1024 * 1024,
	Concurrency:   4,
	HighWaterMark: 64 * 1024,
}

func (o CopyOptions) validate() error {
	if o.ChunkSize <= 0 {
		return errors.Wrapf(ErrInvalidRange, "chunk size %d must be positive", o.ChunkSize)
	}
	if o.Concurrency <= 0 {
		return errors.Errorf("sharedfile: concurrency %d must be positive", o.Concurrency)
	}
	if o.HighWaterMark < 0 {
		return errors.Wrapf(ErrInvalidRange, "high water mark %d is negative", o.HighWaterMark)
	}
	return nil
}
