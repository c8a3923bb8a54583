package sharedfile

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
)

// WriteStream writes sequentially into the byte range [Start, End] of a
// Coordinator. It holds one reference on the Coordinator until it fails or
// is closed.
//
// A WriteStream is an io.Writer and io.ReaderFrom. It is not safe for
// concurrent Write calls.
type WriteStream struct {
	*stream
	written  atomic.Int64
	progress func(int64)
}

// NewWriteStream validates options and takes a reference on c.
// ctx cancels future writes of the stream.
func NewWriteStream(ctx context.Context, c *Coordinator, options StreamOptions) (*WriteStream, error) {
	s, err := newStream(ctx, c, options)
	if err != nil {
		return nil, err
	}
	return &WriteStream{stream: s, progress: options.Progress}, nil
}

// Written returns the number of bytes written so far.
func (w *WriteStream) Written() int64 {
	return w.written.Load()
}

// Write writes all of p at the stream position. A write that would cross
// End fails with ErrInvalidOffset before any byte is written. Short
// physical writes are continued until p is written or an error occurs; any
// error terminates the stream.
func (w *WriteStream) Write(p []byte) (int, error) {
	if err := w.terminal(); err != nil {
		return 0, err
	}

	cur := w.current.Load()
	if w.remaining(cur, len(p)) < int64(len(p)) {
		err := errors.Wrapf(ErrInvalidOffset, "write of %d bytes at %d crosses end %d", len(p), cur, w.end)
		w.finalize(err)
		return 0, err
	}

	written := 0
	for written < len(p) {
		n, err := w.c.Write(w.ctx, p[written:], cur+int64(written))
		if err != nil {
			w.finalize(err)
			return written, err
		}
		if n == 0 {
			err = w.ctx.Err()
			if err == nil {
				err = io.ErrShortWrite
			}
			w.finalize(err)
			return written, err
		}
		written += n
		w.current.Add(int64(n))
		total := w.written.Add(int64(n))
		if w.progress != nil {
			w.progress(total)
		}
	}
	return written, nil
}

// WriteBatch coalesces chunks buffered by the caller into one write.
func (w *WriteStream) WriteBatch(chunks [][]byte) (int, error) {
	switch len(chunks) {
	case 0:
		return 0, nil
	case 1:
		return w.Write(chunks[0])
	}
	size := 0
	for _, chunk := range chunks {
		size += len(chunk)
	}
	buf := make([]byte, 0, size)
	for _, chunk := range chunks {
		buf = append(buf, chunk...)
	}
	return w.Write(buf)
}

// ReadFrom copies r into the stream, buffering up to the high water mark
// per write.
func (w *WriteStream) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, w.hwm)
	var total int64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
