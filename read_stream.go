package sharedfile

import (
	"context"
	"io"
)

// ReadStream reads the byte range [Start, End] of a Coordinator. It holds
// one reference on the Coordinator from creation until it reaches the end
// of the range, fails or is closed.
//
// A ReadStream is an io.Reader and io.WriterTo. It is not safe for
// concurrent Read calls; use one stream per goroutine.
type ReadStream struct {
	*stream
}

// NewReadStream validates options and takes a reference on c.
// ctx cancels future reads of the stream.
func NewReadStream(ctx context.Context, c *Coordinator, options StreamOptions) (*ReadStream, error) {
	s, err := newStream(ctx, c, options)
	if err != nil {
		return nil, err
	}
	return &ReadStream{stream: s}, nil
}

// Read performs one read of at most len(p) bytes at the stream position.
// Short reads are returned as is. At the end of the range or file it
// releases the stream and returns io.EOF.
func (r *ReadStream) Read(p []byte) (int, error) {
	if err := r.terminal(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	cur := r.current.Load()
	toRead := r.remaining(cur, len(p))
	if toRead <= 0 {
		r.finalize(io.EOF)
		return 0, io.EOF
	}

	n, err := r.c.Read(r.ctx, p[:toRead], cur)
	if err != nil {
		r.finalize(err)
		return 0, err
	}
	if n == 0 {
		if err := r.ctx.Err(); err != nil {
			r.finalize(err)
			return 0, err
		}
		r.finalize(io.EOF)
		return 0, io.EOF
	}
	r.current.Add(int64(n))
	return n, nil
}

// WriteTo pushes the rest of the range to w in chunks of the stream's high
// water mark.
func (r *ReadStream) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, r.hwm)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
			if wn != n {
				return total, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
