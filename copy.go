package sharedfile

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Copy copies the whole of src into dst using parallel ranged streams, one
// ReadStream/WriteStream pair per chunk. dst is truncated to the size of
// src first. Both Coordinators are referenced for the duration of the copy
// so the files stay open between chunks.
func Copy(ctx context.Context, dst, src *Coordinator, options CopyOptions) (int64, error) {
	if err := options.validate(); err != nil {
		return 0, err
	}
	src.Ref()
	defer src.Unref()
	dst.Ref()
	defer dst.Unref()

	size, err := src.Size(ctx)
	if err != nil {
		return 0, err
	}
	if err := dst.Truncate(ctx, size); err != nil {
		return 0, err
	}

	var copied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(options.Concurrency)
	for start := int64(0); start < size; start += options.ChunkSize {
		if gctx.Err() != nil {
			break
		}
		start, end := start, min(start+options.ChunkSize, size)-1
		g.Go(func() error {
			n, err := copyRange(gctx, dst, src, start, end, options.HighWaterMark)
			copied.Add(n)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return copied.Load(), err
	}
	if err := ctx.Err(); err != nil {
		return copied.Load(), err
	}
	return copied.Load(), nil
}

func copyRange(ctx context.Context, dst, src *Coordinator, start, end int64, hwm int) (int64, error) {
	options := StreamOptions{Start: start, End: end, HighWaterMark: hwm}
	rs, err := NewReadStream(ctx, src, options)
	if err != nil {
		return 0, err
	}
	defer rs.Close()

	ws, err := NewWriteStream(ctx, dst, options)
	if err != nil {
		return 0, err
	}
	defer ws.Close()

	n, err := io.Copy(ws, rs)
	if err != nil {
		return n, err
	}
	if want := end - start + 1; n != want {
		return n, errors.Wrapf(io.ErrUnexpectedEOF, "sharedfile: copied %d of %d bytes at %d", n, want, start)
	}
	return n, nil
}
