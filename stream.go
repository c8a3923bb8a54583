package sharedfile

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

type streamState uint8

const (
	streamOpen streamState = iota
	streamClosed
)

// stream is the part shared by ReadStream and WriteStream: a cursor over
// [start, end] of a Coordinator and a reference held until finalize.
type stream struct {
	ctx     context.Context
	c       *Coordinator
	start   int64
	end     int64
	hwm     int
	current atomic.Int64

	mu    sync.Mutex
	state streamState
	cause error
}

func newStream(ctx context.Context, c *Coordinator, options StreamOptions) (*stream, error) {
	if c == nil {
		return nil, errors.New("sharedfile: nil coordinator")
	}
	if err := options.validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	hwm := options.HighWaterMark
	if hwm == 0 {
		hwm = DefaultStreamOptions.HighWaterMark
	}

	s := &stream{
		ctx:   ctx,
		c:     c,
		start: options.Start,
		end:   options.End,
		hwm:   hwm,
	}
	s.current.Store(options.Start)
	c.Ref()
	return s, nil
}

// finalize moves the stream to its closed state and releases its reference.
// Only the first call has an effect.
func (s *stream) finalize(cause error) bool {
	s.mu.Lock()
	if s.state == streamClosed {
		s.mu.Unlock()
		return false
	}
	s.state = streamClosed
	s.cause = cause
	s.mu.Unlock()

	s.c.Unref()
	return true
}

// terminal returns the reason the stream closed, or nil while it is open.
func (s *stream) terminal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == streamOpen {
		return nil
	}
	return s.cause
}

// Pos returns the offset of the next read or write.
func (s *stream) Pos() int64 {
	return s.current.Load()
}

// Closed reports whether the stream reached its terminal state.
func (s *stream) Closed() bool {
	return s.terminal() != nil
}

// Err returns the failure that terminated the stream, if any. Reaching the
// end of the data or an explicit Close is not a failure.
func (s *stream) Err() error {
	err := s.terminal()
	if err == io.EOF || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Close destroys the stream and releases its reference. It is safe to call
// more than once.
func (s *stream) Close() error {
	s.finalize(ErrClosed)
	return nil
}

// remaining returns how many bytes may be transferred at cur, capped at want.
func (s *stream) remaining(cur int64, want int) int64 {
	n := int64(want)
	if s.end != Unbounded {
		if left := s.end - cur + 1; left < n {
			n = left
		}
	}
	return n
}
