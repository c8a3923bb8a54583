package sharedfile

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rosedblabs/sharedfile/fs"
)

// Coordinator owns one file shared by many streams. It opens the file on
// first use, serializes physical I/O with a reader/writer lock and, with
// AutoClose, closes the file when the last stream releases it.
//
// Reads share the lock, writes and Close hold it exclusively. Positional
// reads and writes are not retried: a short transfer is returned as is.
type Coordinator struct {
	path      string
	flag      int
	mode      os.FileMode
	autoClose bool
	fsys      fs.FileSystem
	logger    *zap.Logger

	// ioMu guards physical calls on file. Lock order is ioMu, openMu, mu.
	ioMu sync.RWMutex
	// openMu serializes physical opens and guards flag.
	openMu sync.Mutex

	mu   sync.Mutex
	file fs.File
	refs int

	listeners listeners
}

// New creates a Coordinator for path. The file is not opened until the
// first Open, Read or Write.
func New(path string, options Options) (*Coordinator, error) {
	flags := options.Flags
	if flags == "" {
		flags = DefaultOptions.Flags
	}
	flag, err := fs.ParseFlags(flags)
	if err != nil {
		return nil, err
	}
	if options.File == nil && path == "" {
		return nil, errors.New("sharedfile: path or file is required")
	}

	c := &Coordinator{
		path:      path,
		flag:      flag,
		mode:      options.Mode,
		autoClose: options.AutoClose,
		fsys:      options.FileSystem,
		logger:    options.Logger,
		file:      options.File,
	}
	if c.mode == 0 {
		c.mode = DefaultOptions.Mode
	}
	if c.file != nil {
		c.flag = reopenFlag(c.flag)
	}
	if c.fsys == nil {
		c.fsys = fs.OS
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("path", path))
	return c, nil
}

// Path returns the path the Coordinator opens.
func (c *Coordinator) Path() string {
	return c.path
}

// Subscribe registers fn for lifecycle events and returns a function that
// removes it.
func (c *Coordinator) Subscribe(fn Listener) (cancel func()) {
	return c.listeners.add(fn)
}

// Ref records one more stream depending on the file.
func (c *Coordinator) Ref() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// Unref releases one reference. Releasing the last reference emits
// EventClose, closing the file first when AutoClose is set. An Unref
// without a matching Ref emits EventError with ErrInvalidRefCount.
func (c *Coordinator) Unref() {
	c.mu.Lock()
	c.refs--
	refs := c.refs
	if refs < 0 {
		c.refs = 0
	}
	isOpen := c.file != nil
	c.mu.Unlock()

	switch {
	case refs < 0:
		c.logger.Warn("unref without matching ref")
		c.listeners.emit(Event{Type: EventError, Err: ErrInvalidRefCount})
	case refs > 0:
	case !c.autoClose || !isOpen:
		c.listeners.emit(Event{Type: EventClose})
	default:
		fd, skipped, err := c.close(true)
		if skipped {
			c.logger.Debug("auto close skipped, referenced again")
			return
		}
		if err != nil {
			c.logger.Warn("auto close failed", zap.Error(err))
			c.listeners.emit(Event{Type: EventError, Err: err})
			return
		}
		ev := Event{Type: EventClose}
		if fd != nil {
			ev.Fd = *fd
			c.logger.Debug("auto closed", zap.Uintptr("fd", *fd))
		}
		c.listeners.emit(ev)
	}
}

// Refs returns the current reference count.
func (c *Coordinator) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// IsOpen reports whether the file is currently open.
func (c *Coordinator) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file != nil
}

// Open opens the file if it is not open yet. Concurrent callers share a
// single physical open.
func (c *Coordinator) Open(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return c.withFile(false, nil)
}

// Close closes the file. It waits for in-flight I/O and is a no-op when
// the file is not open. A later Read or Write reopens the path.
func (c *Coordinator) Close() error {
	fd, _, err := c.close(false)
	if err != nil {
		return err
	}
	if fd != nil {
		c.logger.Debug("closed", zap.Uintptr("fd", *fd))
		c.listeners.emit(Event{Type: EventClose, Fd: *fd})
	}
	return nil
}

// close returns the descriptor it closed, or nil if nothing was open.
// With unreferenced set it leaves the file open and reports skipped when a
// Ref arrived while close waited for in-flight I/O.
func (c *Coordinator) close(unreferenced bool) (fd *uintptr, skipped bool, err error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if unreferenced && c.refs != 0 {
		return nil, true, nil
	}
	if c.file == nil {
		return nil, false, nil
	}
	f := c.file
	raw := f.Fd()
	c.file = nil
	if err := f.Close(); err != nil {
		return nil, false, errors.Wrapf(err, "sharedfile: close %s", c.path)
	}
	return &raw, false, nil
}

// Read reads up to len(p) bytes at off with one physical read and returns
// the number of bytes read; 0 means end of file. If ctx is already done the
// call returns 0 without touching the file or the lock.
func (c *Coordinator) Read(ctx context.Context, p []byte, off int64) (int, error) {
	if ctxErr(ctx) != nil {
		return 0, nil
	}
	var n int
	err := c.withFile(false, func(f fs.File) error {
		var err error
		n, err = f.ReadAt(p, off)
		return errors.Wrapf(err, "sharedfile: read %s off=%d", c.path, off)
	})
	return n, err
}

// Write writes up to len(p) bytes at off with one physical write, holding
// the lock exclusively. If ctx is already done the call returns 0 without
// touching the file or the lock.
func (c *Coordinator) Write(ctx context.Context, p []byte, off int64) (int, error) {
	if ctxErr(ctx) != nil {
		return 0, nil
	}
	var n int
	err := c.withFile(true, func(f fs.File) error {
		var err error
		n, err = f.WriteAt(p, off)
		return errors.Wrapf(err, "sharedfile: write %s off=%d", c.path, off)
	})
	return n, err
}

// Size returns the current size of the file.
func (c *Coordinator) Size(ctx context.Context) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	var size int64
	err := c.withFile(false, func(f fs.File) error {
		var err error
		size, err = f.Size()
		return errors.Wrapf(err, "sharedfile: size %s", c.path)
	})
	return size, err
}

// Truncate changes the size of the file.
func (c *Coordinator) Truncate(ctx context.Context, size int64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return c.withFile(true, func(f fs.File) error {
		return errors.Wrapf(f.Truncate(size), "sharedfile: truncate %s size=%d", c.path, size)
	})
}

// withFile runs op on the open file under the I/O lock and emits EventOpen
// once the lock is released if the file had to be opened.
func (c *Coordinator) withFile(exclusive bool, op func(fs.File) error) error {
	opened, err := c.locked(exclusive, op)
	if opened != nil {
		c.logger.Debug("opened", zap.Uintptr("fd", *opened))
		c.listeners.emit(Event{Type: EventOpen, Fd: *opened})
	}
	return err
}

func (c *Coordinator) locked(exclusive bool, op func(fs.File) error) (opened *uintptr, err error) {
	if exclusive {
		c.ioMu.Lock()
		defer c.ioMu.Unlock()
	} else {
		c.ioMu.RLock()
		defer c.ioMu.RUnlock()
	}

	f, opened, err := c.ensureOpen()
	if err != nil {
		return nil, err
	}
	if op == nil {
		return opened, nil
	}
	return opened, op(f)
}

func (c *Coordinator) current() fs.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file
}

// ensureOpen must be called with ioMu held in either mode. Concurrent shared
// holders meet on openMu so exactly one of them opens; mu is never held
// across the physical open.
func (c *Coordinator) ensureOpen() (fs.File, *uintptr, error) {
	if f := c.current(); f != nil {
		return f, nil, nil
	}

	c.openMu.Lock()
	defer c.openMu.Unlock()

	if f := c.current(); f != nil {
		return f, nil, nil
	}
	if c.path == "" {
		return nil, nil, ErrClosed
	}
	f, err := fs.Open(c.path, c.flag, c.mode, c.fsys)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "sharedfile: open %s", c.path)
	}
	c.flag = reopenFlag(c.flag)

	c.mu.Lock()
	c.file = f
	c.mu.Unlock()

	fd := f.Fd()
	return f, &fd, nil
}

// reopenFlag drops the flags that would wipe or reject the file written by
// earlier streams when it is opened again after a close.
func reopenFlag(flag int) int {
	return flag &^ (os.O_TRUNC | os.O_EXCL)
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
