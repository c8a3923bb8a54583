package sharedfile

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rosedblabs/sharedfile/fs"
)

var errInjected = errors.New("injected failure")

// countingFS wraps a file system and records the physical calls made on it.
type countingFS struct {
	fs.FileSystem

	opens  atomic.Int32
	closes atomic.Int32
	reads  atomic.Int32
	writes atomic.Int32

	// gate, when set, blocks every open until it is closed.
	gate chan struct{}
	// readGate, when set, blocks every ReadAt until it is closed. Each
	// blocked read first sends on readStarted if that is set.
	readGate    chan struct{}
	readStarted chan struct{}
	// maxWrite caps the bytes accepted by one WriteAt.
	maxWrite int
	// failClose makes Close return errInjected.
	failClose bool
	// failRead makes ReadAt return errInjected.
	failRead bool
}

func newCountingFS() *countingFS {
	return &countingFS{FileSystem: fs.NewMemFileSystem()}
}

func (c *countingFS) OpenFile(name string, flag int, perm os.FileMode) (fs.File, error) {
	if c.gate != nil {
		<-c.gate
	}
	f, err := c.FileSystem.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	c.opens.Add(1)
	return &countingFile{File: f, fs: c}, nil
}

type countingFile struct {
	fs.File
	fs *countingFS
}

func (f *countingFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.reads.Add(1)
	if f.fs.readGate != nil {
		if f.fs.readStarted != nil {
			f.fs.readStarted <- struct{}{}
		}
		<-f.fs.readGate
	}
	if f.fs.failRead {
		return 0, errInjected
	}
	return f.File.ReadAt(p, off)
}

func (f *countingFile) WriteAt(p []byte, off int64) (int, error) {
	f.fs.writes.Add(1)
	if f.fs.maxWrite > 0 && len(p) > f.fs.maxWrite {
		p = p[:f.fs.maxWrite]
	}
	return f.File.WriteAt(p, off)
}

func (f *countingFile) Close() error {
	f.fs.closes.Add(1)
	if err := f.File.Close(); err != nil {
		return err
	}
	if f.fs.failClose {
		return errInjected
	}
	return nil
}

// eventLog collects the events of a Coordinator.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, ev := range l.events {
		if ev.Type == EventError {
			errs = append(errs, ev.Err)
		}
	}
	return errs
}

// newTestCoordinator creates a Coordinator over a counting in-memory file
// system, optionally seeded with data at path "data".
func newTestCoordinator(t *testing.T, data []byte, modify func(*Options)) (*Coordinator, *countingFS, *eventLog) {
	t.Helper()

	cfs := newCountingFS()
	if data != nil {
		f, err := cfs.FileSystem.OpenFile("data", os.O_RDWR|os.O_CREATE, 0o644)
		require.NoError(t, err)
		_, err = f.WriteAt(data, 0)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	options := DefaultOptions
	options.FileSystem = cfs
	if data == nil {
		options.Flags = "w+"
	}
	if modify != nil {
		modify(&options)
	}
	c, err := New("data", options)
	require.NoError(t, err)

	log := &eventLog{}
	c.Subscribe(log.record)
	return c, cfs, log
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/256)
	}
	return data
}

func readBack(t *testing.T, cfs *countingFS, name string) []byte {
	t.Helper()
	f, err := cfs.FileSystem.OpenFile(name, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()

	size, err := f.Size()
	require.NoError(t, err)
	buf := make([]byte, size)
	if size > 0 {
		n, err := f.ReadAt(buf, 0)
		require.NoError(t, err)
		buf = buf[:n]
	}
	return buf
}
