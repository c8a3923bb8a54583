package sharedfile

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func newTestPool(t *testing.T, shards int) (*Pool, *countingFS) {
	t.Helper()
	cfs := newCountingFS()
	options := DefaultOptions
	options.Flags = "w+"
	options.FileSystem = cfs
	return NewPool(shards, options), cfs
}

func TestPool_Shards(t *testing.T) {
	p, _ := newTestPool(t, 0)
	assert.Len(t, p.shards, defaultPoolShards)

	p, _ = newTestPool(t, 5)
	assert.Len(t, p.shards, 8)
	assert.Equal(t, uint32(7), p.mask)

	// the same path always lands in the same shard
	assert.Same(t, p.shard("a/b/c"), p.shard("a/b/c"))
}

func TestPool_GetSamePath(t *testing.T) {
	p, _ := newTestPool(t, 4)

	a, err := p.Get("data")
	require.NoError(t, err)
	b, err := p.Get("data")
	require.NoError(t, err)
	assert.Same(t, a, b)

	for i := 0; i < 20; i++ {
		_, err := p.Get(fmt.Sprintf("file-%02d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 21, p.Len())
}

func TestPool_ReleasedOnClose(t *testing.T) {
	p, cfs := newTestPool(t, 4)
	ctx := context.Background()

	c, err := p.Get("data")
	require.NoError(t, err)

	ws, err := NewWriteStream(ctx, c, DefaultStreamOptions)
	require.NoError(t, err)
	_, err = ws.Write([]byte("pooled"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	require.NoError(t, ws.Close())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, int32(1), cfs.closes.Load())

	next, err := p.Get("data")
	require.NoError(t, err)
	assert.NotSame(t, c, next)
}

func TestPool_ExplicitCloseKeepsReferenced(t *testing.T) {
	p, cfs := newTestPool(t, 4)
	ctx := context.Background()

	c, err := p.Get("data")
	require.NoError(t, err)
	ws, err := NewWriteStream(ctx, c, DefaultStreamOptions)
	require.NoError(t, err)
	_, err = ws.Write([]byte("live"))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.False(t, c.IsOpen())
	assert.Equal(t, 1, c.Refs())

	again, err := p.Get("data")
	require.NoError(t, err)
	assert.Same(t, c, again)

	// the live stream reopens the same path through the same Coordinator
	_, err = ws.Write([]byte("!"))
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, int32(2), cfs.closes.Load())
	assert.Equal(t, "live!", string(readBack(t, cfs, "data")))

	next, err := p.Get("data")
	require.NoError(t, err)
	assert.NotSame(t, c, next)
}

func TestPool_AcquireKeepsPooled(t *testing.T) {
	p, cfs := newTestPool(t, 4)
	ctx := context.Background()

	c, err := p.Acquire("data")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Refs())

	ws, err := NewWriteStream(ctx, c, DefaultStreamOptions)
	require.NoError(t, err)
	_, err = ws.Write([]byte("pinned"))
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	// the stream is gone but the Acquire reference is not
	assert.True(t, c.IsOpen())
	assert.Equal(t, 1, p.Len())
	again, err := p.Get("data")
	require.NoError(t, err)
	assert.Same(t, c, again)

	c.Unref()
	assert.False(t, c.IsOpen())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, int32(1), cfs.closes.Load())
}

func TestPool_AutoCloseSkippedStaysPooled(t *testing.T) {
	p, cfs := newTestPool(t, 4)
	ctx := context.Background()

	c, err := p.Get("data")
	require.NoError(t, err)
	first, err := NewWriteStream(ctx, c, DefaultStreamOptions)
	require.NoError(t, err)
	_, err = first.Write(testData(32))
	require.NoError(t, err)

	cfs.readStarted = make(chan struct{}, 1)
	cfs.readGate = make(chan struct{})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_, err := c.Read(ctx, make([]byte, 8), 0)
		assert.NoError(t, err)
	}()
	<-cfs.readStarted

	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		assert.NoError(t, first.Close())
	}()
	assert.Eventually(t, func() bool { return c.Refs() == 0 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	second, err := NewReadStream(ctx, c, DefaultStreamOptions)
	require.NoError(t, err)
	close(cfs.readGate)
	<-readDone
	<-closeDone

	assert.True(t, c.IsOpen())
	again, err := p.Get("data")
	require.NoError(t, err)
	assert.Same(t, c, again)
	require.NoError(t, second.Close())
	assert.Equal(t, 0, p.Len())
}

func TestPool_PathHashSpreads(t *testing.T) {
	p, _ := newTestPool(t, 8)

	used := make(map[*poolShard]bool)
	for i := 0; i < 256; i++ {
		path := fmt.Sprintf("%s/%d", strings.Repeat("d", i%13), i)
		assert.Equal(t, getPathHash(path), getPathHash(path))
		used[p.shard(path)] = true
	}
	assert.Len(t, used, 8)
	assert.Equal(t, getPathHash(""), getPathHash(""))
}

func TestPool_Close(t *testing.T) {
	p, cfs := newTestPool(t, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := p.Get(fmt.Sprintf("file-%d", i))
		require.NoError(t, err)
		require.NoError(t, c.Open(ctx))
	}
	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, int32(3), cfs.closes.Load())

	for i := 0; i < 2; i++ {
		c, err := p.Get(fmt.Sprintf("file-%d", i))
		require.NoError(t, err)
		require.NoError(t, c.Open(ctx))
	}
	cfs.failClose = true
	err := p.Close()
	assert.ErrorIs(t, err, errInjected)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestPool_InvalidOptions(t *testing.T) {
	options := DefaultOptions
	options.Flags = "bogus"
	p := NewPool(1, options)

	_, err := p.Get("data")
	assert.ErrorIs(t, err, ErrInvalidFlags)
	assert.Equal(t, 0, p.Len())
}

func TestPool_OSFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "sharedfile-test-pool")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)

	options := DefaultOptions
	options.Flags = "w+"
	p := NewPool(4, options)
	defer p.Close()

	c, err := p.Get(dir + "/data")
	require.NoError(t, err)
	n, err := c.Write(context.Background(), []byte("os"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, c.IsOpen())
}
