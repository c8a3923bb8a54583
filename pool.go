package sharedfile

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const defaultPoolShards = 16

// Pool hands out one Coordinator per path. A Coordinator leaves the pool
// once its file is closed and no stream references it, so the next Get for
// that path creates a fresh one.
type Pool struct {
	options Options
	shards  []*poolShard
	mask    uint32
}

type poolShard struct {
	mu    sync.Mutex
	files map[string]*Coordinator
}

// NewPool creates a pool whose Coordinators are built from options.
// shards is rounded up to a power of two; zero or less selects the default.
func NewPool(shards int, options Options) *Pool {
	if shards <= 0 {
		shards = defaultPoolShards
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	options.File = nil
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	p := &Pool{
		options: options,
		shards:  make([]*poolShard, n),
		mask:    uint32(n - 1),
	}
	for i := range p.shards {
		p.shards[i] = &poolShard{files: make(map[string]*Coordinator)}
	}
	return p
}

func (p *Pool) shard(path string) *poolShard {
	return p.shards[getPathHash(path)&p.mask]
}

// Get returns the Coordinator for path, creating it if needed. An unused
// Coordinator may leave the pool before the caller creates a stream on it;
// use Acquire to pin it.
func (p *Pool) Get(path string) (*Coordinator, error) {
	return p.get(path, false)
}

// Acquire is Get with a reference taken under the pool lock, so the
// Coordinator stays pooled until the caller releases it with Unref.
func (p *Pool) Acquire(path string) (*Coordinator, error) {
	return p.get(path, true)
}

func (p *Pool) get(path string, ref bool) (*Coordinator, error) {
	sh := p.shard(path)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.files[path]
	if !ok {
		var err error
		c, err = New(path, p.options)
		if err != nil {
			return nil, err
		}
		c.Subscribe(func(ev Event) {
			if ev.Type == EventClose {
				p.remove(path, c)
			}
		})
		sh.files[path] = c
	}
	if ref {
		c.Ref()
	}
	return c, nil
}

// remove drops c unless it is open again or still referenced. Refs taken by
// Acquire happen under the same shard lock.
func (p *Pool) remove(path string, c *Coordinator) {
	sh := p.shard(path)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.files[path] == c && c.Refs() == 0 && !c.IsOpen() {
		delete(sh.files, path)
		p.options.Logger.Debug("released from pool", zap.String("path", path))
	}
}

// Len returns the number of Coordinators in the pool.
func (p *Pool) Len() int {
	n := 0
	for _, sh := range p.shards {
		sh.mu.Lock()
		n += len(sh.files)
		sh.mu.Unlock()
	}
	return n
}

// Close closes every Coordinator in the pool and empties it.
func (p *Pool) Close() error {
	var files []*Coordinator
	for _, sh := range p.shards {
		sh.mu.Lock()
		for path, c := range sh.files {
			files = append(files, c)
			delete(sh.files, path)
		}
		sh.mu.Unlock()
	}

	var err error
	for _, c := range files {
		err = multierr.Append(err, c.Close())
	}
	return err
}
