package imagecache

import (
	"context"
	"errors"
	"sync"
)

var errClosed = errors.New("image cache closed")

// Opener builds a cache and the func that releases it.
type Opener func() (Cache, func() error, error)

// Lazy defers opening the underlying cache until the first Get or Put, so
// processes that never materialize never hold it open. An open failure is
// returned from every call; callers treat cache errors as misses.
type Lazy struct {
	open Opener

	once    sync.Once
	mu      sync.Mutex
	cache   Cache
	release func() error
	err     error
	closed  bool
}

// NewLazy returns a cache that calls open on first use.
func NewLazy(open Opener) *Lazy {
	return &Lazy{open: open}
}

func (l *Lazy) get() (Cache, error) {
	l.once.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed {
			l.err = errClosed
			return
		}
		l.cache, l.release, l.err = l.open()
	})
	return l.cache, l.err
}

// Get opens the cache if needed and reads key.
func (l *Lazy) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c, err := l.get()
	if err != nil {
		return nil, false, err
	}
	return c.Get(ctx, key)
}

// Put opens the cache if needed and stores data.
func (l *Lazy) Put(ctx context.Context, key string, data []byte) error {
	c, err := l.get()
	if err != nil {
		return err
	}
	return c.Put(ctx, key, data)
}

// Opened reports whether the underlying cache has been opened successfully.
func (l *Lazy) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache != nil
}

// Close releases the underlying cache if it was opened. Later calls fail.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release()
}

var _ Cache = (*Lazy)(nil)
