package imagecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"travelog-backend/internal/shared/telemetry"
)

// BadgerConfig configures the on-disk cache.
type BadgerConfig struct {
	// Path is the directory for badger files. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// TTL applies to every entry. 0 keeps entries until evicted by GC.
	TTL            time.Duration
	SyncWrites     bool
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns settings for a persistent cache at path.
func DefaultBadgerConfig(path string, ttl time.Duration) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		TTL:            ttl,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// BadgerCache is a Cache backed by badger.
type BadgerCache struct {
	db   *badger.DB
	ttl  time.Duration
	stop chan struct{}
	done chan struct{}
}

// OpenBadger opens (or creates) the cache and starts value-log GC when configured.
func OpenBadger(cfg BadgerConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("image cache path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create image cache dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open image cache: %w", err)
	}

	c := &BadgerCache{db: db, ttl: cfg.TTL}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.runGC(cfg.GCInterval, ratio)
	}
	return c, nil
}

// Get returns the cached bytes for key.
func (c *BadgerCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !validKey(key) {
		return nil, false, nil
	}
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(storageKey(key)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("image cache get: %w", err)
	}
	return data, true, nil
}

// Put stores data under key, replacing any previous value.
func (c *BadgerCache) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) || len(data) == 0 {
		return nil
	}
	entry := badger.NewEntry([]byte(storageKey(key)), data)
	if c.ttl > 0 {
		entry = entry.WithTTL(c.ttl)
	}
	if err := c.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(entry) }); err != nil {
		return fmt.Errorf("image cache put: %w", err)
	}
	return nil
}

// Close stops GC and closes the database.
func (c *BadgerCache) Close() error {
	if c.stop != nil {
		close(c.stop)
		<-c.done
	}
	return c.db.Close()
}

func (c *BadgerCache) runGC(interval time.Duration, ratio float64) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			err := c.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				telemetry.Warn("imagecache.gc.failed", map[string]any{"error": err})
			}
		}
	}
}

// badgerLogger forwards badger warnings and errors to telemetry and drops the rest.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	telemetry.Error("imagecache.badger", map[string]any{"detail": fmt.Sprintf(format, args...)})
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	telemetry.Warn("imagecache.badger", map[string]any{"detail": fmt.Sprintf(format, args...)})
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

var _ Cache = (*BadgerCache)(nil)
