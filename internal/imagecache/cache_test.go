package imagecache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func openTestBadger(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := OpenBadger(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBadgerCacheRoundTrip(t *testing.T) {
	c := openTestBadger(t)
	ctx := context.Background()
	data := []byte{0xff, 0xd8, 0xff, 0xe0}

	if _, ok, err := c.Get(ctx, "https://x/seoul.jpg"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, "https://x/seoul.jpg", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "https://x/seoul.jpg")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("unexpected bytes %v", got)
	}
}

func TestBadgerCacheKeysAreExact(t *testing.T) {
	c := openTestBadger(t)
	ctx := context.Background()
	_ = c.Put(ctx, "https://x/a.jpg", []byte("a"))

	if _, ok, _ := c.Get(ctx, " https://x/a.jpg"); ok {
		t.Fatalf("untrimmed key should be a distinct entry")
	}
}

func TestBadgerCacheIgnoresBlankKeysAndEmptyValues(t *testing.T) {
	c := openTestBadger(t)
	ctx := context.Background()
	if err := c.Put(ctx, "  ", []byte("a")); err != nil {
		t.Fatalf("Put blank key: %v", err)
	}
	if err := c.Put(ctx, "k", nil); err != nil {
		t.Fatalf("Put empty value: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("empty value should not be stored")
	}
}

func TestBadgerCacheHonorsCanceledContext(t *testing.T) {
	c := openTestBadger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := c.Put(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestOpenBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBadgerConfig(dir, time.Hour)
	cfg.GCInterval = 0

	c, err := OpenBadger(cfg)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	if err := c.Put(context.Background(), "https://x/a.jpg", []byte("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenBadger(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Get(context.Background(), "https://x/a.jpg")
	if err != nil || !ok || string(got) != "a" {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestStorageKeyIsFixedLength(t *testing.T) {
	short := storageKey("a")
	long := storageKey(strings.Repeat("x", 4096))
	if len(short) != len(long) || !strings.HasPrefix(short, keyPrefix) {
		t.Fatalf("unexpected keys %q %q", short, long)
	}
}

func TestNoopNeverHits(t *testing.T) {
	var c Cache = Noop{}
	_ = c.Put(context.Background(), "k", []byte("v"))
	if _, ok, _ := c.Get(context.Background(), "k"); ok {
		t.Fatalf("noop cache must not hit")
	}
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), "", time.Hour); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewRedisCache(context.Background(), "not a url", time.Hour); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestRedisCacheSkipsInvalidInputWithoutServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	c := NewRedisCacheFromClient(client, time.Hour)

	if _, ok, err := c.Get(context.Background(), " "); ok || err != nil {
		t.Fatalf("blank key should short-circuit, got ok=%v err=%v", ok, err)
	}
	if err := c.Put(context.Background(), "k", nil); err != nil {
		t.Fatalf("empty value should short-circuit, got %v", err)
	}
}

func TestLazyOpensOnFirstUse(t *testing.T) {
	opens := 0
	released := 0
	l := NewLazy(func() (Cache, func() error, error) {
		opens++
		c, err := OpenBadger(InMemoryBadgerConfig())
		if err != nil {
			return nil, nil, err
		}
		return c, func() error { released++; return c.Close() }, nil
	})
	if opens != 0 || l.Opened() {
		t.Fatalf("expected no open before use")
	}

	ctx := context.Background()
	if err := l.Put(ctx, "https://x/a.jpg", []byte("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, err := l.Get(ctx, "https://x/a.jpg"); err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if opens != 1 {
		t.Fatalf("expected one open, got %d", opens)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = l.Close()
	if released != 1 {
		t.Fatalf("expected one release, got %d", released)
	}
}

func TestLazyOpenFailureAndUnusedClose(t *testing.T) {
	boom := errors.New("locked")
	l := NewLazy(func() (Cache, func() error, error) { return nil, nil, boom })
	if _, _, err := l.Get(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}
	if err := l.Put(context.Background(), "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}

	unused := NewLazy(func() (Cache, func() error, error) {
		t.Fatalf("open called on an unused cache")
		return nil, nil, nil
	})
	if err := unused.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := unused.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestOpenBadgerLockedDirError(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenBadger(DefaultBadgerConfig(dir, 0))
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer first.Close()

	_, err = OpenBadger(DefaultBadgerConfig(dir, 0))
	if err == nil {
		t.Fatalf("expected lock error on second open")
	}
	if n := strings.Count(err.Error(), "open image cache"); n != 1 {
		t.Fatalf("expected one error prefix, got %d in %q", n, err)
	}
}
