// Package imagecache stores downloaded image bytes keyed by source URL so the
// materializer can avoid refetching them.
package imagecache

import (
	"context"
	"strings"

	"travelog-backend/internal/shared/util"
)

// Cache is a content cache keyed by arbitrary strings, usually URLs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Noop never hits and discards writes.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, ctx.Err() }
func (Noop) Put(ctx context.Context, key string, data []byte) error    { return ctx.Err() }

const keyPrefix = "img:"

// storageKey maps an arbitrary cache key onto a fixed-length backend key.
func storageKey(key string) string {
	return keyPrefix + util.HashKey(key)
}

func validKey(key string) bool {
	return strings.TrimSpace(key) != ""
}

var _ Cache = Noop{}
