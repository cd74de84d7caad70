// Package materialize turns resolved remote image URLs into files in the
// object store, reusing cached bytes before going to the network.
package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"travelog-backend/internal/imagecache"
	"travelog-backend/internal/shared/metrics"
	"travelog-backend/internal/shared/storage/object"
	"travelog-backend/internal/shared/telemetry"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxBytes     = 20 << 20
	jpegQuality         = 90
)

// ErrEmptyURL is returned when there is nothing to materialize.
var ErrEmptyURL = errors.New("materialize: empty url")

// Materializer writes city images into an object store.
type Materializer struct {
	store        object.ObjectStore
	cache        imagecache.Cache
	client       *http.Client
	fetchTimeout time.Duration
	maxBytes     int64
	hashSuffix   bool
	group        singleflight.Group
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithHTTPClient replaces the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Materializer) {
		if c != nil {
			m.client = c
		}
	}
}

// WithFetchTimeout bounds each download.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Materializer) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// WithMaxBytes caps the size of a downloaded image.
func WithMaxBytes(n int64) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

// WithHashSuffix controls whether filenames carry a short hash of the source URL.
func WithHashSuffix(on bool) Option {
	return func(m *Materializer) { m.hashSuffix = on }
}

// New constructs a Materializer. A nil cache disables cache lookups.
func New(store object.ObjectStore, cache imagecache.Cache, opts ...Option) *Materializer {
	if cache == nil {
		cache = imagecache.Noop{}
	}
	m := &Materializer{
		store:        store,
		cache:        cache,
		client:       &http.Client{},
		fetchTimeout: defaultFetchTimeout,
		maxBytes:     defaultMaxBytes,
		hashSuffix:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize returns the filename holding the image at rawURL, producing it if needed.
// An existing file is returned without touching the cache or the network.
func (m *Materializer) Materialize(ctx context.Context, rawURL, key string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", ErrEmptyURL
	}
	name := Filename(key, rawURL, m.hashSuffix)
	objKey := ObjectKey(name)

	v, err, _ := m.group.Do(objKey, func() (any, error) {
		return m.produce(ctx, rawURL, name, objKey)
	})
	if err != nil {
		metrics.IncMaterialize("failed")
		telemetry.Warn("materialize.failed", map[string]any{
			"url":      rawURL,
			"filename": name,
			"error":    err,
		})
		return "", err
	}
	return v.(string), nil
}

func (m *Materializer) produce(ctx context.Context, rawURL, name, objKey string) (string, error) {
	exists, err := m.store.Exists(ctx, objKey)
	if err != nil {
		return "", fmt.Errorf("check existing: %w", err)
	}
	if exists {
		metrics.IncMaterialize("exists")
		return name, nil
	}

	raw, source, err := m.load(ctx, rawURL)
	if err != nil {
		return "", err
	}
	data, contentType, err := transcode(raw)
	if err != nil {
		return "", err
	}
	if _, err := m.store.Put(ctx, objKey, contentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write %s: %w", objKey, err)
	}
	metrics.IncMaterialize(source)
	telemetry.Info("materialize.stored", map[string]any{
		"filename": name,
		"source":   source,
		"bytes":    len(data),
	})
	return name, nil
}

// load returns source bytes we can store, from the cache or, failing that, the network.
func (m *Materializer) load(ctx context.Context, rawURL string) ([]byte, string, error) {
	for _, key := range cacheKeys(rawURL) {
		data, ok, err := m.cache.Get(ctx, key)
		if err != nil {
			telemetry.Warn("materialize.cache_get_failed", map[string]any{"error": err})
			continue
		}
		if ok && decodable(data) == nil {
			return data, "cache", nil
		}
	}

	data, err := m.fetch(ctx, strings.TrimSpace(rawURL))
	if err != nil {
		return nil, "", err
	}
	if err := decodable(data); err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if err := m.cache.Put(ctx, strings.TrimSpace(rawURL), data); err != nil {
		telemetry.Warn("materialize.cache_put_failed", map[string]any{"error": err})
	}
	return data, "network", nil
}

func (m *Materializer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", m.maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image body")
	}
	return data, nil
}

// heicBrands are the ISO-BMFF major brands used by HEIC/HEIF stills.
var heicBrands = map[string]struct{}{
	"heic": {}, "heix": {}, "hevc": {}, "heim": {}, "heis": {}, "mif1": {}, "msf1": {},
}

func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	_, ok := heicBrands[string(data[8:12])]
	return ok
}

func decodable(data []byte) error {
	if isHEIC(data) {
		return nil
	}
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err
}

// transcode re-encodes data as JPEG (PNG fallback). HEIC has no decoder here and is stored as is.
func transcode(data []byte) ([]byte, string, error) {
	if isHEIC(data) {
		return data, "image/heic", nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return encode(img)
}

func encode(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err == nil {
		return buf.Bytes(), "image/jpeg", nil
	}
	buf.Reset()
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}
