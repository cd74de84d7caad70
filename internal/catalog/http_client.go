package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"travelog-backend/internal/shared/metrics"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 4 << 20
)

// HTTPClient talks to the catalog backend's JSON API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *docCache
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) { c.apiKey = strings.TrimSpace(key) }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCacheSize bounds the response cache used by PreferCache. 0 disables it.
func WithCacheSize(n int) Option {
	return func(c *HTTPClient) { c.cache = newDocCache(n) }
}

// NewHTTPClient constructs a client for the catalog at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		cache:      newDocCache(1024),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type documentResponse struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

type queryRequest struct {
	Where   *Equal `json:"where,omitempty"`
	Range   *Range `json:"range,omitempty"`
	OrderBy string `json:"orderBy,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type queryResponse struct {
	Documents []Document `json:"documents"`
}

type functionRequest struct {
	Data any `json:"data"`
}

type functionResponse struct {
	Result Fields `json:"result"`
}

// GetDocument fetches one document. PreferCache answers from the local cache when possible.
func (c *HTTPClient) GetDocument(ctx context.Context, collection, id string, mode SourceMode, timeout time.Duration) (Fields, error) {
	const op = "get_document"
	collection = strings.TrimSpace(collection)
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return nil, &Error{Op: op, Err: errors.New("collection and id are required")}
	}
	key := "d:" + collection + "/" + id
	if mode == PreferCache {
		if docs, ok := c.cache.get(key); ok && len(docs) == 1 {
			metrics.IncCatalogRequest(op, "cache_hit")
			return docs[0].Fields, nil
		}
	}

	endpoint := fmt.Sprintf("%s/v1/collections/%s/documents/%s", c.baseURL, url.PathEscape(collection), url.PathEscape(id))
	var resp documentResponse
	if err := c.do(ctx, op, http.MethodGet, endpoint, nil, timeout, &resp); err != nil {
		return nil, err
	}
	if resp.Fields == nil {
		resp.Fields = Fields{}
	}
	docID := resp.ID
	if docID == "" {
		docID = id
	}
	c.cache.put(key, []Document{{ID: docID, Fields: resp.Fields}})
	return resp.Fields, nil
}

// Query runs a filtered or ranged query against one collection.
func (c *HTTPClient) Query(ctx context.Context, q Query, mode SourceMode, timeout time.Duration) ([]Document, error) {
	const op = "query"
	if strings.TrimSpace(q.Collection) == "" {
		return nil, &Error{Op: op, Err: errors.New("collection is required")}
	}
	key := q.cacheKey()
	if mode == PreferCache {
		if docs, ok := c.cache.get(key); ok {
			metrics.IncCatalogRequest(op, "cache_hit")
			return docs, nil
		}
	}

	body := queryRequest{Where: q.Equal, Range: q.Range, Limit: q.Limit}
	if q.Range != nil {
		body.OrderBy = q.Range.Field
	}
	endpoint := fmt.Sprintf("%s/v1/collections/%s:query", c.baseURL, url.PathEscape(q.Collection))
	var resp queryResponse
	if err := c.do(ctx, op, http.MethodPost, endpoint, body, timeout, &resp); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		if d.Fields == nil {
			d.Fields = Fields{}
		}
		docs = append(docs, d)
	}
	c.cache.put(key, docs)
	return docs, nil
}

// CallFunction invokes a callable backend function. Results are never cached.
func (c *HTTPClient) CallFunction(ctx context.Context, name string, payload any, timeout time.Duration) (Fields, error) {
	const op = "call_function"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &Error{Op: op, Err: errors.New("function name is required")}
	}
	endpoint := fmt.Sprintf("%s/v1/functions/%s", c.baseURL, url.PathEscape(name))
	var resp functionResponse
	if err := c.do(ctx, op, http.MethodPost, endpoint, functionRequest{Data: payload}, timeout, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		resp.Result = Fields{}
	}
	return resp.Result, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, endpoint string, body any, timeout time.Duration, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.IncCatalogRequest(op, "throttled")
			return &Error{Op: op, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncCatalogRequest(op, "transport_error")
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.IncCatalogRequest(op, "transport_error")
		return &Error{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		metrics.IncCatalogRequest(op, "not_found")
		return &Error{Op: op, Status: resp.StatusCode, Err: ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.IncCatalogRequest(op, "http_error")
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(raw)))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		metrics.IncCatalogRequest(op, "decode_error")
		return &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	metrics.IncCatalogRequest(op, "ok")
	return nil
}

var _ Catalog = (*HTTPClient)(nil)
