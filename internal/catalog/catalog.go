// Package catalog is the client side of the remote city catalog: documents,
// filtered and ranged queries, and the callable search function.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// SourceMode tells the catalog whether a cached answer is acceptable.
type SourceMode int

const (
	PreferCache SourceMode = iota
	PreferNetwork
)

func (m SourceMode) String() string {
	if m == PreferCache {
		return "prefer_cache"
	}
	return "prefer_network"
}

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Fields holds the decoded fields of one document or function result.
type Fields map[string]any

// String returns the trimmed string value of key, or "" when missing or not a string.
func (f Fields) String(key string) string {
	if f == nil {
		return ""
	}
	s, ok := f[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Int returns the integer value of key, or 0 when missing or not numeric.
func (f Fields) Int(key string) int64 {
	if f == nil {
		return 0
	}
	switch v := f[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if fl, err := v.Float64(); err == nil {
			return int64(fl)
		}
	}
	return 0
}

// ImageURL returns the image field, accepting both spellings used by catalog documents.
func (f Fields) ImageURL() string {
	if v := f.String("imageUrl"); v != "" {
		return v
	}
	return f.String("imageURL")
}

// Document is one catalog document.
type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Equal filters documents whose Field equals Value.
type Equal struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Range selects documents whose Field is within [Start, End], ordered by Field.
type Range struct {
	Field string `json:"field"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Query describes a single-collection query. Equal and Range are optional.
type Query struct {
	Collection string
	Equal      *Equal
	Range      *Range
	Limit      int
}

func (q Query) cacheKey() string {
	var b strings.Builder
	b.WriteString("q:")
	b.WriteString(q.Collection)
	if q.Equal != nil {
		fmt.Fprintf(&b, "|eq:%s=%v", q.Equal.Field, q.Equal.Value)
	}
	if q.Range != nil {
		fmt.Fprintf(&b, "|rg:%s=%s..%s", q.Range.Field, q.Range.Start, q.Range.End)
	}
	fmt.Fprintf(&b, "|n:%d", q.Limit)
	return b.String()
}

// Catalog is the contract the enrichment pipeline consumes.
type Catalog interface {
	GetDocument(ctx context.Context, collection, id string, mode SourceMode, timeout time.Duration) (Fields, error)
	Query(ctx context.Context, q Query, mode SourceMode, timeout time.Duration) ([]Document, error)
	CallFunction(ctx context.Context, name string, payload any, timeout time.Duration) (Fields, error)
}

// Error describes a failed catalog call.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("catalog %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Temporary reports whether retrying later may succeed.
func (e *Error) Temporary() bool {
	if e == nil {
		return false
	}
	if e.Status == 0 {
		return !errors.Is(e.Err, ErrNotFound)
	}
	return e.Status == 429 || e.Status >= 500
}
