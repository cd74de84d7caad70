package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFieldsImageURLAcceptsBothSpellings(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		want   string
	}{
		{name: "camel", fields: Fields{"imageUrl": "https://x/a.jpg"}, want: "https://x/a.jpg"},
		{name: "upper", fields: Fields{"imageURL": " https://x/b.jpg "}, want: "https://x/b.jpg"},
		{name: "camel wins", fields: Fields{"imageUrl": "https://x/a.jpg", "imageURL": "https://x/b.jpg"}, want: "https://x/a.jpg"},
		{name: "blank camel falls back", fields: Fields{"imageUrl": "  ", "imageURL": "https://x/b.jpg"}, want: "https://x/b.jpg"},
		{name: "wrong type", fields: Fields{"imageUrl": 42}, want: ""},
		{name: "nil", fields: nil, want: ""},
	}
	for _, tt := range tests {
		if got := tt.fields.ImageURL(); got != tt.want {
			t.Fatalf("%s: ImageURL() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFieldsIntToleratesMalformedValues(t *testing.T) {
	f := Fields{"a": float64(12), "b": "12", "c": true, "d": int64(7)}
	if f.Int("a") != 12 || f.Int("d") != 7 {
		t.Fatalf("expected numeric values to decode")
	}
	if f.Int("b") != 0 || f.Int("c") != 0 || f.Int("missing") != 0 {
		t.Fatalf("expected malformed values to read as 0")
	}
}

func TestErrorTemporary(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{err: &Error{Op: "get", Status: http.StatusServiceUnavailable, Err: errors.New("x")}, want: true},
		{err: &Error{Op: "get", Status: http.StatusTooManyRequests, Err: errors.New("x")}, want: true},
		{err: &Error{Op: "get", Status: http.StatusBadRequest, Err: errors.New("x")}, want: false},
		{err: &Error{Op: "get", Status: http.StatusNotFound, Err: ErrNotFound}, want: false},
		{err: &Error{Op: "get", Err: errors.New("dial tcp: refused")}, want: true},
	}
	for i, tt := range tests {
		if got := tt.err.Temporary(); got != tt.want {
			t.Fatalf("case %d: Temporary() = %v, want %v", i, got, tt.want)
		}
	}
}

func TestErrorUnwrapsSentinel(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &Error{Op: "get_document", Status: 404, Err: ErrNotFound})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is to find ErrNotFound")
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Status != 404 {
		t.Fatalf("expected errors.As to find *Error")
	}
}

func TestDocCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newDocCache(2)
	c.put("a", []Document{{ID: "a"}})
	c.put("b", []Document{{ID: "b"}})
	if _, ok := c.get("a"); !ok {
		t.Fatalf("expected a")
	}
	c.put("c", []Document{{ID: "c"}})

	if _, ok := c.get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Fatalf("expected a to survive")
	}
	if c.len() != 2 {
		t.Fatalf("expected len 2, got %d", c.len())
	}
}

func TestDocCacheReturnsCopies(t *testing.T) {
	c := newDocCache(4)
	c.put("a", []Document{{ID: "a", Fields: Fields{"imageUrl": "https://x/a.jpg"}}})
	docs, _ := c.get("a")
	docs[0].Fields["imageUrl"] = "mutated"
	again, _ := c.get("a")
	if again[0].Fields.ImageURL() != "https://x/a.jpg" {
		t.Fatalf("cache aliased caller memory")
	}
}
