package cities

import "context"

// UpdateFunc mutates a freshly loaded record inside a write transaction and
// reports whether anything changed. Returning false skips the write.
type UpdateFunc func(c *City) (bool, error)

// Repo defines persistence operations for cities.
type Repo interface {
	Create(ctx context.Context, city City) error
	GetByID(ctx context.Context, id string) (City, error)
	// ListNeedingEnrichment returns records missing image data in a stable order.
	ListNeedingEnrichment(ctx context.Context) ([]City, error)
	// Update runs fn against the current row and persists it atomically.
	Update(ctx context.Context, id string, fn UpdateFunc) error
}

// Observer streams committed changes until ctx is done.
type Observer interface {
	Observe(ctx context.Context) (<-chan ChangeEvent, error)
}
