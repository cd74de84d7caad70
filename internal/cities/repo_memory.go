package cities

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"travelog-backend/internal/shared/telemetry"
)

const memorySubscriberBuffer = 64

// MemoryRepo is an in-memory implementation of Repo and Observer.
type MemoryRepo struct {
	mu    sync.RWMutex
	data  map[string]City
	order []string
	subs  map[chan ChangeEvent]struct{}
	now   func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]City),
		subs: make(map[chan ChangeEvent]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new city. The ID must be unique.
func (r *MemoryRepo) Create(ctx context.Context, city City) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(city.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if city.CreatedAt.IsZero() {
		city.CreatedAt = r.now()
	}
	if city.LastUpdated.IsZero() {
		city.LastUpdated = city.CreatedAt
	}

	r.mu.Lock()
	if _, exists := r.data[city.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: duplicate id %s", ErrInvalid, city.ID)
	}
	r.data[city.ID] = city.Clone()
	r.order = append(r.order, city.ID)
	r.mu.Unlock()

	r.publish(ChangeEvent{Op: ChangeInsert, ID: city.ID})
	return nil
}

// GetByID returns a copy of the stored city.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (City, error) {
	if err := ctx.Err(); err != nil {
		return City{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	city, ok := r.data[id]
	if !ok {
		return City{}, ErrNotFound
	}
	return city.Clone(), nil
}

// ListNeedingEnrichment returns cities missing image data in insertion order.
func (r *MemoryRepo) ListNeedingEnrichment(ctx context.Context) ([]City, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]City, 0)
	for _, id := range r.order {
		city, ok := r.data[id]
		if ok && city.NeedsEnrichment() {
			out = append(out, city.Clone())
		}
	}
	return out, nil
}

// Update applies fn under the write lock; the lock makes it atomic.
func (r *MemoryRepo) Update(ctx context.Context, id string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	city, ok := r.data[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	working := city.Clone()
	changed, err := fn(&working)
	if err != nil || !changed {
		r.mu.Unlock()
		return err
	}
	working.ID = city.ID
	working.CreatedAt = city.CreatedAt
	r.data[id] = working.Clone()
	r.mu.Unlock()

	r.publish(ChangeEvent{Op: ChangeUpdate, ID: id})
	return nil
}

// Delete removes a city. Enrichment never deletes; this exists for tests and admin use.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Observe registers a subscriber that receives change events until ctx ends.
func (r *MemoryRepo) Observe(ctx context.Context) (<-chan ChangeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan ChangeEvent, memorySubscriberBuffer)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subs, ch)
		close(ch)
		r.mu.Unlock()
	}()
	return ch, nil
}

func (r *MemoryRepo) publish(evt ChangeEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.subs {
		select {
		case ch <- evt:
		default:
			telemetry.Warn("cities.observe.dropped", map[string]any{"city_id": evt.ID, "op": string(evt.Op)})
		}
	}
}

var (
	_ Repo     = (*MemoryRepo)(nil)
	_ Observer = (*MemoryRepo)(nil)
)
