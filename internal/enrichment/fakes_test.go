package enrichment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"travelog-backend/internal/catalog"
	"travelog-backend/internal/cities"
)

type getCall struct {
	id      string
	mode    catalog.SourceMode
	timeout time.Duration
}

// fakeCatalog evaluates equality and range queries over an in-memory document list.
type fakeCatalog struct {
	mu       sync.Mutex
	docs     []catalog.Document
	search   map[string][]any
	err      error
	gets     []getCall
	queries  []catalog.Query
	payloads []map[string]any
}

func (f *fakeCatalog) GetDocument(ctx context.Context, collection, id string, mode catalog.SourceMode, timeout time.Duration) (catalog.Fields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, getCall{id: id, mode: mode, timeout: timeout})
	if f.err != nil {
		return nil, f.err
	}
	for _, d := range f.docs {
		if d.ID == id {
			return d.Fields, nil
		}
	}
	return nil, &catalog.Error{Op: "get_document", Status: 404, Err: catalog.ErrNotFound}
}

func (f *fakeCatalog) Query(ctx context.Context, q catalog.Query, mode catalog.SourceMode, timeout time.Duration) ([]catalog.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]catalog.Document, 0)
	for _, d := range f.docs {
		if q.Equal != nil && d.Fields.String(q.Equal.Field) != q.Equal.Value {
			continue
		}
		if q.Range != nil {
			v := d.Fields.String(q.Range.Field)
			if v < q.Range.Start || v > q.Range.End {
				continue
			}
		}
		out = append(out, d)
	}
	if q.Range != nil {
		field := q.Range.Field
		sort.SliceStable(out, func(i, j int) bool { return out[i].Fields.String(field) < out[j].Fields.String(field) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeCatalog) CallFunction(ctx context.Context, name string, payload any, timeout time.Duration) (catalog.Fields, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, _ := payload.(map[string]any)
	f.payloads = append(f.payloads, p)
	if f.err != nil {
		return nil, f.err
	}
	query, _ := p["query"].(string)
	return catalog.Fields{"cities": f.search[query]}, nil
}

func (f *fakeCatalog) counts() (gets, queries, calls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets), len(f.queries), len(f.payloads)
}

type fakeMaterializer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *fakeMaterializer) Materialize(ctx context.Context, url, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return key + ".jpg", nil
}

type fakeConn struct{ online atomic.Bool }

func newConn(online bool) *fakeConn {
	c := &fakeConn{}
	c.online.Store(online)
	return c
}

func (c *fakeConn) Online() bool { return c.online.Load() }

// gateResolver blocks every Resolve until the gate opens and signals entry.
type gateResolver struct {
	entered chan string
	gate    chan struct{}
	calls   atomic.Int32
}

func newGateResolver() *gateResolver {
	return &gateResolver{entered: make(chan string, 64), gate: make(chan struct{})}
}

func (r *gateResolver) Resolve(ctx context.Context, snap Snapshot, online bool) (Resolution, bool) {
	r.calls.Add(1)
	r.entered <- snap.ID
	select {
	case <-r.gate:
	case <-ctx.Done():
	}
	return Resolution{}, false
}

type staticResolver struct {
	res   Resolution
	ok    bool
	calls atomic.Int32
	hook  func(Snapshot)
}

func (r *staticResolver) Resolve(ctx context.Context, snap Snapshot, online bool) (Resolution, bool) {
	r.calls.Add(1)
	if r.hook != nil {
		r.hook(snap)
	}
	return r.res, r.ok
}

// faultyRepo wraps a MemoryRepo and injects store failures.
type faultyRepo struct {
	*cities.MemoryRepo
	listErr   error
	updateErr error
}

func (r *faultyRepo) ListNeedingEnrichment(ctx context.Context) ([]cities.City, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.MemoryRepo.ListNeedingEnrichment(ctx)
}

func (r *faultyRepo) Update(ctx context.Context, id string, fn cities.UpdateFunc) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.MemoryRepo.Update(ctx, id, fn)
}

var errStoreDown = errors.New("store unavailable")

type reportSink struct {
	ch chan RunReport
}

func newReportSink(c *Coordinator) *reportSink {
	s := &reportSink{ch: make(chan RunReport, 64)}
	c.OnReport(func(r RunReport) { s.ch <- r })
	return s
}

func (s *reportSink) next(t *testing.T) RunReport {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for run report")
		return RunReport{}
	}
}

func (s *reportSink) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-s.ch:
		t.Fatalf("unexpected extra report %+v", r)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seed(t *testing.T, repo *cities.MemoryRepo, c cities.City) {
	t.Helper()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("seed %s: %v", c.ID, err)
	}
}

// stepClock returns a clock advancing one minute per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func doc(id string, fields catalog.Fields) catalog.Document {
	return catalog.Document{ID: id, Fields: fields}
}
