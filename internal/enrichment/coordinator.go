// Package enrichment keeps city records filled with a remote image URL and a
// materialized local copy.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"travelog-backend/internal/cities"
	"travelog-backend/internal/shared/metrics"
	"travelog-backend/internal/shared/telemetry"
)

const (
	KindBatch  = "batch"
	KindSingle = "single"
)

// ImageResolver finds an image for a snapshot.
type ImageResolver interface {
	Resolve(ctx context.Context, snap Snapshot, online bool) (Resolution, bool)
}

// Materializer stores the image at url and returns its filename.
type Materializer interface {
	Materialize(ctx context.Context, url, key string) (string, error)
}

// Connectivity reports current reachability.
type Connectivity interface {
	Online() bool
}

// RunReport summarizes one batch or single-entity run.
type RunReport struct {
	Kind      string    `json:"kind"`
	CityID    string    `json:"cityId,omitempty"`
	Attempted int       `json:"attempted"`
	Enriched  int       `json:"enriched"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	// Reason is set when the run stopped early.
	Reason string `json:"reason,omitempty"`
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	State     string     `json:"state"`
	BatchRuns int64      `json:"batchRuns"`
	LastBatch *RunReport `json:"lastBatch,omitempty"`
}

// Config tunes the coordinator.
type Config struct {
	// Concurrency bounds records processed in parallel within one batch. Default 1.
	Concurrency int
	Now         func() time.Time
}

// Coordinator runs enrichment in the background. At most one batch run is
// active at a time; triggers arriving during a run collapse into one rerun.
type Coordinator struct {
	repo         cities.Repo
	resolver     ImageResolver
	materializer Materializer
	conn         Connectivity
	concurrency  int
	now          func() time.Time

	state  runState
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	observers []func(RunReport)
	lastBatch *RunReport
	batchRuns int64
}

// NewCoordinator wires the collaborators. Background work stops when ctx ends or Close is called.
func NewCoordinator(ctx context.Context, repo cities.Repo, resolver ImageResolver, materializer Materializer, conn Connectivity, cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Coordinator{
		repo:         repo,
		resolver:     resolver,
		materializer: materializer,
		conn:         conn,
		concurrency:  cfg.Concurrency,
		now:          func() time.Time { return cfg.Now().UTC() },
		ctx:          runCtx,
		cancel:       cancel,
	}
}

// OnReport registers fn to receive every run report. fn must not block.
func (c *Coordinator) OnReport(fn func(RunReport)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// TriggerBatchRun starts a batch run, or queues one rerun if a run is active.
// It never blocks.
func (c *Coordinator) TriggerBatchRun() {
	if !c.state.request() {
		return
	}
	if !c.track() {
		c.state.abandon()
		return
	}
	go c.batchLoop()
}

// TriggerSingleEntity enriches one city in the background, independent of batch runs.
func (c *Coordinator) TriggerSingleEntity(id string) {
	if !c.track() {
		return
	}
	go func() {
		defer c.wg.Done()
		c.publish(c.runSingle(c.ctx, id))
	}()
}

// Status returns the current state and the last batch report.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state.load().String(), BatchRuns: c.batchRuns}
	if c.lastBatch != nil {
		r := *c.lastBatch
		st.LastBatch = &r
	}
	return st
}

// State returns the current run state name.
func (c *Coordinator) State() string {
	return c.state.load().String()
}

// Close cancels in-flight work and waits for background goroutines.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ctx.Err() != nil {
		return false
	}
	c.wg.Add(1)
	return true
}

func (c *Coordinator) batchLoop() {
	defer c.wg.Done()
	for {
		report := c.runBatch(c.ctx)
		rerun := c.state.finish()
		c.publish(report)
		if !rerun {
			return
		}
		if c.ctx.Err() != nil {
			c.state.abandon()
			return
		}
		telemetry.Info("enrichment.run.rerun", nil)
	}
}

type outcome int

const (
	outcomeEnriched outcome = iota
	outcomeSkipped
	outcomeFailed
)

type tally struct {
	mu sync.Mutex
	r  *RunReport
}

func (t *tally) add(o outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.r.Attempted++
	switch o {
	case outcomeEnriched:
		t.r.Enriched++
	case outcomeSkipped:
		t.r.Skipped++
	case outcomeFailed:
		t.r.Failed++
	}
}

func (c *Coordinator) runBatch(ctx context.Context) RunReport {
	report := RunReport{Kind: KindBatch, Started: c.now()}
	metrics.IncRunStarted(KindBatch)

	candidates, err := c.repo.ListNeedingEnrichment(ctx)
	if err != nil {
		report.Reason = fmt.Sprintf("list candidates: %v", err)
		report.Finished = c.now()
		return report
	}
	snaps := make([]Snapshot, 0, len(candidates))
	for _, city := range candidates {
		snaps = append(snaps, NewSnapshot(city))
	}

	t := &tally{r: &report}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, snap := range snaps {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			o, err := c.enrichOne(gctx, snap)
			t.add(o)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		report.Reason = err.Error()
	} else if err := ctx.Err(); err != nil {
		report.Reason = err.Error()
	}
	report.Finished = c.now()
	return report
}

func (c *Coordinator) runSingle(ctx context.Context, id string) RunReport {
	report := RunReport{Kind: KindSingle, CityID: id, Started: c.now()}
	metrics.IncRunStarted(KindSingle)
	t := &tally{r: &report}

	city, err := c.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, cities.ErrNotFound):
		t.add(outcomeSkipped)
	case err != nil:
		report.Reason = fmt.Sprintf("load city: %v", err)
	case city.NeedsEnrichment():
		o, err := c.enrichOne(ctx, NewSnapshot(city))
		t.add(o)
		if err != nil {
			report.Reason = err.Error()
		}
	}
	report.Finished = c.now()
	return report
}

// enrichOne resolves, materializes and writes back one record. A returned
// error means the store failed and the run should stop.
func (c *Coordinator) enrichOne(ctx context.Context, snap Snapshot) (outcome, error) {
	res, ok := c.resolver.Resolve(ctx, snap, c.conn.Online())
	if !ok {
		return outcomeSkipped, nil
	}

	filename, err := c.materializer.Materialize(ctx, res.ImageURL, snap.PreferredKey())
	if err != nil {
		filename = ""
	}

	written, err := c.writeBack(ctx, snap.ID, res, filename)
	if errors.Is(err, cities.ErrNotFound) {
		return outcomeSkipped, nil
	}
	if err != nil {
		telemetry.Error("enrichment.write_failed", map[string]any{"city_id": snap.ID, "error": err})
		return outcomeFailed, fmt.Errorf("write city %s: %w", snap.ID, err)
	}
	if !written {
		return outcomeSkipped, nil
	}
	telemetry.Info("enrichment.city.enriched", map[string]any{
		"city_id":        snap.ID,
		"source":         res.Source,
		"has_local_file": filename != "",
	})
	return outcomeEnriched, nil
}

// writeBack re-reads the record inside one store transaction and applies the
// resolution. Records that would not change are not written.
func (c *Coordinator) writeBack(ctx context.Context, id string, res Resolution, filename string) (bool, error) {
	written := false
	err := c.repo.Update(ctx, id, func(city *cities.City) (bool, error) {
		changed := false
		if res.ExternalDocID != "" && cities.Deref(city.ExternalDocID) != res.ExternalDocID {
			city.ExternalDocID = cities.StringPtr(res.ExternalDocID)
			changed = true
		}
		if cities.Deref(city.ImageURL) != res.ImageURL {
			city.ImageURL = cities.StringPtr(res.ImageURL)
			changed = true
		}
		if filename != "" && cities.Deref(city.LocalImageFilename) != filename {
			city.LocalImageFilename = cities.StringPtr(filename)
			changed = true
		}
		if changed {
			city.LastUpdated = c.now()
		}
		written = changed
		return changed, nil
	})
	return written, err
}

func (c *Coordinator) publish(r RunReport) {
	metrics.ObserveRunDuration(r.Kind, r.Finished.Sub(r.Started).Seconds())
	metrics.AddRecordOutcome("enriched", r.Enriched)
	metrics.AddRecordOutcome("skipped", r.Skipped)
	metrics.AddRecordOutcome("failed", r.Failed)

	fields := map[string]any{
		"kind":        r.Kind,
		"attempted":   r.Attempted,
		"enriched":    r.Enriched,
		"skipped":     r.Skipped,
		"failed":      r.Failed,
		"duration_ms": r.Finished.Sub(r.Started).Milliseconds(),
	}
	if r.CityID != "" {
		fields["city_id"] = r.CityID
	}
	if r.Reason != "" {
		fields["reason"] = r.Reason
		telemetry.Error("enrichment.run.aborted", fields)
	} else {
		telemetry.Info("enrichment.run.completed", fields)
	}

	c.mu.Lock()
	if r.Kind == KindBatch {
		c.batchRuns++
		saved := r
		c.lastBatch = &saved
	}
	observers := append([]func(RunReport){}, c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(r)
	}
}
