package enrichment

import (
	"context"
	"errors"
	"time"
	"unicode"

	"travelog-backend/internal/catalog"
	"travelog-backend/internal/shared/metrics"
	"travelog-backend/internal/shared/telemetry"
)

const (
	defaultOnlineTimeout  = 5 * time.Second
	defaultOfflineTimeout = 1200 * time.Millisecond
	defaultPrefixLimit    = 10
	defaultSearchLimit    = 5
	prefixRangeSentinel   = "\uf8ff"
)

// Resolution is the outcome of a successful lookup. ExternalDocID is empty
// when the source cannot vouch for a canonical catalog document.
type Resolution struct {
	ImageURL      string
	ExternalDocID string
	Source        string
}

// ResolverConfig names the catalog resources and bounds the lookups.
type ResolverConfig struct {
	Collection     string
	SearchFunction string
	OnlineTimeout  time.Duration
	OfflineTimeout time.Duration
	PrefixLimit    int
	SearchLimit    int
}

// Resolver finds an image URL for a city by cascading through the catalog.
type Resolver struct {
	catalog catalog.Catalog
	cfg     ResolverConfig
}

// NewResolver applies defaults to cfg and returns a Resolver.
func NewResolver(c catalog.Catalog, cfg ResolverConfig) *Resolver {
	if cfg.Collection == "" {
		cfg.Collection = "cities"
	}
	if cfg.SearchFunction == "" {
		cfg.SearchFunction = "searchCities"
	}
	if cfg.OnlineTimeout <= 0 {
		cfg.OnlineTimeout = defaultOnlineTimeout
	}
	if cfg.OfflineTimeout <= 0 {
		cfg.OfflineTimeout = defaultOfflineTimeout
	}
	if cfg.PrefixLimit <= 0 {
		cfg.PrefixLimit = defaultPrefixLimit
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	return &Resolver{catalog: c, cfg: cfg}
}

// Resolve returns the best image for snap. Lookup failures are logged and
// treated as misses; ok is false when nothing was found.
func (r *Resolver) Resolve(ctx context.Context, snap Snapshot, online bool) (Resolution, bool) {
	var res Resolution
	var ok bool
	if online {
		res, ok = r.resolveOnline(ctx, snap)
	} else {
		res, ok = r.resolveOffline(ctx, snap)
	}
	if ok {
		metrics.IncResolverHit(res.Source)
	} else {
		metrics.IncResolverHit("none")
	}
	return res, ok
}

func (r *Resolver) resolveOnline(ctx context.Context, snap Snapshot) (Resolution, bool) {
	if snap.ExternalDocID != "" {
		if url := r.documentImage(ctx, snap, catalog.PreferNetwork, r.cfg.OnlineTimeout); url != "" {
			return Resolution{ImageURL: url, ExternalDocID: snap.ExternalDocID, Source: "doc_id"}, true
		}
	}

	for _, name := range snap.Names {
		if ctx.Err() != nil {
			return Resolution{}, false
		}
		lower := lowerKey(name)
		if doc, ok := r.firstWithImage(ctx, snap, "name_exact", catalog.Query{
			Collection: r.cfg.Collection,
			Equal:      &catalog.Equal{Field: "name", Value: name},
			Limit:      r.cfg.PrefixLimit,
		}); ok {
			return Resolution{ImageURL: doc.Fields.ImageURL(), ExternalDocID: doc.ID, Source: "name_exact"}, true
		}
		if doc, ok := r.firstWithImage(ctx, snap, "name_lower", catalog.Query{
			Collection: r.cfg.Collection,
			Equal:      &catalog.Equal{Field: "nameLower", Value: lower},
			Limit:      r.cfg.PrefixLimit,
		}); ok {
			return Resolution{ImageURL: doc.Fields.ImageURL(), ExternalDocID: doc.ID, Source: "name_lower"}, true
		}
		docs, err := r.catalog.Query(ctx, catalog.Query{
			Collection: r.cfg.Collection,
			Range:      &catalog.Range{Field: "nameLower", Start: lower, End: lower + prefixRangeSentinel},
			Limit:      r.cfg.PrefixLimit,
		}, catalog.PreferNetwork, r.cfg.OnlineTimeout)
		if err != nil {
			logLookupFailure(snap, "name_prefix", err)
			continue
		}
		if doc, ok := bestWithImage(docs, lower); ok {
			return Resolution{ImageURL: doc.Fields.ImageURL(), ExternalDocID: doc.ID, Source: "name_prefix"}, true
		}
	}

	// A previously resolved URL is kept rather than replaced by a search hit.
	if snap.ImageURL != "" {
		return Resolution{ImageURL: snap.ImageURL, Source: "existing"}, true
	}

	for _, name := range snap.Names {
		if ctx.Err() != nil {
			return Resolution{}, false
		}
		if url := r.searchImage(ctx, snap, name); url != "" {
			return Resolution{ImageURL: url, Source: "search"}, true
		}
	}
	return Resolution{}, false
}

func (r *Resolver) resolveOffline(ctx context.Context, snap Snapshot) (Resolution, bool) {
	if snap.ImageURL != "" {
		return Resolution{ImageURL: snap.ImageURL, Source: "existing"}, true
	}
	if snap.ExternalDocID != "" {
		if url := r.documentImage(ctx, snap, catalog.PreferCache, r.cfg.OfflineTimeout); url != "" {
			return Resolution{ImageURL: url, ExternalDocID: snap.ExternalDocID, Source: "doc_id_cached"}, true
		}
	}
	return Resolution{}, false
}

func (r *Resolver) documentImage(ctx context.Context, snap Snapshot, mode catalog.SourceMode, timeout time.Duration) string {
	fields, err := r.catalog.GetDocument(ctx, r.cfg.Collection, snap.ExternalDocID, mode, timeout)
	if err != nil {
		logLookupFailure(snap, "doc_id", err)
		return ""
	}
	return fields.ImageURL()
}

func (r *Resolver) firstWithImage(ctx context.Context, snap Snapshot, step string, q catalog.Query) (catalog.Document, bool) {
	docs, err := r.catalog.Query(ctx, q, catalog.PreferNetwork, r.cfg.OnlineTimeout)
	if err != nil {
		logLookupFailure(snap, step, err)
		return catalog.Document{}, false
	}
	for _, d := range docs {
		if d.Fields.ImageURL() != "" {
			return d, true
		}
	}
	return catalog.Document{}, false
}

func (r *Resolver) searchImage(ctx context.Context, snap Snapshot, name string) string {
	payload := map[string]any{
		"query":    name,
		"language": queryLanguage(name),
		"limit":    r.cfg.SearchLimit,
	}
	res, err := r.catalog.CallFunction(ctx, r.cfg.SearchFunction, payload, r.cfg.OnlineTimeout)
	if err != nil {
		logLookupFailure(snap, "search", err)
		return ""
	}
	list, _ := res["cities"].([]any)
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if url := catalog.Fields(entry).ImageURL(); url != "" {
			return url
		}
	}
	return ""
}

// queryLanguage returns "ko" for names containing Hangul and "en" otherwise.
func queryLanguage(name string) string {
	for _, r := range name {
		if unicode.Is(unicode.Hangul, r) {
			return "ko"
		}
	}
	return "en"
}

func logLookupFailure(snap Snapshot, step string, err error) {
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, context.Canceled) {
		return
	}
	telemetry.Warn("enrichment.resolve.lookup_failed", map[string]any{
		"city_id": snap.ID,
		"step":    step,
		"error":   err,
	})
}
