package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// OnlineReporter reports whether the remote catalog is reachable.
type OnlineReporter interface {
	Online() bool
}

// StateReporter reports the enrichment run state.
type StateReporter interface {
	State() string
}

// Service encapsulates health-related checks. Nil dependencies are skipped.
type Service struct {
	DB         Pinger
	Catalog    OnlineReporter
	Enrichment StateReporter
}

// NewService constructs a new health service.
func NewService(db Pinger, catalog OnlineReporter, enrichment StateReporter) *Service {
	return &Service{DB: db, Catalog: catalog, Enrichment: enrichment}
}

// Report is the health payload. OK is false only when the database is down;
// an offline catalog degrades enrichment but not the service.
type Report struct {
	OK         bool   `json:"ok"`
	Database   string `json:"database"`
	Catalog    string `json:"catalog"`
	Enrichment string `json:"enrichment,omitempty"`
}

// Status runs the checks.
func (s *Service) Status(ctx context.Context) Report {
	r := Report{OK: true, Database: "memory", Catalog: "unknown"}
	if s == nil {
		return r
	}
	if s.DB != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.DB.PingContext(pctx); err != nil {
			r.OK = false
			r.Database = "down"
		} else {
			r.Database = "up"
		}
	}
	if s.Catalog != nil {
		if s.Catalog.Online() {
			r.Catalog = "online"
		} else {
			r.Catalog = "offline"
		}
	}
	if s.Enrichment != nil {
		r.Enrichment = s.Enrichment.State()
	}
	return r
}
