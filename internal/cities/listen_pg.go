package cities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"travelog-backend/internal/shared/telemetry"
)

const (
	changeChannel      = "city_changes"
	listenRetryBackoff = 2 * time.Second
	listenBuffer       = 64
)

// PGListener streams city changes published by the cities_notify_change trigger.
// It holds one dedicated connection outside the database/sql pool.
type PGListener struct {
	DatabaseURL string
}

// Observe connects, issues LISTEN and forwards notifications until ctx ends.
// Lost connections are re-established with a fixed backoff.
func (l *PGListener) Observe(ctx context.Context) (<-chan ChangeEvent, error) {
	conn, err := l.listen(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan ChangeEvent, listenBuffer)
	go l.loop(ctx, conn, out)
	return out, nil
}

func (l *PGListener) listen(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", changeChannel, err)
	}
	return conn, nil
}

func (l *PGListener) loop(ctx context.Context, conn *pgx.Conn, out chan<- ChangeEvent) {
	defer close(out)
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(listenRetryBackoff):
			}
			var err error
			conn, err = l.listen(ctx)
			if err != nil {
				telemetry.Warn("cities.listen.reconnect_failed", map[string]any{"error": err.Error()})
				conn = nil
				continue
			}
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			telemetry.Warn("cities.listen.failed", map[string]any{"error": err.Error()})
			_ = conn.Close(context.Background())
			conn = nil
			continue
		}

		evt, ok := decodeChange(n.Payload)
		if !ok {
			telemetry.Warn("cities.listen.bad_payload", map[string]any{"payload": n.Payload})
			continue
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func decodeChange(payload string) (ChangeEvent, bool) {
	var evt ChangeEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return ChangeEvent{}, false
	}
	if evt.ID == "" {
		return ChangeEvent{}, false
	}
	switch evt.Op {
	case ChangeInsert, ChangeUpdate:
		return evt, true
	default:
		return ChangeEvent{}, false
	}
}

var _ Observer = (*PGListener)(nil)
