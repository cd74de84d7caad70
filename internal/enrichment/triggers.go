package enrichment

import (
	"context"
	"time"

	"travelog-backend/internal/cities"
	"travelog-backend/internal/shared/telemetry"
)

// BatchTrigger starts batch runs.
type BatchTrigger interface {
	TriggerBatchRun()
}

// SingleTrigger starts single-entity runs.
type SingleTrigger interface {
	TriggerSingleEntity(id string)
}

// WatchStore enriches newly inserted cities as the store reports them.
// Updates are ignored; they include the coordinator's own write-backs.
func WatchStore(ctx context.Context, obs cities.Observer, trigger SingleTrigger) error {
	events, err := obs.Observe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for evt := range events {
			if evt.Op != cities.ChangeInsert || evt.ID == "" {
				continue
			}
			telemetry.Info("enrichment.city.created", map[string]any{"city_id": evt.ID})
			trigger.TriggerSingleEntity(evt.ID)
		}
	}()
	return nil
}

// FollowConnectivity triggers a batch run on every offline to online transition
// until ctx ends or the channel closes.
func FollowConnectivity(ctx context.Context, transitions <-chan bool, trigger BatchTrigger) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				telemetry.Info("enrichment.trigger.online", nil)
				trigger.TriggerBatchRun()
			}
		}
	}
}

// RunPeriodic triggers a batch run every interval until ctx ends. interval <= 0 disables it.
func RunPeriodic(ctx context.Context, interval time.Duration, trigger BatchTrigger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trigger.TriggerBatchRun()
		}
	}
}
