package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/metrics"
)

const checkTimeout = 10 * time.Second

// BreachChecker evaluates one position against an entity's zones.
type BreachChecker interface {
	Check(ctx context.Context, entity *domain.TrackedEntity, lat, lng float64) (*domain.GeofenceAlert, error)
}

// GeofenceWorker drains the geofence queue. Several may share one channel.
type GeofenceWorker struct {
	ch      <-chan Task
	checker BreachChecker
	logger  *zap.SugaredLogger
}

func NewGeofenceWorker(ch <-chan Task, checker BreachChecker, logger *zap.SugaredLogger) *GeofenceWorker {
	return &GeofenceWorker{ch: ch, checker: checker, logger: logger.Named("geofence-worker")}
}

func (w *GeofenceWorker) Run(ctx context.Context) {
	for {
		select {
		case t, ok := <-w.ch:
			if !ok {
				return
			}
			w.process(t)

		case <-ctx.Done():
			return
		}
	}
}

// process is the task boundary: a failed or panicking check is logged and
// dropped so the worker keeps serving other entities.
func (w *GeofenceWorker) process(t Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.GeofenceCheckFailures.Inc()
			w.logger.Errorw("Geofence check panicked", "entity_id", t.Entity.ID, "panic", r)
		}
	}()

	// Not tied to the request context; the ingest call has already returned.
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	if _, err := w.checker.Check(ctx, &t.Entity, t.Sample.Latitude, t.Sample.Longitude); err != nil {
		metrics.GeofenceCheckFailures.Inc()
		w.logger.Warnw("Geofence check failed", "entity_id", t.Entity.ID, "sample_id", t.Sample.ID, "error", err)
	}
}
