package anomaly

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/locintel/internal/domain"
)

// EntityLister yields the entities the periodic sweep covers.
type EntityLister interface {
	ListAnomalyEnabledEntities(ctx context.Context) ([]domain.TrackedEntity, error)
}

// Sweeper runs the detector over every enrolled entity on a fixed interval.
type Sweeper struct {
	detector    *Detector
	entities    EntityLister
	interval    time.Duration
	concurrency int
	logger      *zap.SugaredLogger
}

func NewSweeper(detector *Detector, entities EntityLister, interval time.Duration, concurrency int, logger *zap.SugaredLogger) *Sweeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		detector:    detector,
		entities:    entities,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger.Named("anomaly-sweep"),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep checks every enrolled entity once and returns how many raised an
// alert. A failing entity is logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) int {
	entities, err := s.entities.ListAnomalyEnabledEntities(ctx)
	if err != nil {
		s.logger.Errorw("Failed to list entities for sweep", "error", err)
		return 0
	}
	s.logger.Infow("Running anomaly sweep", "entities", len(entities))

	results := make([]bool, len(entities))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range entities {
		g.Go(func() error {
			results[i] = s.checkOne(ctx, &entities[i])
			return nil
		})
	}
	_ = g.Wait()

	raised := 0
	for _, r := range results {
		if r {
			raised++
		}
	}
	return raised
}

// checkOne is the task boundary: errors and panics are logged, never returned.
func (s *Sweeper) checkOne(ctx context.Context, entity *domain.TrackedEntity) (raised bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Anomaly check panicked", "entity_id", entity.ID, "panic", r)
			raised = false
		}
	}()

	v, err := s.detector.Check(ctx, entity)
	if err != nil {
		s.logger.Errorw("Anomaly check failed", "entity_id", entity.ID, "error", err)
		return false
	}
	return v.AlertID != ""
}
