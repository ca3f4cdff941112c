package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/domain"
)

const (
	stateBatchSize = 100
	stateFlushTick = 50 * time.Millisecond
)

// StateSink stores the last-known position of an entity.
type StateSink interface {
	PipelineStateUpdate(ctx context.Context, s *domain.LiveState) error
}

// StateWriter drains the state queue into the live-state cache in small batches.
type StateWriter struct {
	ch     <-chan Task
	sink   StateSink
	logger *zap.SugaredLogger
}

func NewStateWriter(ch <-chan Task, sink StateSink, logger *zap.SugaredLogger) *StateWriter {
	return &StateWriter{ch: ch, sink: sink, logger: logger.Named("state-writer")}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]Task, 0, stateBatchSize)
	ticker := time.NewTicker(stateFlushTick)
	defer ticker.Stop()

	for {
		select {
		case t, ok := <-w.ch:
			if !ok {
				w.flushBatch(batch)
				return
			}
			batch = append(batch, t)
			if len(batch) >= stateBatchSize {
				w.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.flushBatch(batch)
			return
		}
	}
}

func (w *StateWriter) flushBatch(batch []Task) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, t := range batch {
		err := w.sink.PipelineStateUpdate(ctx, &domain.LiveState{
			EntityID:   t.Entity.ID,
			OwnerID:    t.Entity.OwnerID,
			Latitude:   t.Sample.Latitude,
			Longitude:  t.Sample.Longitude,
			RecordedAt: t.Sample.RecordedAt,
		})
		if err != nil {
			w.logger.Warnw("Live state update failed", "entity_id", t.Entity.ID, "error", err)
		}
	}
}
