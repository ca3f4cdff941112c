// Package pipeline is the ingest path: store the sample, publish it live, and
// hand it to the background geofence and live-state consumers.
package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/metrics"
)

type IngestStore interface {
	GetEntity(ctx context.Context, id string) (*domain.TrackedEntity, error)
	InsertPosition(ctx context.Context, p *domain.PositionSample) error
}

type Publisher interface {
	Publish(ownerID, eventName string, payload interface{}) int
}

type Ingestor struct {
	store      IngestStore
	hub        Publisher
	dispatcher *Dispatcher
	now        func() time.Time
	logger     *zap.SugaredLogger
}

func NewIngestor(store IngestStore, hub Publisher, dispatcher *Dispatcher, logger *zap.SugaredLogger) *Ingestor {
	return &Ingestor{
		store:      store,
		hub:        hub,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Named("ingest"),
	}
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Ingest stores one sample and returns it. recordedAt defaults to server time.
// Only the store write can fail the call; geofence evaluation and the
// live-state update run afterwards on their own queues.
func (in *Ingestor) Ingest(ctx context.Context, entityID string, lat, lng float64, recordedAt *time.Time) (*domain.PositionSample, error) {
	if !validCoordinates(lat, lng) {
		return nil, errors.InvalidInputf("coordinates out of range: %v, %v", lat, lng)
	}

	entity, err := in.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	now := in.now()
	sample := &domain.PositionSample{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		Latitude:   lat,
		Longitude:  lng,
		RecordedAt: now,
		ReceivedAt: now,
	}
	if recordedAt != nil && !recordedAt.IsZero() {
		sample.RecordedAt = recordedAt.UTC()
	}

	if err := in.store.InsertPosition(ctx, sample); err != nil {
		metrics.IngestFailures.Inc()
		return nil, err
	}
	metrics.PositionsIngested.Inc()

	in.hub.Publish(entity.OwnerID, domain.EventLocationUpdate, domain.LocationUpdateEvent{
		EntityID:    entity.ID,
		DisplayName: entity.DisplayName,
		Latitude:    lat,
		Longitude:   lng,
		RecordedAt:  sample.RecordedAt,
		Online:      now.Sub(sample.RecordedAt) <= domain.OnlineWindow,
	})

	in.dispatcher.Dispatch(Task{Entity: *entity, Sample: *sample})
	return sample, nil
}
