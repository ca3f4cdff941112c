// Package store holds the durable record (PostgreSQL, or memory for tests and
// local runs) and the Redis live-state cache.
package store

import (
	"context"
	"time"

	"fleet-monitor/locintel/internal/domain"
)

// Store is the full persistence surface. Both TimescaleStore and MemoryStore
// implement it; consumers depend on the narrower slices they use.
type Store interface {
	CreateOwner(ctx context.Context, o *domain.Owner) error
	GetOwner(ctx context.Context, id string) (*domain.Owner, error)
	UpdatePushToken(ctx context.Context, ownerID, token string) error
	CreateEntity(ctx context.Context, e *domain.TrackedEntity) error
	GetEntity(ctx context.Context, id string) (*domain.TrackedEntity, error)
	ListEntitiesByOwner(ctx context.Context, ownerID string) ([]domain.TrackedEntity, error)
	ListAnomalyEnabledEntities(ctx context.Context) ([]domain.TrackedEntity, error)

	InsertPosition(ctx context.Context, p *domain.PositionSample) error
	PositionsSince(ctx context.Context, entityID string, since time.Time) ([]domain.PositionSample, error)
	LatestPosition(ctx context.Context, entityID string) (*domain.PositionSample, error)
	LatestPositions(ctx context.Context, entityIDs []string) (map[string]domain.PositionSample, error)

	CreateZone(ctx context.Context, z *domain.GeofenceZone) error
	GetZone(ctx context.Context, id string) (*domain.GeofenceZone, error)
	ListActiveZones(ctx context.Context, entityID string) ([]domain.GeofenceZone, error)
	UpdateZone(ctx context.Context, z *domain.GeofenceZone) error
	SetZoneLastAlert(ctx context.Context, zoneID string, at time.Time) error

	InsertGeofenceAlert(ctx context.Context, a *domain.GeofenceAlert) error
	GetGeofenceAlert(ctx context.Context, id string) (*domain.GeofenceAlert, error)
	ListGeofenceAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]domain.GeofenceAlert, error)
	MarkGeofenceAlertRead(ctx context.Context, id string) error
	MarkAllGeofenceAlertsRead(ctx context.Context, ownerID string) (int64, error)
	CountUnreadGeofenceAlerts(ctx context.Context, ownerID string) (int64, error)

	InsertAnomalyAlert(ctx context.Context, a *domain.AnomalyAlert) error
	GetAnomalyAlert(ctx context.Context, id string) (*domain.AnomalyAlert, error)
	ListUnacknowledgedAnomalyAlerts(ctx context.Context, ownerID string) ([]domain.AnomalyAlert, error)
	AcknowledgeAnomalyAlert(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close()
}

var (
	_ Store = (*TimescaleStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
