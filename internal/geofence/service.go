// Package geofence manages safe zones for tracked entities and raises a
// breach alert when an entity leaves all of them.
package geofence

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/geo"
)

// Store is the persistence the zone and alert operations need.
type Store interface {
	GetEntity(ctx context.Context, id string) (*domain.TrackedEntity, error)

	CreateZone(ctx context.Context, z *domain.GeofenceZone) error
	GetZone(ctx context.Context, id string) (*domain.GeofenceZone, error)
	ListActiveZones(ctx context.Context, entityID string) ([]domain.GeofenceZone, error)
	UpdateZone(ctx context.Context, z *domain.GeofenceZone) error

	GetGeofenceAlert(ctx context.Context, id string) (*domain.GeofenceAlert, error)
	ListGeofenceAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]domain.GeofenceAlert, error)
	MarkGeofenceAlertRead(ctx context.Context, id string) error
	MarkAllGeofenceAlertsRead(ctx context.Context, ownerID string) (int64, error)
	CountUnreadGeofenceAlerts(ctx context.Context, ownerID string) (int64, error)
}

type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewService(store Store, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("geofence"),
	}
}

// ZoneUpdate carries the fields to change; nil or empty fields are kept.
type ZoneUpdate struct {
	Label *string
	Ring  orb.Ring
}

// AuthorizeEntity loads entityID and checks it belongs to ownerID.
func (s *Service) AuthorizeEntity(ctx context.Context, ownerID, entityID string) (*domain.TrackedEntity, error) {
	e, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, errors.Forbiddenf("entity %s does not belong to owner %s", entityID, ownerID)
	}
	return e, nil
}

func cleanLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", errors.InvalidInputf("zone label must not be empty")
	}
	return label, nil
}

func (s *Service) CreateZone(ctx context.Context, ownerID, entityID, label string, ring orb.Ring) (*domain.GeofenceZone, error) {
	if _, err := s.AuthorizeEntity(ctx, ownerID, entityID); err != nil {
		return nil, err
	}
	label, err := cleanLabel(label)
	if err != nil {
		return nil, err
	}
	ring, err = geo.NormalizeRing(ring)
	if err != nil {
		return nil, err
	}

	now := s.now()
	z := &domain.GeofenceZone{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Label:     label,
		Ring:      ring,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateZone(ctx, z); err != nil {
		return nil, err
	}
	s.logger.Infow("Zone created", "zone_id", z.ID, "entity_id", entityID, "vertices", len(ring))
	return z, nil
}

// ListZones returns the entity's active zones in creation order.
func (s *Service) ListZones(ctx context.Context, ownerID, entityID string) ([]domain.GeofenceZone, error) {
	if _, err := s.AuthorizeEntity(ctx, ownerID, entityID); err != nil {
		return nil, err
	}
	return s.store.ListActiveZones(ctx, entityID)
}

// authorizeZone loads an active zone and checks ownership through its entity.
// Soft-deleted zones are reported as not found.
func (s *Service) authorizeZone(ctx context.Context, ownerID, zoneID string) (*domain.GeofenceZone, error) {
	z, err := s.store.GetZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	if !z.Active {
		return nil, errors.NotFoundf("zone %s", zoneID)
	}
	if _, err := s.AuthorizeEntity(ctx, ownerID, z.EntityID); err != nil {
		return nil, err
	}
	return z, nil
}

func (s *Service) UpdateZone(ctx context.Context, ownerID, zoneID string, upd ZoneUpdate) (*domain.GeofenceZone, error) {
	z, err := s.authorizeZone(ctx, ownerID, zoneID)
	if err != nil {
		return nil, err
	}
	if upd.Label != nil {
		if z.Label, err = cleanLabel(*upd.Label); err != nil {
			return nil, err
		}
	}
	if upd.Ring != nil {
		if z.Ring, err = geo.NormalizeRing(upd.Ring); err != nil {
			return nil, err
		}
	}
	z.UpdatedAt = s.now()

	if err := s.store.UpdateZone(ctx, z); err != nil {
		return nil, err
	}
	return z, nil
}

// DeleteZone deactivates the zone. Alerts that reference it are kept.
func (s *Service) DeleteZone(ctx context.Context, ownerID, zoneID string) error {
	z, err := s.authorizeZone(ctx, ownerID, zoneID)
	if err != nil {
		return err
	}
	z.Active = false
	z.UpdatedAt = s.now()
	if err := s.store.UpdateZone(ctx, z); err != nil {
		return err
	}
	s.logger.Infow("Zone deleted", "zone_id", zoneID, "entity_id", z.EntityID)
	return nil
}

func (s *Service) ListAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]domain.GeofenceAlert, error) {
	return s.store.ListGeofenceAlerts(ctx, ownerID, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, ownerID, alertID string) error {
	a, err := s.store.GetGeofenceAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if _, err := s.AuthorizeEntity(ctx, ownerID, a.EntityID); err != nil {
		return err
	}
	return s.store.MarkGeofenceAlertRead(ctx, alertID)
}

func (s *Service) MarkAllRead(ctx context.Context, ownerID string) (int64, error) {
	return s.store.MarkAllGeofenceAlertsRead(ctx, ownerID)
}

func (s *Service) UnreadCount(ctx context.Context, ownerID string) (int64, error) {
	return s.store.CountUnreadGeofenceAlerts(ctx, ownerID)
}
