package geofence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/geo"
	"fleet-monitor/locintel/internal/metrics"
	"fleet-monitor/locintel/internal/notify"
)

// DefaultCooldown is the minimum interval between alerts for one zone.
const DefaultCooldown = 30 * time.Minute

const breachType = "GEOFENCE_BREACH"

// EvalStore is the persistence one breach check touches.
type EvalStore interface {
	GetOwner(ctx context.Context, id string) (*domain.Owner, error)
	ListActiveZones(ctx context.Context, entityID string) ([]domain.GeofenceZone, error)
	SetZoneLastAlert(ctx context.Context, zoneID string, at time.Time) error
	InsertGeofenceAlert(ctx context.Context, a *domain.GeofenceAlert) error
}

// Publisher fans an event out to an owner's live channels.
type Publisher interface {
	Publish(ownerID, eventName string, payload interface{}) int
}

type Evaluator struct {
	store    EvalStore
	hub      Publisher
	push     notify.Sender
	cooldown time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger
}

func NewEvaluator(store EvalStore, hub Publisher, push notify.Sender, cooldown time.Duration, logger *zap.SugaredLogger) *Evaluator {
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	return &Evaluator{
		store:    store,
		hub:      hub,
		push:     push,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("geofence"),
	}
}

// Check evaluates one position against the entity's active zones. It returns
// the alert it raised, or nil when the entity is inside a zone, has no zones,
// or every zone is still cooling down.
func (e *Evaluator) Check(ctx context.Context, entity *domain.TrackedEntity, lat, lng float64) (*domain.GeofenceAlert, error) {
	metrics.GeofenceChecks.Inc()

	zones, err := e.store.ListActiveZones(ctx, entity.ID)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, nil
	}

	for i := range zones {
		if geo.Contains(zones[i].Ring, lat, lng) {
			return nil, nil
		}
	}

	now := e.now()
	for i := range zones {
		zone := &zones[i]
		if !zone.CooldownElapsed(now, e.cooldown) {
			continue
		}
		// First eligible zone wins; one alert per breach.
		return e.breach(ctx, entity, zone, lat, lng, now)
	}
	return nil, nil
}

func (e *Evaluator) breach(ctx context.Context, entity *domain.TrackedEntity, zone *domain.GeofenceZone, lat, lng float64, now time.Time) (*domain.GeofenceAlert, error) {
	if err := e.store.SetZoneLastAlert(ctx, zone.ID, now); err != nil {
		return nil, err
	}
	zone.LastAlertAt = &now

	e.hub.Publish(entity.OwnerID, domain.EventGeofenceBreach, domain.GeofenceBreachEvent{
		Type:        breachType,
		EntityID:    entity.ID,
		DisplayName: entity.DisplayName,
		Latitude:    lat,
		Longitude:   lng,
		ZoneID:      zone.ID,
		ZoneLabel:   zone.Label,
		Timestamp:   now,
	})

	if owner, err := e.store.GetOwner(ctx, entity.OwnerID); err != nil {
		e.logger.Warnw("Owner lookup for push failed", "owner_id", entity.OwnerID, "error", err)
	} else {
		e.push.SendPush(ctx, owner.PushToken,
			entity.DisplayName+" left the safe zone!",
			"Moved outside all safe zones.")
	}

	alert := &domain.GeofenceAlert{
		ID:                uuid.NewString(),
		EntityID:          entity.ID,
		EntityDisplayName: entity.DisplayName,
		ZoneID:            zone.ID,
		ZoneLabel:         zone.Label,
		Latitude:          lat,
		Longitude:         lng,
		CreatedAt:         now,
	}
	if err := e.store.InsertGeofenceAlert(ctx, alert); err != nil {
		return nil, err
	}

	metrics.GeofenceBreaches.Inc()
	e.logger.Infow("Geofence breach", "entity_id", entity.ID, "zone_id", zone.ID, "lat", lat, "lng", lng)
	return alert, nil
}
