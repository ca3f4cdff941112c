package store

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateOwner(ctx, &domain.Owner{ID: "o1", DisplayName: "Ada", AnomalyEnabled: true}))
	require.NoError(t, m.CreateOwner(ctx, &domain.Owner{ID: "o2", DisplayName: "Bo"}))
	require.NoError(t, m.CreateEntity(ctx, &domain.TrackedEntity{ID: "e1", OwnerID: "o1", DisplayName: "Van 1", CreatedAt: t0}))
	require.NoError(t, m.CreateEntity(ctx, &domain.TrackedEntity{ID: "e2", OwnerID: "o1", DisplayName: "Van 2", CreatedAt: t0.Add(time.Second)}))
	require.NoError(t, m.CreateEntity(ctx, &domain.TrackedEntity{ID: "e3", OwnerID: "o2", DisplayName: "Bike", CreatedAt: t0}))
	return m
}

func square() orb.Ring {
	return orb.Ring{{29.0, 41.0}, {29.001, 41.0}, {29.001, 41.001}, {29.0, 41.001}, {29.0, 41.0}}
}

func TestMemoryEntities(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	_, err := m.GetEntity(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	err = m.CreateEntity(ctx, &domain.TrackedEntity{ID: "e9", OwnerID: "ghost"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	es, err := m.ListEntitiesByOwner(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, es, 2)
	assert.Equal(t, "e1", es[0].ID)

	enabled, err := m.ListAnomalyEnabledEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	require.NoError(t, m.UpdatePushToken(ctx, "o1", "tok"))
	o, err := m.GetOwner(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "tok", o.PushToken)
	assert.True(t, errors.Is(m.UpdatePushToken(ctx, "ghost", "x"), errors.ErrNotFound))
}

func TestMemoryPositionsStayOrdered(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	for _, off := range []int{30, 10, 20} {
		require.NoError(t, m.InsertPosition(ctx, &domain.PositionSample{
			ID: "p", EntityID: "e1", Latitude: 41, Longitude: 29,
			RecordedAt: t0.Add(time.Duration(off) * time.Second),
		}))
	}

	got, err := m.PositionsSince(ctx, "e1", t0.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t0.Add(20*time.Second), got[0].RecordedAt)
	assert.Equal(t, t0.Add(30*time.Second), got[1].RecordedAt)

	last, err := m.LatestPosition(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Second), last.RecordedAt)

	_, err = m.LatestPosition(ctx, "e2")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	latest, err := m.LatestPositions(ctx, []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestMemoryZones(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	for _, id := range []string{"zb", "za"} {
		require.NoError(t, m.CreateZone(ctx, &domain.GeofenceZone{ID: id, EntityID: "e1", Label: id, Ring: square(), Active: true}))
	}
	require.NoError(t, m.CreateZone(ctx, &domain.GeofenceZone{ID: "zc", EntityID: "e1", Label: "off", Ring: square()}))

	zones, err := m.ListActiveZones(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "zb", zones[0].ID, "creation order")

	zones[0].Ring[0] = orb.Point{0, 0}
	z, err := m.GetZone(ctx, "zb")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{29.0, 41.0}, z.Ring[0], "store returns copies")

	require.NoError(t, m.SetZoneLastAlert(ctx, "zb", t0.Add(time.Hour)))
	require.NoError(t, m.SetZoneLastAlert(ctx, "zb", t0))
	z, _ = m.GetZone(ctx, "zb")
	require.NotNil(t, z.LastAlertAt)
	assert.Equal(t, t0.Add(time.Hour), *z.LastAlertAt, "last alert never moves backwards")

	z.Active = false
	require.NoError(t, m.UpdateZone(ctx, z))
	zones, _ = m.ListActiveZones(ctx, "e1")
	assert.Len(t, zones, 1)

	assert.True(t, errors.Is(m.UpdateZone(ctx, &domain.GeofenceZone{ID: "nope"}), errors.ErrNotFound))
}

func TestMemoryGeofenceAlerts(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	require.NoError(t, m.InsertGeofenceAlert(ctx, &domain.GeofenceAlert{ID: "a1", EntityID: "e1", ZoneID: "z", CreatedAt: t0}))
	require.NoError(t, m.InsertGeofenceAlert(ctx, &domain.GeofenceAlert{ID: "a2", EntityID: "e2", ZoneID: "z", CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, m.InsertGeofenceAlert(ctx, &domain.GeofenceAlert{ID: "a3", EntityID: "e3", ZoneID: "z", CreatedAt: t0}))

	list, err := m.ListGeofenceAlerts(ctx, "o1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID, "newest first")
	assert.Equal(t, "Van 2", list[0].EntityDisplayName)

	require.NoError(t, m.MarkGeofenceAlertRead(ctx, "a1"))
	n, _ := m.CountUnreadGeofenceAlerts(ctx, "o1")
	assert.Equal(t, int64(1), n)

	changed, err := m.MarkAllGeofenceAlertsRead(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	n, _ = m.CountUnreadGeofenceAlerts(ctx, "o1")
	assert.Zero(t, n)
	n, _ = m.CountUnreadGeofenceAlerts(ctx, "o2")
	assert.Equal(t, int64(1), n)
}

func TestMemoryAnomalyAlerts(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	require.NoError(t, m.InsertAnomalyAlert(ctx, &domain.AnomalyAlert{ID: "x1", EntityID: "e1", Summary: "fast", CreatedAt: t0}))
	list, err := m.ListUnacknowledgedAnomalyAlerts(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Van 1", list[0].EntityDisplayName)

	require.NoError(t, m.AcknowledgeAnomalyAlert(ctx, "x1"))
	list, _ = m.ListUnacknowledgedAnomalyAlerts(ctx, "o1")
	assert.Empty(t, list)
	assert.True(t, errors.Is(m.AcknowledgeAnomalyAlert(ctx, "nope"), errors.ErrNotFound))
}
