package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
)

// MemoryStore is an in-process Store. Returned values are copies; callers
// never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	owners    map[string]domain.Owner
	entities  map[string]domain.TrackedEntity
	positions map[string][]domain.PositionSample // per entity, sorted by RecordedAt

	zones     map[string]domain.GeofenceZone
	zoneOrder []string

	geofenceAlerts map[string]domain.GeofenceAlert
	anomalyAlerts  map[string]domain.AnomalyAlert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners:         make(map[string]domain.Owner),
		entities:       make(map[string]domain.TrackedEntity),
		positions:      make(map[string][]domain.PositionSample),
		zones:          make(map[string]domain.GeofenceZone),
		geofenceAlerts: make(map[string]domain.GeofenceAlert),
		anomalyAlerts:  make(map[string]domain.AnomalyAlert),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() {}

func (m *MemoryStore) CreateOwner(_ context.Context, o *domain.Owner) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[o.ID] = *o
	return nil
}

func (m *MemoryStore) GetOwner(_ context.Context, id string) (*domain.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, errors.NotFoundf("owner %s", id)
	}
	return &o, nil
}

func (m *MemoryStore) UpdatePushToken(_ context.Context, ownerID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[ownerID]
	if !ok {
		return errors.NotFoundf("owner %s", ownerID)
	}
	o.PushToken = token
	m.owners[ownerID] = o
	return nil
}

func (m *MemoryStore) CreateEntity(_ context.Context, e *domain.TrackedEntity) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[e.OwnerID]; !ok {
		return errors.InvalidInputf("owner %s does not exist", e.OwnerID)
	}
	m.entities[e.ID] = *e
	return nil
}

func (m *MemoryStore) GetEntity(_ context.Context, id string) (*domain.TrackedEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, errors.NotFoundf("entity %s", id)
	}
	return &e, nil
}

func (m *MemoryStore) ListEntitiesByOwner(_ context.Context, ownerID string) ([]domain.TrackedEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.TrackedEntity
	for _, e := range m.entities {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sortEntities(out)
	return out, nil
}

func (m *MemoryStore) ListAnomalyEnabledEntities(context.Context) ([]domain.TrackedEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.TrackedEntity
	for _, e := range m.entities {
		if m.owners[e.OwnerID].AnomalyEnabled {
			out = append(out, e)
		}
	}
	sortEntities(out)
	return out, nil
}

func sortEntities(es []domain.TrackedEntity) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].OwnerID != es[j].OwnerID {
			return es[i].OwnerID < es[j].OwnerID
		}
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
}

func (m *MemoryStore) InsertPosition(_ context.Context, p *domain.PositionSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	samples := m.positions[p.EntityID]
	i := sort.Search(len(samples), func(i int) bool { return samples[i].RecordedAt.After(p.RecordedAt) })
	samples = append(samples, domain.PositionSample{})
	copy(samples[i+1:], samples[i:])
	samples[i] = *p
	m.positions[p.EntityID] = samples
	return nil
}

func (m *MemoryStore) PositionsSince(_ context.Context, entityID string, since time.Time) ([]domain.PositionSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PositionSample
	for _, p := range m.positions[entityID] {
		if p.RecordedAt.After(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) LatestPosition(_ context.Context, entityID string) (*domain.PositionSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	samples := m.positions[entityID]
	if len(samples) == 0 {
		return nil, errors.NotFoundf("position for entity %s", entityID)
	}
	p := samples[len(samples)-1]
	return &p, nil
}

func (m *MemoryStore) LatestPositions(_ context.Context, entityIDs []string) (map[string]domain.PositionSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.PositionSample, len(entityIDs))
	for _, id := range entityIDs {
		if samples := m.positions[id]; len(samples) > 0 {
			out[id] = samples[len(samples)-1]
		}
	}
	return out, nil
}

func copyZone(z domain.GeofenceZone) domain.GeofenceZone {
	z.Ring = append(z.Ring[:0:0], z.Ring...)
	if z.LastAlertAt != nil {
		t := *z.LastAlertAt
		z.LastAlertAt = &t
	}
	return z
}

func (m *MemoryStore) CreateZone(_ context.Context, z *domain.GeofenceZone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.zones[z.ID]; ok {
		return errors.InvalidInputf("zone %s already exists", z.ID)
	}
	m.zones[z.ID] = copyZone(*z)
	m.zoneOrder = append(m.zoneOrder, z.ID)
	return nil
}

func (m *MemoryStore) GetZone(_ context.Context, id string) (*domain.GeofenceZone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, errors.NotFoundf("zone %s", id)
	}
	z = copyZone(z)
	return &z, nil
}

func (m *MemoryStore) ListActiveZones(_ context.Context, entityID string) ([]domain.GeofenceZone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.GeofenceZone
	for _, id := range m.zoneOrder {
		z := m.zones[id]
		if z.EntityID == entityID && z.Active {
			out = append(out, copyZone(z))
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateZone(_ context.Context, z *domain.GeofenceZone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.zones[z.ID]
	if !ok {
		return errors.NotFoundf("zone %s", z.ID)
	}
	cur.Label = z.Label
	cur.Ring = append(z.Ring[:0:0], z.Ring...)
	cur.Active = z.Active
	cur.UpdatedAt = z.UpdatedAt
	m.zones[z.ID] = cur
	return nil
}

func (m *MemoryStore) SetZoneLastAlert(_ context.Context, zoneID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[zoneID]
	if !ok {
		return errors.NotFoundf("zone %s", zoneID)
	}
	if z.LastAlertAt == nil || at.After(*z.LastAlertAt) {
		z.LastAlertAt = &at
	}
	m.zones[zoneID] = z
	return nil
}

func (m *MemoryStore) InsertGeofenceAlert(_ context.Context, a *domain.GeofenceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geofenceAlerts[a.ID] = *a
	return nil
}

// withEntityName fills the joined display name the way the SQL store does.
func (m *MemoryStore) withEntityName(a domain.GeofenceAlert) domain.GeofenceAlert {
	a.EntityDisplayName = m.entities[a.EntityID].DisplayName
	return a
}

func (m *MemoryStore) GetGeofenceAlert(_ context.Context, id string) (*domain.GeofenceAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.geofenceAlerts[id]
	if !ok {
		return nil, errors.NotFoundf("alert %s", id)
	}
	a = m.withEntityName(a)
	return &a, nil
}

func (m *MemoryStore) ownerGeofenceAlerts(ownerID string, unreadOnly bool) []domain.GeofenceAlert {
	var out []domain.GeofenceAlert
	for _, a := range m.geofenceAlerts {
		if m.entities[a.EntityID].OwnerID != ownerID {
			continue
		}
		if unreadOnly && a.Read {
			continue
		}
		out = append(out, m.withEntityName(a))
	}
	return out
}

func (m *MemoryStore) ListGeofenceAlerts(_ context.Context, ownerID string, unreadOnly bool) ([]domain.GeofenceAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.ownerGeofenceAlerts(ownerID, unreadOnly)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkGeofenceAlertRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.geofenceAlerts[id]
	if !ok {
		return errors.NotFoundf("alert %s", id)
	}
	a.Read = true
	m.geofenceAlerts[id] = a
	return nil
}

func (m *MemoryStore) MarkAllGeofenceAlertsRead(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.ownerGeofenceAlerts(ownerID, true) {
		a.Read = true
		a.EntityDisplayName = ""
		m.geofenceAlerts[a.ID] = a
		n++
	}
	return n, nil
}

func (m *MemoryStore) CountUnreadGeofenceAlerts(_ context.Context, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.ownerGeofenceAlerts(ownerID, true))), nil
}

func (m *MemoryStore) InsertAnomalyAlert(_ context.Context, a *domain.AnomalyAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalyAlerts[a.ID] = *a
	return nil
}

func (m *MemoryStore) GetAnomalyAlert(_ context.Context, id string) (*domain.AnomalyAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.anomalyAlerts[id]
	if !ok {
		return nil, errors.NotFoundf("anomaly alert %s", id)
	}
	a.EntityDisplayName = m.entities[a.EntityID].DisplayName
	return &a, nil
}

func (m *MemoryStore) ListUnacknowledgedAnomalyAlerts(_ context.Context, ownerID string) ([]domain.AnomalyAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AnomalyAlert
	for _, a := range m.anomalyAlerts {
		e := m.entities[a.EntityID]
		if e.OwnerID != ownerID || a.Acknowledged {
			continue
		}
		a.EntityDisplayName = e.DisplayName
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AcknowledgeAnomalyAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.anomalyAlerts[id]
	if !ok {
		return errors.NotFoundf("anomaly alert %s", id)
	}
	a.Acknowledged = true
	m.anomalyAlerts[id] = a
	return nil
}
