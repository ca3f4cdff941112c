package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-monitor/locintel/internal/config"
	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/geo"
)

// TimescaleStore persists owners, entities, samples, zones and alerts in
// PostgreSQL. position_samples is a TimescaleDB hypertable when the
// extension is available (see scripts/init_db).
type TimescaleStore struct {
	pool *pgxpool.Pool
}

func NewTimescaleStore(ctx context.Context, cfg *config.Config) (*TimescaleStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &TimescaleStore{pool: pool}, nil
}

func (s *TimescaleStore) Close() {
	s.pool.Close()
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.NotFoundf(format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

// ── owners and entities ─────────────────────────────────────

func (s *TimescaleStore) CreateOwner(ctx context.Context, o *domain.Owner) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO owners (id, display_name, push_token, anomaly_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name, anomaly_enabled = EXCLUDED.anomaly_enabled
	`, o.ID, o.DisplayName, o.PushToken, o.AnomalyEnabled, o.CreatedAt)
	return errors.Wrap(err, "insert owner")
}

func (s *TimescaleStore) GetOwner(ctx context.Context, id string) (*domain.Owner, error) {
	var o domain.Owner
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, push_token, anomaly_enabled, created_at
		FROM owners WHERE id = $1
	`, id).Scan(&o.ID, &o.DisplayName, &o.PushToken, &o.AnomalyEnabled, &o.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "owner %s", id)
	}
	return &o, nil
}

func (s *TimescaleStore) UpdatePushToken(ctx context.Context, ownerID, token string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE owners SET push_token = $2 WHERE id = $1`, ownerID, token)
	if err != nil {
		return errors.Wrap(err, "update push token")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("owner %s", ownerID)
	}
	return nil
}

func (s *TimescaleStore) CreateEntity(ctx context.Context, e *domain.TrackedEntity) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_entities (id, owner_id, display_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
	`, e.ID, e.OwnerID, e.DisplayName, e.CreatedAt)
	return errors.Wrap(err, "insert entity")
}

func (s *TimescaleStore) GetEntity(ctx context.Context, id string) (*domain.TrackedEntity, error) {
	var e domain.TrackedEntity
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, display_name, created_at
		FROM tracked_entities WHERE id = $1
	`, id).Scan(&e.ID, &e.OwnerID, &e.DisplayName, &e.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "entity %s", id)
	}
	return &e, nil
}

func (s *TimescaleStore) ListEntitiesByOwner(ctx context.Context, ownerID string) ([]domain.TrackedEntity, error) {
	return s.queryEntities(ctx, `
		SELECT id, owner_id, display_name, created_at
		FROM tracked_entities WHERE owner_id = $1
		ORDER BY created_at, id
	`, ownerID)
}

func (s *TimescaleStore) ListAnomalyEnabledEntities(ctx context.Context) ([]domain.TrackedEntity, error) {
	return s.queryEntities(ctx, `
		SELECT e.id, e.owner_id, e.display_name, e.created_at
		FROM tracked_entities e
		JOIN owners o ON o.id = e.owner_id
		WHERE o.anomaly_enabled
		ORDER BY e.owner_id, e.created_at, e.id
	`)
}

func (s *TimescaleStore) queryEntities(ctx context.Context, query string, args ...interface{}) ([]domain.TrackedEntity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query entities")
	}
	defer rows.Close()

	var out []domain.TrackedEntity
	for rows.Next() {
		var e domain.TrackedEntity
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.DisplayName, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan entity")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate entities")
}

// ── position samples ────────────────────────────────────────

func (s *TimescaleStore) InsertPosition(ctx context.Context, p *domain.PositionSample) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO position_samples (id, entity_id, latitude, longitude, recorded_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.EntityID, p.Latitude, p.Longitude, p.RecordedAt, p.ReceivedAt)
	return errors.Wrap(err, "insert position")
}

func (s *TimescaleStore) PositionsSince(ctx context.Context, entityID string, since time.Time) ([]domain.PositionSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, latitude, longitude, recorded_at, received_at
		FROM position_samples
		WHERE entity_id = $1 AND recorded_at > $2
		ORDER BY recorded_at ASC
	`, entityID, since)
	if err != nil {
		return nil, errors.Wrap(err, "query positions")
	}
	defer rows.Close()

	var out []domain.PositionSample
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate positions")
}

func (s *TimescaleStore) LatestPosition(ctx context.Context, entityID string) (*domain.PositionSample, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, entity_id, latitude, longitude, recorded_at, received_at
		FROM position_samples
		WHERE entity_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, entityID)
	p, err := scanPosition(row)
	if err != nil {
		return nil, notFoundOr(err, "position for entity %s", entityID)
	}
	return &p, nil
}

func (s *TimescaleStore) LatestPositions(ctx context.Context, entityIDs []string) (map[string]domain.PositionSample, error) {
	out := make(map[string]domain.PositionSample, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (entity_id) id, entity_id, latitude, longitude, recorded_at, received_at
		FROM position_samples
		WHERE entity_id = ANY($1)
		ORDER BY entity_id, recorded_at DESC
	`, entityIDs)
	if err != nil {
		return nil, errors.Wrap(err, "query latest positions")
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out[p.EntityID] = p
	}
	return out, errors.Wrap(rows.Err(), "iterate latest positions")
}

func scanPosition(row pgx.Row) (domain.PositionSample, error) {
	var p domain.PositionSample
	err := row.Scan(&p.ID, &p.EntityID, &p.Latitude, &p.Longitude, &p.RecordedAt, &p.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, errors.Wrap(err, "scan position")
	}
	return p, nil
}

// ── geofence zones ──────────────────────────────────────────

const zoneColumns = `id, entity_id, label, geojson, active, last_alert_at, created_at, updated_at`

func (s *TimescaleStore) CreateZone(ctx context.Context, z *domain.GeofenceZone) error {
	geojson, err := geo.EncodePolygon(z.Ring)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO geofence_zones (id, entity_id, label, geojson, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, z.ID, z.EntityID, z.Label, string(geojson), z.Active, z.CreatedAt, z.UpdatedAt)
	return errors.Wrap(err, "insert zone")
}

func (s *TimescaleStore) GetZone(ctx context.Context, id string) (*domain.GeofenceZone, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM geofence_zones WHERE id = $1`, id)
	z, err := scanZone(row)
	if err != nil {
		return nil, notFoundOr(err, "zone %s", id)
	}
	return z, nil
}

// ListActiveZones returns active zones in creation order.
func (s *TimescaleStore) ListActiveZones(ctx context.Context, entityID string) ([]domain.GeofenceZone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+zoneColumns+`
		FROM geofence_zones
		WHERE entity_id = $1 AND active
		ORDER BY seq
	`, entityID)
	if err != nil {
		return nil, errors.Wrap(err, "query zones")
	}
	defer rows.Close()

	var out []domain.GeofenceZone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *z)
	}
	return out, errors.Wrap(rows.Err(), "iterate zones")
}

func (s *TimescaleStore) UpdateZone(ctx context.Context, z *domain.GeofenceZone) error {
	geojson, err := geo.EncodePolygon(z.Ring)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE geofence_zones
		SET label = $2, geojson = $3, active = $4, updated_at = $5
		WHERE id = $1
	`, z.ID, z.Label, string(geojson), z.Active, z.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update zone")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("zone %s", z.ID)
	}
	return nil
}

// SetZoneLastAlert stamps the zone's last alert time. The stored value never
// moves backwards.
func (s *TimescaleStore) SetZoneLastAlert(ctx context.Context, zoneID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE geofence_zones
		SET last_alert_at = GREATEST(COALESCE(last_alert_at, $2), $2)
		WHERE id = $1
	`, zoneID, at)
	if err != nil {
		return errors.Wrap(err, "set zone last alert")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("zone %s", zoneID)
	}
	return nil
}

func scanZone(row pgx.Row) (*domain.GeofenceZone, error) {
	var (
		z       domain.GeofenceZone
		geojson string
	)
	err := row.Scan(&z.ID, &z.EntityID, &z.Label, &geojson, &z.Active, &z.LastAlertAt, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan zone")
	}
	ring, err := geo.DecodePolygon([]byte(geojson))
	if err != nil {
		return nil, errors.Wrapf(err, "zone %s geometry", z.ID)
	}
	z.Ring = ring
	return &z, nil
}

// ── geofence alerts ─────────────────────────────────────────

func (s *TimescaleStore) InsertGeofenceAlert(ctx context.Context, a *domain.GeofenceAlert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geofence_alerts (id, entity_id, zone_id, zone_label, latitude, longitude, created_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.EntityID, a.ZoneID, a.ZoneLabel, a.Latitude, a.Longitude, a.CreatedAt, a.Read)
	return errors.Wrap(err, "insert geofence alert")
}

const geofenceAlertSelect = `
	SELECT a.id, a.entity_id, e.display_name, a.zone_id, a.zone_label,
	       a.latitude, a.longitude, a.created_at, a.read
	FROM geofence_alerts a
	JOIN tracked_entities e ON e.id = a.entity_id
`

func (s *TimescaleStore) GetGeofenceAlert(ctx context.Context, id string) (*domain.GeofenceAlert, error) {
	row := s.pool.QueryRow(ctx, geofenceAlertSelect+` WHERE a.id = $1`, id)
	a, err := scanGeofenceAlert(row)
	if err != nil {
		return nil, notFoundOr(err, "alert %s", id)
	}
	return &a, nil
}

func (s *TimescaleStore) ListGeofenceAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]domain.GeofenceAlert, error) {
	rows, err := s.pool.Query(ctx, geofenceAlertSelect+`
		WHERE e.owner_id = $1 AND (NOT $2 OR NOT a.read)
		ORDER BY a.created_at DESC
	`, ownerID, unreadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "query geofence alerts")
	}
	defer rows.Close()

	var out []domain.GeofenceAlert
	for rows.Next() {
		a, err := scanGeofenceAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate geofence alerts")
}

func (s *TimescaleStore) MarkGeofenceAlertRead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE geofence_alerts SET read = true WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "mark alert read")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("alert %s", id)
	}
	return nil
}

func (s *TimescaleStore) MarkAllGeofenceAlertsRead(ctx context.Context, ownerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE geofence_alerts a
		SET read = true
		FROM tracked_entities e
		WHERE e.id = a.entity_id AND e.owner_id = $1 AND NOT a.read
	`, ownerID)
	if err != nil {
		return 0, errors.Wrap(err, "mark all alerts read")
	}
	return tag.RowsAffected(), nil
}

func (s *TimescaleStore) CountUnreadGeofenceAlerts(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM geofence_alerts a
		JOIN tracked_entities e ON e.id = a.entity_id
		WHERE e.owner_id = $1 AND NOT a.read
	`, ownerID).Scan(&n)
	return n, errors.Wrap(err, "count unread alerts")
}

func scanGeofenceAlert(row pgx.Row) (domain.GeofenceAlert, error) {
	var a domain.GeofenceAlert
	err := row.Scan(&a.ID, &a.EntityID, &a.EntityDisplayName, &a.ZoneID, &a.ZoneLabel,
		&a.Latitude, &a.Longitude, &a.CreatedAt, &a.Read)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return a, errors.Wrap(err, "scan geofence alert")
	}
	return a, err
}

// ── anomaly alerts ──────────────────────────────────────────

func (s *TimescaleStore) InsertAnomalyAlert(ctx context.Context, a *domain.AnomalyAlert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO anomaly_alerts (id, entity_id, summary, raw_result, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.EntityID, a.Summary, a.RawResult, a.Acknowledged, a.CreatedAt)
	return errors.Wrap(err, "insert anomaly alert")
}

const anomalyAlertSelect = `
	SELECT a.id, a.entity_id, e.display_name, a.summary, a.raw_result, a.acknowledged, a.created_at
	FROM anomaly_alerts a
	JOIN tracked_entities e ON e.id = a.entity_id
`

func (s *TimescaleStore) GetAnomalyAlert(ctx context.Context, id string) (*domain.AnomalyAlert, error) {
	row := s.pool.QueryRow(ctx, anomalyAlertSelect+` WHERE a.id = $1`, id)
	a, err := scanAnomalyAlert(row)
	if err != nil {
		return nil, notFoundOr(err, "anomaly alert %s", id)
	}
	return &a, nil
}

func (s *TimescaleStore) ListUnacknowledgedAnomalyAlerts(ctx context.Context, ownerID string) ([]domain.AnomalyAlert, error) {
	rows, err := s.pool.Query(ctx, anomalyAlertSelect+`
		WHERE e.owner_id = $1 AND NOT a.acknowledged
		ORDER BY a.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "query anomaly alerts")
	}
	defer rows.Close()

	var out []domain.AnomalyAlert
	for rows.Next() {
		a, err := scanAnomalyAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate anomaly alerts")
}

func (s *TimescaleStore) AcknowledgeAnomalyAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE anomaly_alerts SET acknowledged = true WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "acknowledge anomaly alert")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("anomaly alert %s", id)
	}
	return nil
}

func scanAnomalyAlert(row pgx.Row) (domain.AnomalyAlert, error) {
	var a domain.AnomalyAlert
	err := row.Scan(&a.ID, &a.EntityID, &a.EntityDisplayName, &a.Summary, &a.RawResult, &a.Acknowledged, &a.CreatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return a, errors.Wrap(err, "scan anomaly alert")
	}
	return a, err
}
