package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-monitor/locintel/internal/config"
	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
)

// stateTTL bounds how long a silent entity keeps a cached position.
const stateTTL = 24 * time.Hour

// RedisStore caches the last-known position of every entity and resolves API
// keys provisioned by scripts/seed_redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func stateKey(entityID string) string { return fmt.Sprintf("entity:%s:state", entityID) }
func geoKey(ownerID string) string { return fmt.Sprintf("owner:%s:geo", ownerID) }
func apiKeyKey(apiKey string) string { return fmt.Sprintf("auth:key:%s", apiKey) }

func stateFields(s *domain.LiveState) map[string]interface{} {
	return map[string]interface{}{
		"entity_id":   s.EntityID,
		"owner_id":    s.OwnerID,
		"lat":         strconv.FormatFloat(s.Latitude, 'f', -1, 64),
		"lng":         strconv.FormatFloat(s.Longitude, 'f', -1, 64),
		"recorded_at": s.RecordedAt.UnixMilli(),
	}
}

func parseState(fields map[string]string) (*domain.LiveState, error) {
	lat, err := strconv.ParseFloat(fields["lat"], 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse cached lat")
	}
	lng, err := strconv.ParseFloat(fields["lng"], 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse cached lng")
	}
	ms, err := strconv.ParseInt(fields["recorded_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse cached recorded_at")
	}
	return &domain.LiveState{
		EntityID:   fields["entity_id"],
		OwnerID:    fields["owner_id"],
		Latitude:   lat,
		Longitude:  lng,
		RecordedAt: time.UnixMilli(ms).UTC(),
	}, nil
}

// PipelineStateUpdate writes the entity hash and the owner's geo set in one
// round trip. An older sample never overwrites a newer cached one.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, s *domain.LiveState) error {
	if cur, err := r.LastKnown(ctx, s.EntityID); err == nil && cur.RecordedAt.After(s.RecordedAt) {
		return nil
	}

	pipe := r.client.Pipeline()
	key := stateKey(s.EntityID)
	pipe.HSet(ctx, key, stateFields(s))
	pipe.Expire(ctx, key, stateTTL)
	pipe.GeoAdd(ctx, geoKey(s.OwnerID), &redis.GeoLocation{
		Name:      s.EntityID,
		Longitude: s.Longitude,
		Latitude:  s.Latitude,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// LastKnown returns the cached state of entityID, or an ErrNotFound error.
func (r *RedisStore) LastKnown(ctx context.Context, entityID string) (*domain.LiveState, error) {
	fields, err := r.client.HGetAll(ctx, stateKey(entityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.NotFoundf("cached state for entity %s", entityID)
	}
	return parseState(fields)
}

// Nearby lists the owner's entities within radiusMeters of a point, nearest first.
func (r *RedisStore) Nearby(ctx context.Context, ownerID string, lat, lng, radiusMeters float64) ([]string, error) {
	locs, err := r.client.GeoSearch(ctx, geoKey(ownerID), &redis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusMeters,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch failed: %w", err)
	}
	return locs, nil
}

// GetAPIKey returns the principal stored for apiKey, or "" when none is.
func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	val, err := r.client.Get(ctx, apiKeyKey(apiKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}

// SetAPIKey provisions apiKey for principal ("owner:<id>" or "entity:<id>").
func (r *RedisStore) SetAPIKey(ctx context.Context, apiKey, principal string) error {
	return r.client.Set(ctx, apiKeyKey(apiKey), principal, 0).Err()
}
