// Package http is the REST and live-stream surface of the engine.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/anomaly"
	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/geofence"
	"fleet-monitor/locintel/internal/hub"
)

type Ingester interface {
	Ingest(ctx context.Context, entityID string, lat, lng float64, recordedAt *time.Time) (*domain.PositionSample, error)
}

type ZoneService interface {
	AuthorizeEntity(ctx context.Context, ownerID, entityID string) (*domain.TrackedEntity, error)
	CreateZone(ctx context.Context, ownerID, entityID, label string, ring orb.Ring) (*domain.GeofenceZone, error)
	ListZones(ctx context.Context, ownerID, entityID string) ([]domain.GeofenceZone, error)
	UpdateZone(ctx context.Context, ownerID, zoneID string, upd geofence.ZoneUpdate) (*domain.GeofenceZone, error)
	DeleteZone(ctx context.Context, ownerID, zoneID string) error

	ListAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]domain.GeofenceAlert, error)
	MarkRead(ctx context.Context, ownerID, alertID string) error
	MarkAllRead(ctx context.Context, ownerID string) (int64, error)
	UnreadCount(ctx context.Context, ownerID string) (int64, error)
}

type AnomalyService interface {
	CheckForOwner(ctx context.Context, ownerID, entityID string) (*anomaly.Verdict, error)
	ListAlerts(ctx context.Context, ownerID string) ([]domain.AnomalyAlert, error)
	Acknowledge(ctx context.Context, ownerID, alertID string) error
}

// Subscriptions attaches live channels for an owner.
type Subscriptions interface {
	Subscribe(ownerID string) *hub.Channel
	Unsubscribe(ch *hub.Channel)
}

// Store is the read side used by location queries and the health check.
type Store interface {
	UpdatePushToken(ctx context.Context, ownerID, token string) error
	ListEntitiesByOwner(ctx context.Context, ownerID string) ([]domain.TrackedEntity, error)
	LatestPosition(ctx context.Context, entityID string) (*domain.PositionSample, error)
	LatestPositions(ctx context.Context, entityIDs []string) (map[string]domain.PositionSample, error)
	Ping(ctx context.Context) error
}

// LiveCache is the Redis live-state view. It is optional.
type LiveCache interface {
	LastKnown(ctx context.Context, entityID string) (*domain.LiveState, error)
	Nearby(ctx context.Context, ownerID string, lat, lng, radiusMeters float64) ([]string, error)
}

type Deps struct {
	Auth    Resolver
	Ingest  Ingester
	Zones   ZoneService
	Anomaly AnomalyService
	Hub     Subscriptions
	Store   Store
	Live    LiveCache // nil when Redis is disabled
	Logger  *zap.SugaredLogger
	Clock   func() time.Time
}

type Server struct {
	auth    *AuthMiddleware
	ingest  Ingester
	zones   ZoneService
	anomaly AnomalyService
	hub     Subscriptions
	store   Store
	live    LiveCache
	now     func() time.Time
	logger  *zap.SugaredLogger
}

func NewServer(d Deps) *Server {
	now := d.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Server{
		auth:    NewAuthMiddleware(d.Auth),
		ingest:  d.Ingest,
		zones:   d.Zones,
		anomaly: d.Anomaly,
		hub:     d.Hub,
		store:   d.Store,
		live:    d.Live,
		now:     now,
		logger:  d.Logger.Named("http"),
	}
}

// Routes builds the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/positions", s.auth.Entity(s.handleIngest))

	mux.Handle("GET /v1/live", s.auth.Owner(s.handleSSE))
	mux.Handle("GET /v1/live/ws", s.auth.Owner(s.handleWebSocket))

	mux.Handle("POST /v1/zones", s.auth.Owner(s.handleCreateZone))
	mux.Handle("GET /v1/entities/{entityID}/zones", s.auth.Owner(s.handleListZones))
	mux.Handle("PUT /v1/zones/{zoneID}", s.auth.Owner(s.handleUpdateZone))
	mux.Handle("DELETE /v1/zones/{zoneID}", s.auth.Owner(s.handleDeleteZone))

	mux.Handle("GET /v1/alerts", s.auth.Owner(s.handleListAlerts))
	mux.Handle("GET /v1/alerts/unread-count", s.auth.Owner(s.handleUnreadCount))
	mux.Handle("PUT /v1/alerts/{alertID}/read", s.auth.Owner(s.handleMarkRead))
	mux.Handle("PUT /v1/alerts/read-all", s.auth.Owner(s.handleMarkAllRead))

	mux.Handle("GET /v1/entities/{entityID}/last-location", s.auth.Owner(s.handleLastLocation))
	mux.Handle("GET /v1/map", s.auth.Owner(s.handleMap))
	mux.Handle("GET /v1/nearby", s.auth.Owner(s.handleNearby))
	mux.Handle("PUT /v1/push-token", s.auth.Owner(s.handlePushToken))

	mux.Handle("POST /v1/entities/{entityID}/anomaly-check", s.auth.Owner(s.handleAnomalyCheck))
	mux.Handle("GET /v1/anomaly-alerts", s.auth.Owner(s.handleListAnomalyAlerts))
	mux.Handle("PUT /v1/anomaly-alerts/{alertID}/acknowledge", s.auth.Owner(s.handleAcknowledgeAnomaly))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warnw("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
