package http

import (
	"net/http"
	"time"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
)

const (
	defaultNearbyRadius = 1000.0
	maxNearbyRadius     = 50000.0
)

var errLiveCacheDisabled = errors.Mark(errors.New("live cache is disabled"), errors.ErrUpstreamUnavailable)

type ingestRequest struct {
	Latitude   *float64   `json:"lat"`
	Longitude  *float64   `json:"lng"`
	RecordedAt *time.Time `json:"recorded_at"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, s.logger, r, errors.InvalidInputf("lat and lng are required"))
		return
	}

	sample, err := s.ingest.Ingest(r.Context(), principalFrom(r.Context()).ID, *req.Latitude, *req.Longitude, req.RecordedAt)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

type lastLocationResponse struct {
	EntityID    string    `json:"entity_id"`
	DisplayName string    `json:"display_name"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lng"`
	RecordedAt  time.Time `json:"recorded_at"`
	Online      bool      `json:"online"`
	Source      string    `json:"source"`
}

func (s *Server) handleLastLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity, err := s.zones.AuthorizeEntity(ctx, principalFrom(ctx).ID, r.PathValue("entityID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	resp := lastLocationResponse{EntityID: entity.ID, DisplayName: entity.DisplayName}
	if state, ok := s.cachedState(r, entity.ID); ok {
		resp.Latitude, resp.Longitude, resp.RecordedAt = state.Latitude, state.Longitude, state.RecordedAt
		resp.Source = "cache"
	} else {
		p, err := s.store.LatestPosition(ctx, entity.ID)
		if err != nil {
			writeError(w, s.logger, r, err)
			return
		}
		resp.Latitude, resp.Longitude, resp.RecordedAt = p.Latitude, p.Longitude, p.RecordedAt
		resp.Source = "store"
	}
	resp.Online = s.now().Sub(resp.RecordedAt) <= domain.OnlineWindow
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cachedState(r *http.Request, entityID string) (*domain.LiveState, bool) {
	if s.live == nil {
		return nil, false
	}
	state, err := s.live.LastKnown(r.Context(), entityID)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.logger.Warnw("Live cache read failed, using store", "entity_id", entityID, "error", err)
		}
		return nil, false
	}
	return state, true
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entities, err := s.store.ListEntitiesByOwner(ctx, principalFrom(ctx).ID)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	latest, err := s.store.LatestPositions(ctx, ids)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	now := s.now()
	out := make([]domain.MapEntry, 0, len(entities))
	for _, e := range entities {
		entry := domain.MapEntry{EntityID: e.ID, DisplayName: e.DisplayName}
		if p, ok := latest[e.ID]; ok {
			lat, lng, at := p.Latitude, p.Longitude, p.RecordedAt
			entry.Latitude, entry.Longitude, entry.RecordedAt = &lat, &lng, &at
			entry.Online = now.Sub(at) <= domain.OnlineWindow
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

type nearbyEntry struct {
	EntityID    string `json:"entity_id"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.live == nil {
		writeError(w, s.logger, r, errLiveCacheDisabled)
		return
	}

	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	radius := defaultNearbyRadius
	if r.URL.Query().Has("radius_m") {
		if radius, err = queryFloat(r, "radius_m"); err != nil {
			writeError(w, s.logger, r, err)
			return
		}
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 || radius <= 0 || radius > maxNearbyRadius {
		writeError(w, s.logger, r, errors.InvalidInputf("lat, lng or radius_m out of range"))
		return
	}

	ownerID := principalFrom(ctx).ID
	ids, err := s.live.Nearby(ctx, ownerID, lat, lng, radius)
	if err != nil {
		writeError(w, s.logger, r, errors.Upstream(err, "nearby search"))
		return
	}
	entities, err := s.store.ListEntitiesByOwner(ctx, ownerID)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.DisplayName
	}

	out := make([]nearbyEntry, 0, len(ids))
	for _, id := range ids {
		// The GEO set can briefly hold entities that were reassigned.
		name, ok := names[id]
		if !ok {
			continue
		}
		out = append(out, nearbyEntry{EntityID: id, DisplayName: name})
	}
	writeJSON(w, http.StatusOK, out)
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handlePushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	if req.Token == "" {
		writeError(w, s.logger, r, errors.InvalidInputf("token is required"))
		return
	}
	if err := s.store.UpdatePushToken(r.Context(), principalFrom(r.Context()).ID, req.Token); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
