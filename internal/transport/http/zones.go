package http

import (
	"encoding/json"
	"net/http"
	"time"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/geo"
	"fleet-monitor/locintel/internal/geofence"
)

type createZoneRequest struct {
	EntityID string          `json:"entity_id"`
	Label    string          `json:"label"`
	Polygon  json.RawMessage `json:"polygon"`
}

type updateZoneRequest struct {
	Label   *string         `json:"label"`
	Polygon json.RawMessage `json:"polygon"`
}

// zoneResponse carries the ring as a GeoJSON Polygon, the same shape the
// create and update requests take.
type zoneResponse struct {
	ID          string          `json:"id"`
	EntityID    string          `json:"entity_id"`
	Label       string          `json:"label"`
	Polygon     json.RawMessage `json:"polygon"`
	LastAlertAt *time.Time      `json:"last_alert_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toZoneResponse(z *domain.GeofenceZone) (zoneResponse, error) {
	poly, err := geo.EncodePolygon(z.Ring)
	if err != nil {
		return zoneResponse{}, err
	}
	return zoneResponse{
		ID:          z.ID,
		EntityID:    z.EntityID,
		Label:       z.Label,
		Polygon:     poly,
		LastAlertAt: z.LastAlertAt,
		CreatedAt:   z.CreatedAt,
		UpdatedAt:   z.UpdatedAt,
	}, nil
}

func (s *Server) writeZone(w http.ResponseWriter, r *http.Request, status int, z *domain.GeofenceZone) {
	resp, err := toZoneResponse(z)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req createZoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	if req.EntityID == "" || len(req.Polygon) == 0 {
		writeError(w, s.logger, r, errors.InvalidInputf("entity_id and polygon are required"))
		return
	}
	ring, err := geo.DecodePolygon(req.Polygon)
	if err != nil {
		writeError(w, s.logger, r, errors.InvalidInputf("%v", err))
		return
	}

	zone, err := s.zones.CreateZone(r.Context(), principalFrom(r.Context()).ID, req.EntityID, req.Label, ring)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	s.writeZone(w, r, http.StatusCreated, zone)
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.zones.ListZones(r.Context(), principalFrom(r.Context()).ID, r.PathValue("entityID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	out := make([]zoneResponse, 0, len(zones))
	for i := range zones {
		resp, err := toZoneResponse(&zones[i])
		if err != nil {
			writeError(w, s.logger, r, err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	var req updateZoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	upd := geofence.ZoneUpdate{Label: req.Label}
	if len(req.Polygon) > 0 && string(req.Polygon) != "null" {
		ring, err := geo.DecodePolygon(req.Polygon)
		if err != nil {
			writeError(w, s.logger, r, errors.InvalidInputf("%v", err))
			return
		}
		upd.Ring = ring
	}

	zone, err := s.zones.UpdateZone(r.Context(), principalFrom(r.Context()).ID, r.PathValue("zoneID"), upd)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	s.writeZone(w, r, http.StatusOK, zone)
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := s.zones.DeleteZone(r.Context(), principalFrom(r.Context()).ID, r.PathValue("zoneID")); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
