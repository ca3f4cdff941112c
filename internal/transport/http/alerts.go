package http

import (
	"net/http"
	"strconv"

	"fleet-monitor/locintel/internal/domain"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	alerts, err := s.zones.ListAlerts(r.Context(), principalFrom(r.Context()).ID, unreadOnly)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.GeofenceAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.zones.UnreadCount(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.zones.MarkRead(r.Context(), principalFrom(r.Context()).ID, r.PathValue("alertID")); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.zones.MarkAllRead(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleAnomalyCheck(w http.ResponseWriter, r *http.Request) {
	v, err := s.anomaly.CheckForOwner(r.Context(), principalFrom(r.Context()).ID, r.PathValue("entityID"))
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleListAnomalyAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.anomaly.ListAlerts(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	if alerts == nil {
		alerts = []domain.AnomalyAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAcknowledgeAnomaly(w http.ResponseWriter, r *http.Request) {
	if err := s.anomaly.Acknowledge(r.Context(), principalFrom(r.Context()).ID, r.PathValue("alertID")); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
