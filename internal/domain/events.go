package domain

import "time"

// Event names delivered to subscriber channels.
const (
	EventLocationUpdate = "location-update"
	EventGeofenceBreach = "geofence-breach"
	EventAnomalyAlert   = "ai-anomaly-alert"
)

type LocationUpdateEvent struct {
	EntityID    string    `json:"entity_id"`
	DisplayName string    `json:"display_name"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lng"`
	RecordedAt  time.Time `json:"recorded_at"`
	Online      bool      `json:"online"`
}

type GeofenceBreachEvent struct {
	Type        string    `json:"type"`
	EntityID    string    `json:"entity_id"`
	DisplayName string    `json:"display_name"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lng"`
	ZoneID      string    `json:"zone_id"`
	ZoneLabel   string    `json:"zone_label"`
	Timestamp   time.Time `json:"timestamp"`
}

type AnomalyAlertEvent struct {
	EntityID    string `json:"entity_id"`
	DisplayName string `json:"display_name"`
	Summary     string `json:"summary"`
	AlertID     string `json:"alert_id"`
}
