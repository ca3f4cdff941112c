package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// GeofenceZone is a polygon belonging to one tracked entity. Ring vertices are
// (lng, lat) and the ring is stored closed.
type GeofenceZone struct {
	ID          string     `json:"id"`
	EntityID    string     `json:"entity_id"`
	Label       string     `json:"label"`
	Ring        orb.Ring   `json:"ring"`
	Active      bool       `json:"active"`
	LastAlertAt *time.Time `json:"last_alert_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CooldownElapsed reports whether a new alert may be raised for the zone at now.
func (z *GeofenceZone) CooldownElapsed(now time.Time, cooldown time.Duration) bool {
	if z.LastAlertAt == nil {
		return true
	}
	return now.Sub(*z.LastAlertAt) >= cooldown
}

// GeofenceAlert records one breach. ZoneLabel is a snapshot taken at breach
// time so history survives renames and soft deletes.
type GeofenceAlert struct {
	ID                string    `json:"id"`
	EntityID          string    `json:"entity_id"`
	EntityDisplayName string    `json:"entity_display_name,omitempty"`
	ZoneID            string    `json:"zone_id"`
	ZoneLabel         string    `json:"zone_label"`
	Latitude          float64   `json:"lat"`
	Longitude         float64   `json:"lng"`
	CreatedAt         time.Time `json:"created_at"`
	Read              bool      `json:"read"`
}

// AnomalyAlert records one escalated anomaly verdict.
type AnomalyAlert struct {
	ID                string    `json:"id"`
	EntityID          string    `json:"entity_id"`
	EntityDisplayName string    `json:"entity_display_name,omitempty"`
	Summary           string    `json:"summary"`
	RawResult         string    `json:"raw_result"`
	Acknowledged      bool      `json:"acknowledged"`
	CreatedAt         time.Time `json:"created_at"`
}
