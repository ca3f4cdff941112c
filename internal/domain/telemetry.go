package domain

import "time"

// PositionSample is one position report for a tracked entity. Samples are
// immutable once stored.
type PositionSample struct {
	ID        string  `json:"id"`
	EntityID  string  `json:"entity_id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`

	// RecordedAt is the device timestamp, or server time when the device sent none.
	RecordedAt time.Time `json:"recorded_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// Owner receives broadcasts and alerts for its tracked entities.
type Owner struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	PushToken      string    `json:"-"`
	AnomalyEnabled bool      `json:"anomaly_enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

// TrackedEntity belongs to exactly one owner. The owner is referenced by id
// only; lookups in the other direction go through the store.
type TrackedEntity struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// LiveState is the last-known position cached for fast reads.
type LiveState struct {
	EntityID   string    `json:"entity_id"`
	OwnerID    string    `json:"owner_id"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MapEntry is one row of an owner's map view.
type MapEntry struct {
	EntityID    string     `json:"entity_id"`
	DisplayName string     `json:"display_name"`
	Latitude    *float64   `json:"lat"`
	Longitude   *float64   `json:"lng"`
	RecordedAt  *time.Time `json:"recorded_at"`
	Online      bool       `json:"online"`
}

// OnlineWindow is how recent the last sample must be for an entity to count as online.
const OnlineWindow = 5 * time.Minute
