// Package anomaly screens recent movement for unusual patterns. A cheap local
// pre-filter decides whether a window is worth escalating; only escalated
// windows reach the external judgment service.
package anomaly

import (
	"fmt"
	"time"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/motion"
)

// Finding kinds raised by the pre-filter.
const (
	KindHighSpeed     = "HIGH_SPEED"
	KindNightMovement = "NIGHT_MOVEMENT"
)

type Finding struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Rules configures the pre-filter. Night hours are local to Location and the
// range may wrap midnight (start 23, end 6).
type Rules struct {
	SpeedThresholdKmh float64
	SpeedWindow       time.Duration
	StationaryMeters  float64
	NightStartHour    int
	NightEndHour      int
	Location          *time.Location
}

func DefaultRules() Rules {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		loc = time.FixedZone("TRT", 3*60*60)
	}
	return Rules{
		SpeedThresholdKmh: 60,
		SpeedWindow:       60 * time.Second,
		StationaryMeters:  50,
		NightStartHour:    23,
		NightEndHour:      6,
		Location:          loc,
	}
}

// Assessment is the pre-filter outcome for one window.
type Assessment struct {
	SampleCount       int
	Sufficient        bool
	Stationary        bool
	MaxWindowSpeedKmh float64
	Findings          []Finding
}

// Escalate reports whether any rule fired.
func (a Assessment) Escalate() bool {
	return a.Sufficient && len(a.Findings) > 0
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// IsNight reports whether t falls in the configured night range.
func (r Rules) IsNight(t time.Time) bool {
	h := t.In(r.location()).Hour()
	switch {
	case r.NightStartHour == r.NightEndHour:
		return false
	case r.NightStartHour > r.NightEndHour:
		return h >= r.NightStartHour || h < r.NightEndHour
	default:
		return h >= r.NightStartHour && h < r.NightEndHour
	}
}

// Evaluate runs every rule over samples, which must be ordered by time.
func (r Rules) Evaluate(samples []domain.PositionSample) Assessment {
	a := Assessment{SampleCount: len(samples)}
	if len(samples) < 2 {
		return a
	}
	a.Sufficient = true
	a.Stationary = motion.IsStationary(samples, r.StationaryMeters)
	a.MaxWindowSpeedKmh = motion.MaxWindowedSpeedKmh(samples, r.SpeedWindow)

	if a.MaxWindowSpeedKmh > r.SpeedThresholdKmh {
		msg := fmt.Sprintf("High average speed: %.1f km/h (%ds window)",
			a.MaxWindowSpeedKmh, int(r.SpeedWindow.Seconds()))
		a.Findings = append(a.Findings, Finding{Kind: KindHighSpeed, Message: msg})
	}

	// A stationary entity at night is GPS drift, not movement.
	last := samples[len(samples)-1].RecordedAt
	if r.IsNight(last) && !a.Stationary {
		a.Findings = append(a.Findings, Finding{
			Kind:    KindNightMovement,
			Message: "Movement during night hours: " + last.In(r.location()).Format("15:04:05"),
		})
	}
	return a
}
