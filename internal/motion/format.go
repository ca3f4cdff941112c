package motion

import (
	"fmt"
	"strings"
	"time"

	"fleet-monitor/locintel/internal/domain"
)

// FormatTable renders samples as a pipe-separated table for the judgment
// service. Times are shown in loc; speed is instantaneous and 0 under the
// noise floor.
func FormatTable(samples []domain.PositionSample, loc *time.Location) string {
	if len(samples) == 0 {
		return "No position data."
	}
	if loc == nil {
		loc = time.UTC
	}

	var sb strings.Builder
	sb.WriteString("Time | Lat | Lng | Speed(km/h) | Distance(m)\n")
	sb.WriteString("-----|-----|-----|-------------|------------\n")

	for i, s := range samples {
		var speed, dist float64
		if i > 0 {
			dist = Distance(samples[i-1], s)
			speed = InstantaneousSpeedKmh(samples[i-1], s)
		}
		fmt.Fprintf(&sb, "%s | %.6f | %.6f | %.1f | %.0f\n",
			s.RecordedAt.In(loc).Format("2006-01-02 15:04:05"),
			s.Latitude, s.Longitude, speed, dist)
	}
	return sb.String()
}
