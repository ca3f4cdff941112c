package anomaly

import (
	"fmt"
	"strings"
	"time"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/motion"
)

const systemPrompt = `You are the anomaly detection module of a personal safety tracking system.
Analyse the position data you are given and report only REAL unusual situations.

GPS ACCURACY:
- Mobile GPS accuracy is typically 5-50 metres.
- Position jumps under 100 metres are GPS noise, not real movement.
- A stationary device still reports slightly changing positions; this is normal.
- Instantaneous speeds of 8-15 km/h at a fixed location come from GPS error; do not alert on them.

FLAG ONLY:
- HIGH_SPEED: average speed over a 60 second window above the threshold (real vehicle movement)
- NIGHT_MOVEMENT: between 23:00 and 06:00 AND the person has really moved (more than 150 m)
- UNKNOWN_AREA: significant travel into a completely unfamiliar area

DO NOT FLAG:
- SUDDEN_DIRECTION_CHANGE: GPS noise makes it unreliable, never use this type
- NIGHT_MOVEMENT for a stationary person
- Position jumps under 100 metres

Reply ONLY with JSON in this format:
{
  "anomalyDetected": true/false,
  "anomalies": [
    {
      "type": "HIGH_SPEED | NIGHT_MOVEMENT | UNKNOWN_AREA",
      "description": "Description",
      "severity": "LOW | MEDIUM | HIGH | CRITICAL",
      "lat": 0.0,
      "lng": 0.0
    }
  ],
  "summary": "Overall assessment"
}`

// buildContext is the user message sent alongside systemPrompt.
func buildContext(entity *domain.TrackedEntity, a Assessment, samples []domain.PositionSample, loc *time.Location) string {
	msgs := make([]string, 0, len(a.Findings))
	for _, f := range a.Findings {
		msgs = append(msgs, f.Message)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Tracked entity: %s\n", entity.DisplayName)
	if a.Stationary {
		sb.WriteString("NOTE: The entity is stationary (GPS drift, no real movement).\n")
	}
	fmt.Fprintf(&sb, "Local pre-filter findings: %s\n\n", strings.Join(msgs, "; "))
	sb.WriteString("=== Recent position data ===\n")
	sb.WriteString(motion.FormatTable(samples, loc))
	sb.WriteString("\nAnalyse this data and identify anomalies.\n")
	return sb.String()
}
