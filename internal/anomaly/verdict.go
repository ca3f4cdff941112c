package anomaly

import (
	"encoding/json"
	"strings"
)

// Anomaly is one finding reported by the judgment service.
type Anomaly struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
}

// Verdict is the result of one anomaly check. Structured is false when the
// service's reply could not be parsed; Summary then holds the raw reply.
type Verdict struct {
	EntityID        string    `json:"entity_id"`
	AnomalyDetected bool      `json:"anomaly_detected"`
	Anomalies       []Anomaly `json:"anomalies"`
	Summary         string    `json:"summary"`
	Findings        []Finding `json:"local_findings,omitempty"`
	Structured      bool      `json:"structured"`
	AlertID         string    `json:"alert_id,omitempty"`
}

// ExtractJSON returns the slice from the first '{' to the last '}'.
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

type judgeReply struct {
	AnomalyDetected bool      `json:"anomalyDetected"`
	Anomalies       []Anomaly `json:"anomalies"`
	Summary         string    `json:"summary"`
}

// ParseVerdict extracts and strictly decodes the service's reply. When either
// step fails the verdict is unstructured and carries raw as its summary.
func ParseVerdict(entityID, raw string) Verdict {
	v := Verdict{EntityID: entityID, Anomalies: []Anomaly{}}

	slice, ok := ExtractJSON(raw)
	if !ok {
		v.Summary = strings.TrimSpace(raw)
		return v
	}

	var reply judgeReply
	if err := json.Unmarshal([]byte(slice), &reply); err != nil {
		v.Summary = strings.TrimSpace(raw)
		return v
	}

	v.Structured = true
	v.AnomalyDetected = reply.AnomalyDetected
	v.Summary = reply.Summary
	if reply.Anomalies != nil {
		v.Anomalies = reply.Anomalies
	}
	return v
}
