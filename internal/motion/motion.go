// Package motion holds stateless analytics over position samples ordered by
// ascending timestamp.
package motion

import (
	"math"
	"time"

	"fleet-monitor/locintel/internal/domain"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0

	// SpeedNoiseFloor is the shortest interval that yields a speed. Shorter
	// intervals are dominated by receiver jitter.
	SpeedNoiseFloor = 10 * time.Second

	// MinReliableSpan is the shortest window span a windowed average trusts.
	MinReliableSpan = 30 * time.Second
)

// DistanceMeters is the great-circle distance between two coordinates.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLng*sinLng
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters between two samples.
func Distance(a, b domain.PositionSample) float64 {
	return DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// InstantaneousSpeedKmh is the speed between two consecutive samples. It is 0
// when the samples are closer than SpeedNoiseFloor in time.
func InstantaneousSpeedKmh(a, b domain.PositionSample) float64 {
	elapsed := b.RecordedAt.Sub(a.RecordedAt)
	if elapsed < SpeedNoiseFloor {
		return 0
	}
	return (Distance(a, b) / 1000.0) / elapsed.Hours()
}

// WindowedAverageSpeedKmh walks back from endIndex collecting samples no older
// than window before the end sample and returns path distance over elapsed
// time. It returns 0 when the collected span is shorter than MinReliableSpan.
func WindowedAverageSpeedKmh(samples []domain.PositionSample, endIndex int, window time.Duration) float64 {
	if endIndex <= 0 || endIndex >= len(samples) {
		return 0
	}

	end := samples[endIndex]
	windowStart := end.RecordedAt.Add(-window)

	startIndex := endIndex
	for i := endIndex - 1; i >= 0; i-- {
		if samples[i].RecordedAt.Before(windowStart) {
			break
		}
		startIndex = i
	}
	if startIndex == endIndex {
		return 0
	}

	span := end.RecordedAt.Sub(samples[startIndex].RecordedAt)
	if span < MinReliableSpan {
		return 0
	}

	var meters float64
	for i := startIndex + 1; i <= endIndex; i++ {
		meters += Distance(samples[i-1], samples[i])
	}
	return (meters / 1000.0) / span.Hours()
}

// MaxWindowedSpeedKmh is the largest WindowedAverageSpeedKmh over every index.
func MaxWindowedSpeedKmh(samples []domain.PositionSample, window time.Duration) float64 {
	var max float64
	for i := 1; i < len(samples); i++ {
		if s := WindowedAverageSpeedKmh(samples, i, window); s > max {
			max = s
		}
	}
	return max
}

// TotalDistanceKm sums consecutive pairwise distances.
func TotalDistanceKm(samples []domain.PositionSample) float64 {
	var meters float64
	for i := 1; i < len(samples); i++ {
		meters += Distance(samples[i-1], samples[i])
	}
	return meters / 1000.0
}

// IsStationary reports whether every sample lies closer than thresholdMeters
// to the centroid of all samples. Fewer than two samples count as stationary.
func IsStationary(samples []domain.PositionSample, thresholdMeters float64) bool {
	if len(samples) < 2 {
		return true
	}

	var sumLat, sumLng float64
	for _, s := range samples {
		sumLat += s.Latitude
		sumLng += s.Longitude
	}
	n := float64(len(samples))
	cLat, cLng := sumLat/n, sumLng/n

	for _, s := range samples {
		if DistanceMeters(cLat, cLng, s.Latitude, s.Longitude) >= thresholdMeters {
			return false
		}
	}
	return true
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
