package motion

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fleet-monitor/locintel/internal/domain"
)

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func at(lat, lng float64, seconds int) domain.PositionSample {
	return domain.PositionSample{
		EntityID:   "e1",
		Latitude:   lat,
		Longitude:  lng,
		RecordedAt: base.Add(time.Duration(seconds) * time.Second),
	}
}

func TestDistanceMeters(t *testing.T) {
	points := [][2]float64{
		{41.0082, 28.9784},
		{39.9334, 32.8597},
		{-33.8688, 151.2093},
		{0, 0},
		{89.9, -179.9},
	}
	for _, a := range points {
		assert.Equal(t, 0.0, DistanceMeters(a[0], a[1], a[0], a[1]))
		for _, b := range points {
			assert.Equal(t, DistanceMeters(a[0], a[1], b[0], b[1]), DistanceMeters(b[0], b[1], a[0], a[1]))
		}
	}

	// One degree of latitude on the mean sphere.
	assert.InDelta(t, 111194.93, DistanceMeters(0, 0, 1, 0), 0.5)
	// Istanbul to Ankara is roughly 350 km.
	assert.InDelta(t, 350000, DistanceMeters(41.0082, 28.9784, 39.9334, 32.8597), 5000)
}

func TestInstantaneousSpeedKmh(t *testing.T) {
	t.Run("below noise floor", func(t *testing.T) {
		assert.Equal(t, 0.0, InstantaneousSpeedKmh(at(0, 0, 0), at(1, 0, 5)))
		assert.Equal(t, 0.0, InstantaneousSpeedKmh(at(0, 0, 0), at(0.5, 0, 9)))
	})

	t.Run("out of order", func(t *testing.T) {
		assert.Equal(t, 0.0, InstantaneousSpeedKmh(at(0, 0, 60), at(0.01, 0, 0)))
	})

	t.Run("normal interval", func(t *testing.T) {
		// 0.001 deg lat ~ 111.195 m over 20 s.
		got := InstantaneousSpeedKmh(at(0, 0, 0), at(0.001, 0, 20))
		assert.InDelta(t, 20.015, got, 0.01)
	})

	t.Run("exactly at noise floor", func(t *testing.T) {
		got := InstantaneousSpeedKmh(at(0, 0, 0), at(0.001, 0, 10))
		assert.InDelta(t, 40.03, got, 0.01)
	})
}

func TestWindowedAverageSpeedKmh(t *testing.T) {
	t.Run("short span returns zero despite jumps", func(t *testing.T) {
		samples := []domain.PositionSample{
			at(0, 0, 0),
			at(0.01, 0, 10),
			at(0.02, 0, 20),
		}
		assert.Greater(t, InstantaneousSpeedKmh(samples[0], samples[1]), 100.0)
		assert.Equal(t, 0.0, WindowedAverageSpeedKmh(samples, 2, 60*time.Second))
	})

	t.Run("span of thirty seconds is trusted", func(t *testing.T) {
		samples := []domain.PositionSample{at(0, 0, 0), at(0.001, 0, 30)}
		got := WindowedAverageSpeedKmh(samples, 1, 60*time.Second)
		assert.InDelta(t, 13.343, got, 0.01)
	})

	t.Run("older samples fall outside the window", func(t *testing.T) {
		samples := []domain.PositionSample{
			at(0, 0, 0),
			at(0.5, 0, 100),
			at(0.501, 0, 130),
			at(0.502, 0, 160),
		}
		got := WindowedAverageSpeedKmh(samples, 3, 60*time.Second)
		// 222.39 m over 60 s
		assert.InDelta(t, 13.343, got, 0.01)
	})

	t.Run("index bounds", func(t *testing.T) {
		samples := []domain.PositionSample{at(0, 0, 0), at(0.001, 0, 40)}
		assert.Equal(t, 0.0, WindowedAverageSpeedKmh(samples, 0, time.Minute))
		assert.Equal(t, 0.0, WindowedAverageSpeedKmh(samples, 2, time.Minute))
		assert.Equal(t, 0.0, WindowedAverageSpeedKmh(nil, 1, time.Minute))
	})

	t.Run("single sample in window", func(t *testing.T) {
		samples := []domain.PositionSample{at(0, 0, 0), at(0.001, 0, 500)}
		assert.Equal(t, 0.0, WindowedAverageSpeedKmh(samples, 1, time.Minute))
	})
}

func TestMaxWindowedSpeedKmh(t *testing.T) {
	samples := []domain.PositionSample{
		at(0, 0, 0),
		at(0.0001, 0, 30),
		at(0.0002, 0, 60),
		at(0.01, 0, 90),
	}
	// The last window covers 1100.8 m in 60 s.
	max := MaxWindowedSpeedKmh(samples, 60*time.Second)
	assert.InDelta(t, 66.05, max, 0.05)
	assert.Equal(t, 0.0, MaxWindowedSpeedKmh(samples[:1], time.Minute))
}

func TestTotalDistanceKm(t *testing.T) {
	samples := []domain.PositionSample{at(0, 0, 0), at(1, 0, 60), at(2, 0, 120)}
	assert.InDelta(t, 222.39, TotalDistanceKm(samples), 0.01)
	assert.Equal(t, 0.0, TotalDistanceKm(samples[:1]))
}

func TestIsStationary(t *testing.T) {
	jitter := []float64{0.00003, -0.00002, 0.00004, -0.00004, 0.00001, 0, -0.00003, 0.00002, -0.00001, 0.00004}
	var samples []domain.PositionSample
	for i, j := range jitter {
		samples = append(samples, at(41.0+j, 29.0-j, i*30))
	}
	assert.True(t, IsStationary(samples, 50))

	samples = append(samples, at(41.001, 29.0, 400))
	assert.False(t, IsStationary(samples, 50))

	assert.True(t, IsStationary(samples[:1], 50))
	assert.True(t, IsStationary(nil, 50))
}

func TestFormatTable(t *testing.T) {
	samples := []domain.PositionSample{at(41, 29, 0), at(41.001, 29, 5), at(41.002, 29, 25)}
	out := FormatTable(samples, time.UTC)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[2], "2026-05-04 10:00:00 | 41.000000 | 29.000000 | 0.0 | 0")
	assert.Contains(t, lines[3], "| 0.0 | 111", "speed is suppressed under the noise floor")

	assert.Equal(t, "No position data.", FormatTable(nil, nil))
}
