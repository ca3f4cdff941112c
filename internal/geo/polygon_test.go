package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/locintel/internal/errors"
)

var square = orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

func TestContainsSquare(t *testing.T) {
	closed, err := NormalizeRing(square)
	require.NoError(t, err)

	for name, ring := range map[string]orb.Ring{"open": square, "closed": closed} {
		t.Run(name, func(t *testing.T) {
			cases := []struct {
				name     string
				lat, lng float64
				want     bool
			}{
				{"center", 5, 5, true},
				{"far outside", 20, 20, false},
				{"origin vertex", 0, 0, true},
				{"opposite vertex", 10, 10, true},
				{"bottom edge", 0, 5, true},
				{"right edge", 5, 10, true},
				{"top edge", 10, 3, true},
				{"left edge", 7, 0, true},
				{"just outside right", 5, 10.001, false},
				{"just outside below", -0.001, 5, false},
				{"level with vertex outside", 10, 15, false},
				{"level with vertex left", 0, -5, false},
			}
			for _, tc := range cases {
				assert.Equal(t, tc.want, Contains(ring, tc.lat, tc.lng), tc.name)
			}
		})
	}
}

func TestContainsConcave(t *testing.T) {
	// U shape opening upward.
	u := orb.Ring{{0, 0}, {9, 0}, {9, 9}, {6, 9}, {6, 3}, {3, 3}, {3, 9}, {0, 9}}
	assert.True(t, Contains(u, 1, 1))
	assert.True(t, Contains(u, 6, 1.5), "left arm")
	assert.True(t, Contains(u, 6, 7.5), "right arm")
	assert.False(t, Contains(u, 6, 4.5), "notch")
	assert.True(t, Contains(u, 3, 4.5), "notch floor is boundary")
}

func TestContainsSmallDiamond(t *testing.T) {
	// About 110 m across, centred on (41.0, 29.0).
	const h = 0.0005
	diamond := orb.Ring{{29.0, 41.0 - h}, {29.0 + h, 41.0}, {29.0, 41.0 + h}, {29.0 - h, 41.0}}

	midLng, midLat := 29.0+h/2, 41.0+h/2
	assert.True(t, Contains(diamond, 41.0, 29.0), "centre")
	assert.True(t, Contains(diamond, midLat, midLng), "edge midpoint")
	assert.False(t, onBoundary(diamond, midLat+0.00022, midLng+0.00022))
	assert.False(t, Contains(diamond, midLat+0.00022, midLng+0.00022), "30 m beyond the edge")
	assert.False(t, Contains(diamond, midLat+0.00001, midLng+0.00001), "1.5 m beyond the edge")
}

func TestOnSegmentZeroLengthEdge(t *testing.T) {
	assert.True(t, onSegment(1, 1, 1, 1, 1, 1))
	assert.False(t, onSegment(1.001, 1, 1, 1, 1, 1))
}

func TestContainsDegenerate(t *testing.T) {
	assert.False(t, Contains(orb.Ring{{0, 0}, {1, 1}}, 0, 0))
	assert.False(t, Contains(nil, 0, 0))
}

func TestNormalizeRing(t *testing.T) {
	t.Run("closes open ring", func(t *testing.T) {
		ring, err := NormalizeRing(square)
		require.NoError(t, err)
		require.Len(t, ring, 5)
		assert.Equal(t, ring[0], ring[4])
		assert.Len(t, square, 4, "input is not modified")
	})

	t.Run("keeps closed ring", func(t *testing.T) {
		closed := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}
		ring, err := NormalizeRing(closed)
		require.NoError(t, err)
		assert.Len(t, ring, 4)
	})

	t.Run("rejects short rings", func(t *testing.T) {
		_, err := NormalizeRing(orb.Ring{{0, 0}, {1, 1}})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))

		_, err = NormalizeRing(orb.Ring{{0, 0}, {1, 1}, {0, 0}})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), "closing point is not distinct")
	})

	t.Run("rejects bad coordinates", func(t *testing.T) {
		_, err := NormalizeRing(orb.Ring{{0, 0}, {181, 0}, {1, 1}})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))

		_, err = NormalizeRing(orb.Ring{{0, 0}, {math.NaN(), 0}, {1, 1}})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	})
}

func TestPolygonCodec(t *testing.T) {
	ring, err := NormalizeRing(orb.Ring{{28.97, 41.0}, {28.98, 41.0}, {28.98, 41.01}})
	require.NoError(t, err)

	data, err := EncodePolygon(ring)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"Polygon"`)

	decoded, err := DecodePolygon(data)
	require.NoError(t, err)
	assert.Equal(t, ring, decoded)

	_, err = DecodePolygon([]byte(`{"type":"Point","coordinates":[1,2]}`))
	assert.Error(t, err)

	_, err = DecodePolygon([]byte(`not json`))
	assert.Error(t, err)
}
