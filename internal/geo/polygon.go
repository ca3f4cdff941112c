// Package geo holds the planar polygon geometry used by geofence zones.
// Rings are orb.Ring values with X = longitude and Y = latitude.
package geo

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fleet-monitor/locintel/internal/errors"
)

// edgeEpsilon is the tolerance, in degrees, for treating a point as lying on an edge.
const edgeEpsilon = 1e-6

// MinRingPoints is the fewest distinct vertices a zone ring may have.
const MinRingPoints = 3

// NormalizeRing validates coordinates and returns a closed copy of ring.
func NormalizeRing(ring orb.Ring) (orb.Ring, error) {
	if len(ring) < MinRingPoints {
		return nil, errors.InvalidInputf("polygon requires at least %d points, got %d", MinRingPoints, len(ring))
	}

	distinct := make(map[orb.Point]struct{}, len(ring))
	for i, p := range ring {
		lng, lat := p[0], p[1]
		if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
			return nil, errors.InvalidInputf("vertex %d is not a finite coordinate", i)
		}
		if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
			return nil, errors.InvalidInputf("vertex %d (%g, %g) is out of range", i, lng, lat)
		}
		distinct[p] = struct{}{}
	}
	if len(distinct) < MinRingPoints {
		return nil, errors.InvalidInputf("polygon requires at least %d distinct points, got %d", MinRingPoints, len(distinct))
	}

	out := make(orb.Ring, len(ring), len(ring)+1)
	copy(out, ring)
	if !out.Closed() {
		out = append(out, out[0])
	}
	return out, nil
}

// Contains reports whether (lat, lng) is inside ring. Points on an edge or
// vertex count as inside. The ring may be open or closed.
func Contains(ring orb.Ring, lat, lng float64) bool {
	n := len(ring)
	if n < MinRingPoints {
		return false
	}

	if onBoundary(ring, lat, lng) {
		return true
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		lngI, latI := ring[i][0], ring[i][1]
		lngJ, latJ := ring[j][0], ring[j][1]

		if (latI > lat) != (latJ > lat) {
			intersectLng := (lngJ-lngI)*(lat-latI)/(latJ-latI) + lngI
			if lng <= intersectLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func onBoundary(ring orb.Ring, lat, lng float64) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		if onSegment(lng, lat, a[0], a[1], b[0], b[1]) {
			return true
		}
	}
	return false
}

// onSegment compares the perpendicular distance to the edge against
// edgeEpsilon, so the tolerance does not depend on edge length.
func onSegment(px, py, x1, y1, x2, y2 float64) bool {
	length := math.Hypot(x2-x1, y2-y1)
	if length == 0 {
		return math.Hypot(px-x1, py-y1) <= edgeEpsilon
	}
	cross := (px-x1)*(y2-y1) - (py-y1)*(x2-x1)
	if math.Abs(cross)/length > edgeEpsilon {
		return false
	}
	return px >= math.Min(x1, x2)-edgeEpsilon && px <= math.Max(x1, x2)+edgeEpsilon &&
		py >= math.Min(y1, y2)-edgeEpsilon && py <= math.Max(y1, y2)+edgeEpsilon
}

// EncodePolygon renders ring as a GeoJSON Polygon geometry.
func EncodePolygon(ring orb.Ring) ([]byte, error) {
	g := geojson.NewGeometry(orb.Polygon{ring})
	data, err := json.Marshal(g)
	if err != nil {
		return nil, errors.Wrap(err, "encode polygon")
	}
	return data, nil
}

// DecodePolygon reads the outer ring of a GeoJSON Polygon geometry.
func DecodePolygon(data []byte) (orb.Ring, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode polygon")
	}
	poly, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return nil, errors.Newf("decode polygon: unexpected geometry %s", g.Type)
	}
	if len(poly) == 0 || len(poly[0]) < MinRingPoints {
		return nil, errors.New("decode polygon: missing outer ring")
	}
	return poly[0], nil
}
