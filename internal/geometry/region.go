// Package geometry provides the run's region of interest: a polygon built
// from a point and buffer distance, or a GeoJSON geometry supplied
// directly. Geometries are longitude/latitude (WGS84); no reprojection
// happens here.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// DefaultSegments is the number of vertices used to approximate a buffer
// circle.
const DefaultSegments = 64

// ErrEmpty reports a nil or coordinate-free geometry.
var ErrEmpty = errors.New("empty geometry")

// BufferedPoint returns a closed polygon approximating a circle of
// radiusMeters around center. segments below 4 fall back to
// DefaultSegments.
func BufferedPoint(center orb.Point, radiusMeters float64, segments int) (orb.Polygon, error) {
	if radiusMeters <= 0 || math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) {
		return nil, fmt.Errorf("buffer radius must be positive, got %v", radiusMeters)
	}
	if center.Lat() < -90 || center.Lat() > 90 || center.Lon() < -180 || center.Lon() > 180 {
		return nil, fmt.Errorf("point %v is outside lon/lat range", center)
	}
	if segments < 4 {
		segments = DefaultSegments
	}

	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		bearing := 360 * float64(i) / float64(segments)
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radiusMeters))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}, nil
}

// Parse decodes a GeoJSON geometry object.
func Parse(data []byte) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson geometry: %w", err)
	}
	geom := g.Geometry()
	if IsEmpty(geom) {
		return nil, ErrEmpty
	}
	return geom, nil
}

// Marshal encodes a geometry as a GeoJSON geometry object.
func Marshal(g orb.Geometry) ([]byte, error) {
	if IsEmpty(g) {
		return nil, ErrEmpty
	}
	return geojson.NewGeometry(g).MarshalJSON()
}

// IsEmpty reports whether g is nil or holds no coordinates.
func IsEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		for _, sub := range v {
			if !IsEmpty(sub) {
				return false
			}
		}
		return true
	case orb.Bound:
		return false
	}
	return false
}
