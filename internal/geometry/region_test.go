package geometry

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedPoint(t *testing.T) {
	center := orb.Point{16.37, 48.21}

	poly, err := BufferedPoint(center, 1000, 16)
	require.NoError(t, err)
	require.Len(t, poly, 1)

	ring := poly[0]
	assert.Len(t, ring, 17)
	assert.True(t, ring.Closed())
	for _, p := range ring {
		assert.InDelta(t, 1000, geo.Distance(center, p), 1.0)
	}
	assert.True(t, poly.Bound().Contains(center))
}

func TestBufferedPoint_Invalid(t *testing.T) {
	_, err := BufferedPoint(orb.Point{0, 0}, 0, 16)
	assert.Error(t, err)

	_, err = BufferedPoint(orb.Point{0, 95}, 100, 16)
	assert.Error(t, err)

	poly, err := BufferedPoint(orb.Point{0, 0}, 100, 1)
	require.NoError(t, err)
	assert.Len(t, poly[0], DefaultSegments+1)
}

func TestParseMarshalRoundTrip(t *testing.T) {
	data := []byte(`{"type":"Polygon","coordinates":[[[30,10],[40,40],[20,40],[10,20],[30,10]]]}`)

	g, err := Parse(data)
	require.NoError(t, err)
	poly, ok := g.(orb.Polygon)
	require.True(t, ok)
	assert.Equal(t, orb.Point{40, 40}, poly[0][1])

	out, err := Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))
}

func TestEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(orb.Polygon{}))
	assert.True(t, IsEmpty(orb.Collection{orb.MultiPoint{}}))
	assert.False(t, IsEmpty(orb.Point{1, 2}))

	_, err := Marshal(nil)
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = Parse([]byte(`{"type":"Polygon","coordinates":[]}`))
	assert.Error(t, err)
}
