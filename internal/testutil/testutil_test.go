package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vegetation.report/internal/raster"
)

func TestUniformTile(t *testing.T) {
	t.Parallel()

	tile := UniformTile(t, "t1", 2, 3, Vegetated)

	rows, cols := tile.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, "EPSG:32633", tile.CRS)
	assert.Equal(t, FixtureTime, tile.Timestamp)
	assert.Equal(t, []string{"B11", "B2", "B3", "B4", "B8", "SCL"}, tile.BandNames())

	nir, err := tile.Require(raster.NIR)
	require.NoError(t, err)
	assert.Equal(t, 4000.0, nir.At(1, 2))

	scl, err := tile.Require(raster.SCL)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 4, 4, 4, 4, 4}, scl.Values())
}

func TestUniformTile_Options(t *testing.T) {
	t.Parallel()

	tile := UniformTile(t, "", 1, 2, Vegetated,
		WithSCL(3, 5),
		WithoutBand(raster.NIR),
		WithCRS("EPSG:32734"),
		WithBandCRS(raster.Red, "EPSG:4326"),
	)

	_, ok := tile.Band(raster.NIR)
	assert.False(t, ok)

	scl, err := tile.Require(raster.SCL)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 5}, scl.Values())

	crs, err := tile.CRSOf(raster.Red)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", crs)

	crs, err = tile.CRSOf(raster.Green)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32734", crs)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}
