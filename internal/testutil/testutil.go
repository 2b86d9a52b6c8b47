// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the tile fixtures used by the raster, index,
// mask and pipeline tests.
package testutil

import (
	"testing"
	"time"

	"github.com/banshee-data/vegetation.report/internal/raster"
)

// FixtureTime is the acquisition time given to fixture tiles.
var FixtureTime = time.Date(2023, 6, 15, 10, 5, 59, 0, time.UTC)

// Reflectance holds raw digital numbers (before the 10000 scale) for the
// optical bands of a uniform fixture tile.
type Reflectance struct {
	Blue, Green, Red, NIR, SWIR1 float64
}

// Vegetated is the reference reflectance used across tests: NDVI 1/3,
// NDWI -0.6, NMDI 0.6.
var Vegetated = Reflectance{Blue: 500, Green: 1000, Red: 2000, NIR: 4000, SWIR1: 1000}

// TileOption adjusts a fixture tile before it is assembled.
type TileOption func(*tileSpec)

type tileSpec struct {
	crs     string
	scl     []float64
	omit    map[string]bool
	bandCRS map[string]string
}

// WithSCL sets the classification codes pixel by pixel, row-major.
func WithSCL(codes ...float64) TileOption {
	return func(s *tileSpec) { s.scl = codes }
}

// WithoutBand drops a band from the fixture.
func WithoutBand(name string) TileOption {
	return func(s *tileSpec) { s.omit[name] = true }
}

// WithCRS sets the tile's default CRS.
func WithCRS(crs string) TileOption {
	return func(s *tileSpec) { s.crs = crs }
}

// WithBandCRS gives a single band its own CRS.
func WithBandCRS(band, crs string) TileOption {
	return func(s *tileSpec) { s.bandCRS[band] = crs }
}

// UniformTile builds a rows x cols tile with every optical band filled with
// the given raw reflectance. The SCL band is all vegetation (4) unless
// WithSCL overrides it. The default CRS is EPSG:32633.
func UniformTile(t testing.TB, id string, rows, cols int, r Reflectance, opts ...TileOption) raster.Tile {
	t.Helper()
	spec := &tileSpec{
		crs:     "EPSG:32633",
		omit:    map[string]bool{},
		bandCRS: map[string]string{},
	}
	for _, opt := range opts {
		opt(spec)
	}

	scl := spec.scl
	if scl == nil {
		scl = make([]float64, rows*cols)
		for i := range scl {
			scl[i] = 4
		}
	}

	fill := map[string]float64{
		raster.Blue:  r.Blue,
		raster.Green: r.Green,
		raster.Red:   r.Red,
		raster.NIR:   r.NIR,
		raster.SWIR1: r.SWIR1,
	}

	var bands []*raster.Band
	for _, name := range []string{raster.Blue, raster.Green, raster.Red, raster.NIR, raster.SWIR1, raster.SCL} {
		if spec.omit[name] {
			continue
		}
		var (
			b   *raster.Band
			err error
		)
		if name == raster.SCL {
			b, err = raster.NewBand(name, rows, cols, scl)
		} else {
			b, err = raster.FilledBand(name, rows, cols, fill[name])
		}
		if err != nil {
			t.Fatalf("fixture band %s: %v", name, err)
		}
		b.CRS = spec.bandCRS[name]
		bands = append(bands, b)
	}

	tile, err := raster.NewTile(id, spec.crs, FixtureTime, bands...)
	if err != nil {
		t.Fatalf("fixture tile %s: %v", id, err)
	}
	return tile
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
