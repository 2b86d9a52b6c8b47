// Package indices derives spectral index bands from scaled reflectance
// bands.
//
// Every formula is a pure elementwise function. Zero denominators are not
// errors: 0/0 gives NaN and x/0 gives ±Inf, following IEEE-754, and the
// values flow on to masking and export unchanged. Callers must tolerate
// non-finite pixels.
package indices

import (
	"math"

	"github.com/banshee-data/vegetation.report/internal/raster"
)

// Derived band names.
const (
	NDVI  = "NDVI"
	EVI   = "EVI"
	KNDVI = "kNDVI"
	NIRv  = "NIRv"
	NDWI  = "NDWI"
	NMDI  = "NMDI"
)

// Definition is one derived index: a name, the bands it reads in order, and
// a formula over one pixel's values of those bands.
type Definition struct {
	Name    string
	Inputs  []string
	Formula func(v []float64) float64
}

// NormalizedDifference returns (a - b) / (a + b).
func NormalizedDifference(a, b float64) float64 {
	return (a - b) / (a + b)
}

func ndvi(nir, red float64) float64 {
	return NormalizedDifference(nir, red)
}

func evi(nir, red, blue float64) float64 {
	return 2.5 * (nir - red) / (nir + 6*red - 7.5*blue + 1)
}

func kndvi(nir, red float64) float64 {
	n := ndvi(nir, red)
	sigma := (nir + red) / 2
	return math.Exp(-(n * n / (2 * sigma * sigma)))
}

// Definitions returns the six indices in evaluation order. NIRv reads the
// NDVI band, so NDVI must be computed first.
func Definitions() []Definition {
	return []Definition{
		{
			Name:    NDVI,
			Inputs:  []string{raster.NIR, raster.Red},
			Formula: func(v []float64) float64 { return ndvi(v[0], v[1]) },
		},
		{
			Name:    EVI,
			Inputs:  []string{raster.NIR, raster.Red, raster.Blue},
			Formula: func(v []float64) float64 { return evi(v[0], v[1], v[2]) },
		},
		{
			Name:    KNDVI,
			Inputs:  []string{raster.NIR, raster.Red},
			Formula: func(v []float64) float64 { return kndvi(v[0], v[1]) },
		},
		{
			Name:    NIRv,
			Inputs:  []string{NDVI, raster.NIR},
			Formula: func(v []float64) float64 { return v[0] * v[1] },
		},
		{
			// Band order matters: swapping operands flips the sign.
			Name:    NDWI,
			Inputs:  []string{raster.Green, raster.NIR},
			Formula: func(v []float64) float64 { return NormalizedDifference(v[0], v[1]) },
		},
		{
			Name:    NMDI,
			Inputs:  []string{raster.NIR, raster.SWIR1},
			Formula: func(v []float64) float64 { return NormalizedDifference(v[0], v[1]) },
		},
	}
}

// Names returns the names of the default definitions in evaluation order.
func Names() []string {
	defs := Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
