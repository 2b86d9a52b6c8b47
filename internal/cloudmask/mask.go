// Package cloudmask builds per-pixel validity masks from the Sentinel-2
// scene classification (SCL) band and applies them to tiles.
//
// A mask is a per-tile, per-pixel computation with no cross-tile state.
package cloudmask

import (
	"fmt"
	"math"

	"github.com/banshee-data/vegetation.report/internal/raster"
)

// Scene classification codes.
const (
	NoData                 = 0
	SaturatedOrDefective   = 1
	DarkAreaPixels         = 2
	CloudShadows           = 3
	Vegetation             = 4
	NotVegetated           = 5
	Water                  = 6
	Unclassified           = 7
	CloudMediumProbability = 8
	CloudHighProbability   = 9
	ThinCirrus             = 10
	SnowOrIce              = 11
)

// DefaultValidClasses are the clear-sky land classes kept by the pipeline.
var DefaultValidClasses = []int{Vegetation, NotVegetated}

// Mask is a boolean validity grid; true keeps the pixel.
type Mask struct {
	rows, cols int
	valid      []bool
}

// NewMask builds a mask from row-major values. The slice is copied.
func NewMask(rows, cols int, valid []bool) (Mask, error) {
	if len(valid) != rows*cols {
		return Mask{}, fmt.Errorf("mask: got %d values for %dx%d grid", len(valid), rows, cols)
	}
	buf := make([]bool, len(valid))
	copy(buf, valid)
	return Mask{rows: rows, cols: cols, valid: buf}, nil
}

// Dims returns the grid shape.
func (m Mask) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// At reports whether the pixel at row i, column j is valid.
func (m Mask) At(i, j int) bool {
	return m.valid[i*m.cols+j]
}

// Values returns a row-major copy of the mask.
func (m Mask) Values() []bool {
	out := make([]bool, len(m.valid))
	copy(out, m.valid)
	return out
}

// Build derives a mask from a classification band. A pixel is valid when its
// code, rounded to the nearest integer, is one of validClasses. NaN codes are
// never valid.
func Build(scl *raster.Band, validClasses []int) Mask {
	keep := make(map[int]struct{}, len(validClasses))
	for _, c := range validClasses {
		keep[c] = struct{}{}
	}

	rows, cols := scl.Dims()
	codes := scl.Values()
	valid := make([]bool, len(codes))
	for i, v := range codes {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		_, valid[i] = keep[int(math.Round(v))]
	}
	return Mask{rows: rows, cols: cols, valid: valid}
}

// BuildFromTile looks up the SCL band and builds its mask.
func BuildFromTile(t raster.Tile, validClasses []int) (Mask, error) {
	scl, err := t.Require(raster.SCL)
	if err != nil {
		return Mask{}, err
	}
	return Build(scl, validClasses), nil
}

// Metrics summarises a mask.
type Metrics struct {
	TotalPixels   int     `json:"total_pixels"`
	ValidPixels   int     `json:"valid_pixels"`
	InvalidPixels int     `json:"invalid_pixels"`
	ValidFraction float64 `json:"valid_fraction"`
}

// ComputeMetrics counts valid and invalid pixels.
func ComputeMetrics(m Mask) Metrics {
	total := len(m.valid)
	valid := 0
	for _, ok := range m.valid {
		if ok {
			valid++
		}
	}

	fraction := 0.0
	if total > 0 {
		fraction = float64(valid) / float64(total)
	}

	return Metrics{
		TotalPixels:   total,
		ValidPixels:   valid,
		InvalidPixels: total - valid,
		ValidFraction: fraction,
	}
}
