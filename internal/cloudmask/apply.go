package cloudmask

import (
	"fmt"
	"math"

	"github.com/banshee-data/vegetation.report/internal/raster"
)

// ShapeError reports a mask whose grid does not match the tile it is
// applied to.
type ShapeError struct {
	MaskRows, MaskCols int
	TileRows, TileCols int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("mask is %dx%d but tile is %dx%d", e.MaskRows, e.MaskCols, e.TileRows, e.TileCols)
}

// NoDataNaN is the default no-data value written to masked pixels.
var NoDataNaN = math.NaN()

// Apply returns a tile in which every invalid pixel of every band is set to
// noData. Inputs, the classification band and derived bands are all treated
// alike. The input tile is not modified, and applying the same mask twice
// gives the same result as applying it once.
func Apply(t raster.Tile, m Mask, noData float64) (raster.Tile, error) {
	rows, cols := t.Dims()
	if t.NumBands() == 0 {
		return t, nil
	}
	if rows != m.rows || cols != m.cols {
		return raster.Tile{}, &ShapeError{MaskRows: m.rows, MaskCols: m.cols, TileRows: rows, TileCols: cols}
	}

	masked := make([]*raster.Band, 0, t.NumBands())
	var applyErr error
	t.Each(func(b *raster.Band) {
		if applyErr != nil {
			return
		}
		vals := b.Values()
		for i, ok := range m.valid {
			if !ok {
				vals[i] = noData
			}
		}
		nb, err := raster.NewBand(b.Name, rows, cols, vals)
		if err != nil {
			applyErr = err
			return
		}
		nb.CRS = b.CRS
		masked = append(masked, nb)
	})
	if applyErr != nil {
		return raster.Tile{}, applyErr
	}
	return t.WithBands(masked...)
}
