package raster

import (
	"errors"
	"fmt"
)

// ErrMissingBand matches any *MissingBandError via errors.Is.
var ErrMissingBand = errors.New("missing band")

// MissingBandError reports a required band absent from a tile. It is
// unrecoverable for that tile only.
type MissingBandError struct {
	TileID string
	Band   string
}

func (e *MissingBandError) Error() string {
	if e.TileID == "" {
		return fmt.Sprintf("missing band %q", e.Band)
	}
	return fmt.Sprintf("tile %q: missing band %q", e.TileID, e.Band)
}

// Is reports whether target is ErrMissingBand.
func (e *MissingBandError) Is(target error) bool {
	return target == ErrMissingBand
}

// ShapeMismatchError reports a band whose grid does not match the tile grid.
type ShapeMismatchError struct {
	Band               string
	Rows, Cols         int
	WantRows, WantCols int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("band %q is %dx%d, want %dx%d", e.Band, e.Rows, e.Cols, e.WantRows, e.WantCols)
}
