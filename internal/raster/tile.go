package raster

import (
	"sort"
	"time"
)

// Tile is one raster scene: a set of co-registered bands sharing a pixel
// grid. Tiles are values; WithBands and Select return new tiles and never
// modify the receiver.
type Tile struct {
	// ID is the collection-assigned identifier. It may be empty, in which
	// case export synthesises one from the tile's ordinal position.
	ID string
	// CRS is the tile's default coordinate reference system, used for bands
	// that carry none of their own.
	CRS       string
	Timestamp time.Time

	bands      map[string]*Band
	rows, cols int
}

// NewTile builds a tile from the given bands. All bands must share a shape.
// A later band with the same name replaces an earlier one.
func NewTile(id, crs string, ts time.Time, bands ...*Band) (Tile, error) {
	t := Tile{ID: id, CRS: crs, Timestamp: ts}
	return t.WithBands(bands...)
}

// Dims returns the shared grid shape, or 0, 0 for a tile with no bands.
func (t Tile) Dims() (rows, cols int) {
	return t.rows, t.cols
}

// Band looks up a band by name.
func (t Tile) Band(name string) (*Band, bool) {
	b, ok := t.bands[name]
	return b, ok
}

// Require looks up a band by name, returning a *MissingBandError when it is
// absent.
func (t Tile) Require(name string) (*Band, error) {
	b, ok := t.bands[name]
	if !ok {
		return nil, &MissingBandError{TileID: t.ID, Band: name}
	}
	return b, nil
}

// BandNames returns the band names in sorted order.
func (t Tile) BandNames() []string {
	names := make([]string, 0, len(t.bands))
	for name := range t.bands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NumBands returns the number of bands in the tile.
func (t Tile) NumBands() int {
	return len(t.bands)
}

// CRSOf returns the CRS of the named band, falling back to the tile CRS
// when the band carries none.
func (t Tile) CRSOf(name string) (string, error) {
	b, err := t.Require(name)
	if err != nil {
		return "", err
	}
	if b.CRS != "" {
		return b.CRS, nil
	}
	return t.CRS, nil
}

// WithBands returns a copy of the tile with the given bands added or
// replaced. The receiver is not modified.
func (t Tile) WithBands(bands ...*Band) (Tile, error) {
	out := t
	out.bands = make(map[string]*Band, len(t.bands)+len(bands))
	for name, b := range t.bands {
		out.bands[name] = b
	}
	for _, b := range bands {
		r, c := b.Dims()
		if len(out.bands) == 0 || (out.rows == 0 && out.cols == 0) {
			out.rows, out.cols = r, c
		}
		if r != out.rows || c != out.cols {
			return Tile{}, &ShapeMismatchError{Band: b.Name, Rows: r, Cols: c, WantRows: out.rows, WantCols: out.cols}
		}
		out.bands[b.Name] = b
	}
	return out, nil
}

// Select returns a tile holding only the named bands. Any absent name fails
// with a *MissingBandError.
func (t Tile) Select(names ...string) (Tile, error) {
	out := t
	out.bands = make(map[string]*Band, len(names))
	for _, name := range names {
		b, err := t.Require(name)
		if err != nil {
			return Tile{}, err
		}
		out.bands[name] = b
	}
	if len(out.bands) == 0 {
		out.rows, out.cols = 0, 0
	}
	return out, nil
}

// Each calls fn for every band in sorted name order.
func (t Tile) Each(fn func(b *Band)) {
	for _, name := range t.BandNames() {
		fn(t.bands[name])
	}
}
