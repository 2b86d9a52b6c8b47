package raster

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Band is one named 2-D grid of per-pixel values. Values are float64 so
// that NaN can represent undefined or no-data pixels.
//
// The backing matrix is always contiguous (stride == cols); all
// constructors in this package guarantee it.
type Band struct {
	Name string
	// CRS is the coordinate reference system of the band, e.g. "EPSG:32633".
	// Empty means "inherit from the tile".
	CRS string

	data *mat.Dense
}

// NewBand creates a band from row-major values. The slice is copied.
func NewBand(name string, rows, cols int, values []float64) (*Band, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("band %q: invalid dimensions %dx%d", name, rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("band %q: got %d values for %dx%d grid", name, len(values), rows, cols)
	}
	buf := make([]float64, len(values))
	copy(buf, values)
	return &Band{Name: name, data: mat.NewDense(rows, cols, buf)}, nil
}

// FilledBand creates a rows x cols band with every pixel set to v.
func FilledBand(name string, rows, cols int, v float64) (*Band, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("band %q: invalid dimensions %dx%d", name, rows, cols)
	}
	buf := make([]float64, rows*cols)
	for i := range buf {
		buf[i] = v
	}
	return &Band{Name: name, data: mat.NewDense(rows, cols, buf)}, nil
}

// fromRaw wraps an already-owned contiguous buffer without copying.
func fromRaw(name, crs string, rows, cols int, buf []float64) *Band {
	return &Band{Name: name, CRS: crs, data: mat.NewDense(rows, cols, buf)}
}

// Dims returns the grid shape.
func (b *Band) Dims() (rows, cols int) {
	return b.data.Dims()
}

// Len returns the number of pixels.
func (b *Band) Len() int {
	r, c := b.data.Dims()
	return r * c
}

// At returns the pixel at row i, column j.
func (b *Band) At(i, j int) float64 {
	return b.data.At(i, j)
}

// Values returns a row-major copy of the pixel values.
func (b *Band) Values() []float64 {
	out := make([]float64, b.Len())
	copy(out, b.data.RawMatrix().Data)
	return out
}

// Matrix exposes the grid as a read-only gonum matrix.
func (b *Band) Matrix() mat.Matrix {
	return b.data
}

// raw returns the backing buffer. Callers inside the package must not
// write to it unless they own the band.
func (b *Band) raw() []float64 {
	return b.data.RawMatrix().Data
}

// Renamed returns a band sharing the same pixels under a new name.
func (b *Band) Renamed(name string) *Band {
	return &Band{Name: name, CRS: b.CRS, data: b.data}
}

// Map returns a new band whose pixels are fn applied to each pixel of b.
func (b *Band) Map(fn func(v float64) float64) *Band {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, b.data)
	return &Band{Name: b.Name, CRS: b.CRS, data: &out}
}

// Combine evaluates fn pixel by pixel across the given bands and returns the
// result as a new band named name. All inputs must share a shape; the
// output inherits the CRS of the first input. fn receives one value per
// input, in input order. The scratch slice passed to fn is reused between
// pixels and must not be retained.
func Combine(name string, fn func(v []float64) float64, inputs ...*Band) (*Band, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("combine %q: no input bands", name)
	}
	rows, cols := inputs[0].Dims()
	srcs := make([][]float64, len(inputs))
	for k, in := range inputs {
		r, c := in.Dims()
		if r != rows || c != cols {
			return nil, &ShapeMismatchError{Band: in.Name, Rows: r, Cols: c, WantRows: rows, WantCols: cols}
		}
		srcs[k] = in.raw()
	}

	out := make([]float64, rows*cols)
	scratch := make([]float64, len(inputs))
	for p := range out {
		for k := range srcs {
			scratch[k] = srcs[k][p]
		}
		out[p] = fn(scratch)
	}
	return fromRaw(name, inputs[0].CRS, rows, cols, out), nil
}
