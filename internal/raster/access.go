package raster

// Sentinel-2 band names used by the pipeline.
const (
	Blue  = "B2"
	Green = "B3"
	Red   = "B4"
	NIR   = "B8"
	SWIR1 = "B11"
	SWIR2 = "B12"
	SCL   = "SCL"
)

// ReflectanceScale is the divisor that turns integer surface reflectance
// digital numbers into unit reflectance.
const ReflectanceScale = 10000.0

// BandSpec names a band to pull from a raw tile and how to scale it.
type BandSpec struct {
	Name string
	// ScaleFactor divides every pixel. Zero or one passes values through
	// unchanged, which is what categorical bands need.
	ScaleFactor float64
	// Optional bands are skipped when absent instead of failing the tile.
	Optional bool
}

// DefaultBandSpecs returns the optical reflectance bands scaled by
// ReflectanceScale plus the unscaled scene classification band. SWIR2 is
// scaled when present but no index needs it.
func DefaultBandSpecs() []BandSpec {
	return []BandSpec{
		{Name: Blue, ScaleFactor: ReflectanceScale},
		{Name: Green, ScaleFactor: ReflectanceScale},
		{Name: Red, ScaleFactor: ReflectanceScale},
		{Name: NIR, ScaleFactor: ReflectanceScale},
		{Name: SWIR1, ScaleFactor: ReflectanceScale},
		{Name: SWIR2, ScaleFactor: ReflectanceScale, Optional: true},
		{Name: SCL, ScaleFactor: 1},
	}
}

// Extract returns a tile holding the bands named by specs, each divided by
// its scale factor. The input tile is not modified. A missing required band
// fails with a *MissingBandError.
func Extract(t Tile, specs []BandSpec) (Tile, error) {
	out := Tile{ID: t.ID, CRS: t.CRS, Timestamp: t.Timestamp}
	bands := make([]*Band, 0, len(specs))
	for _, spec := range specs {
		b, ok := t.Band(spec.Name)
		if !ok {
			if spec.Optional {
				continue
			}
			return Tile{}, &MissingBandError{TileID: t.ID, Band: spec.Name}
		}
		bands = append(bands, scaled(b, spec.ScaleFactor))
	}
	return out.WithBands(bands...)
}

func scaled(b *Band, factor float64) *Band {
	if factor == 0 || factor == 1 {
		return b
	}
	rows, cols := b.Dims()
	buf := b.Values()
	for i := range buf {
		buf[i] /= factor
	}
	return fromRaw(b.Name, b.CRS, rows, cols, buf)
}
