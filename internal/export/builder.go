package export

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/vegetation.report/internal/geometry"
	"github.com/banshee-data/vegetation.report/internal/indices"
	"github.com/banshee-data/vegetation.report/internal/raster"
)

// DefaultScale is the export resolution in units of the tile's projection.
const DefaultScale = 10.0

// DefaultReferenceBand is read for the tile CRS. NDVI is always present
// after index computation.
const DefaultReferenceBand = indices.NDVI

// DefaultBandNames returns the classification band followed by the six
// indices.
func DefaultBandNames() []string {
	return append([]string{raster.SCL}, indices.Names()...)
}

var (
	// ErrNoRegion is returned for a builder configured without a region.
	ErrNoRegion = errors.New("export region is empty")
	// ErrNoCRS is returned when neither the reference band nor the tile
	// carries a CRS.
	ErrNoCRS = errors.New("tile has no coordinate reference system")
)

// Config fixes the parameters shared by every descriptor of a run.
type Config struct {
	BandNames     []string
	ReferenceBand string
	Scale         float64
	Folder        string
	CollectionID  string
	Region        orb.Geometry
}

// Builder turns processed tiles into descriptors.
type Builder struct {
	cfg Config
}

// NewBuilder validates cfg and returns a builder. Empty BandNames,
// ReferenceBand and zero Scale take the package defaults.
func NewBuilder(cfg Config) (*Builder, error) {
	if geometry.IsEmpty(cfg.Region) {
		return nil, ErrNoRegion
	}
	if cfg.Folder == "" {
		return nil, errors.New("export folder must be set")
	}
	if len(cfg.BandNames) == 0 {
		cfg.BandNames = DefaultBandNames()
	} else {
		cfg.BandNames = append([]string(nil), cfg.BandNames...)
	}
	if cfg.ReferenceBand == "" {
		cfg.ReferenceBand = DefaultReferenceBand
	}
	if cfg.Scale == 0 {
		cfg.Scale = DefaultScale
	}
	if cfg.Scale < 0 || math.IsNaN(cfg.Scale) || math.IsInf(cfg.Scale, 0) {
		return nil, fmt.Errorf("export scale must be positive, got %v", cfg.Scale)
	}
	cfg.Region = orb.Clone(cfg.Region)
	return &Builder{cfg: cfg}, nil
}

// Config returns the effective builder configuration.
func (b *Builder) Config() Config {
	cfg := b.cfg
	cfg.BandNames = append([]string(nil), b.cfg.BandNames...)
	return cfg
}

// TileID returns the tile's own id, or <collectionID>_image_<ordinal> when it
// has none. Ordinals are positions in the run's input, so the synthesised id
// is unique within a run.
func TileID(t raster.Tile, collectionID string, ordinal int) string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("%s_image_%d", collectionID, ordinal)
}

// Build selects the export bands of t, reads the CRS from the reference
// band, and returns the descriptor. ordinal is the tile's position in the
// input collection.
func (b *Builder) Build(t raster.Tile, ordinal int) (Descriptor, error) {
	id := TileID(t, b.cfg.CollectionID, ordinal)

	crs, err := t.CRSOf(b.cfg.ReferenceBand)
	if err != nil {
		return Descriptor{}, err
	}
	if crs == "" {
		return Descriptor{}, fmt.Errorf("tile %s, band %s: %w", id, b.cfg.ReferenceBand, ErrNoCRS)
	}

	image, err := t.Select(b.cfg.BandNames...)
	if err != nil {
		return Descriptor{}, err
	}
	image.ID = id

	return Descriptor{
		TileID:         id,
		CRS:            crs,
		Scale:          b.cfg.Scale,
		Folder:         b.cfg.Folder,
		FileNamePrefix: id,
		region:         orb.Clone(b.cfg.Region),
		bandNames:      append([]string(nil), b.cfg.BandNames...),
		image:          image,
	}, nil
}
