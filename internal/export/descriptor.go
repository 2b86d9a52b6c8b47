// Package export builds export job descriptors: plain values describing
// which bands of a processed tile to export, where, in which projection and
// at which resolution. Nothing here performs I/O; an external job
// submitter consumes the descriptors.
package export

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/banshee-data/vegetation.report/internal/geometry"
	"github.com/banshee-data/vegetation.report/internal/raster"
)

// Descriptor describes one export request. Descriptors are created by
// Builder.Build; accessors return copies of the band list and region so a
// caller cannot alter a built descriptor.
type Descriptor struct {
	TileID         string
	CRS            string
	Scale          float64
	Folder         string
	FileNamePrefix string

	region    orb.Geometry
	bandNames []string
	image     raster.Tile
}

// Region returns a copy of the export region.
func (d Descriptor) Region() orb.Geometry {
	return orb.Clone(d.region)
}

// BandNames returns the exported band names in export order.
func (d Descriptor) BandNames() []string {
	out := make([]string, len(d.bandNames))
	copy(out, d.bandNames)
	return out
}

// Image returns the processed tile restricted to the exported bands.
func (d Descriptor) Image() raster.Tile {
	return d.image
}

type descriptorJSON struct {
	TileID         string          `json:"tileId"`
	CRS            string          `json:"crs"`
	Region         json.RawMessage `json:"region"`
	Scale          float64         `json:"scale"`
	Folder         string          `json:"folder"`
	FileNamePrefix string          `json:"fileNamePrefix"`
	BandNames      []string        `json:"bandNames"`
}

// MarshalJSON encodes the descriptor with its region as GeoJSON. The image
// is not encoded.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	region, err := geometry.Marshal(d.region)
	if err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", d.TileID, err)
	}
	return json.Marshal(descriptorJSON{
		TileID:         d.TileID,
		CRS:            d.CRS,
		Region:         region,
		Scale:          d.Scale,
		Folder:         d.Folder,
		FileNamePrefix: d.FileNamePrefix,
		BandNames:      d.bandNames,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON. The decoded
// descriptor carries no image.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw descriptorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	region, err := geometry.Parse(raw.Region)
	if err != nil {
		return fmt.Errorf("descriptor %s: %w", raw.TileID, err)
	}
	*d = Descriptor{
		TileID:         raw.TileID,
		CRS:            raw.CRS,
		Scale:          raw.Scale,
		Folder:         raw.Folder,
		FileNamePrefix: raw.FileNamePrefix,
		region:         region,
		bandNames:      raw.BandNames,
	}
	return nil
}
