package pipeline

import (
	"github.com/banshee-data/vegetation.report/internal/cloudmask"
	"github.com/banshee-data/vegetation.report/internal/export"
	"github.com/banshee-data/vegetation.report/internal/raster"
)

// MaskStage derives the validity mask of an extracted tile.
type MaskStage interface {
	Mask(t raster.Tile) (cloudmask.Mask, error)
}

// IndexStage adds derived bands to a tile. *indices.Calculator implements it.
type IndexStage interface {
	Compute(t raster.Tile) (raster.Tile, error)
}

// DescriptorStage builds the export descriptor of a masked tile.
// *export.Builder implements it.
type DescriptorStage interface {
	Build(t raster.Tile, ordinal int) (export.Descriptor, error)
}

// SCLMasker returns a MaskStage that keeps the given scene classes. Nil or
// empty classes keep cloudmask.DefaultValidClasses.
func SCLMasker(classes []int) MaskStage {
	if len(classes) == 0 {
		classes = cloudmask.DefaultValidClasses
	}
	return sclMasker{classes: append([]int(nil), classes...)}
}

type sclMasker struct {
	classes []int
}

func (m sclMasker) Mask(t raster.Tile) (cloudmask.Mask, error) {
	return cloudmask.BuildFromTile(t, m.classes)
}
