package indices

import (
	"fmt"

	"github.com/banshee-data/vegetation.report/internal/raster"
)

// Calculator evaluates a fixed list of definitions against tiles.
type Calculator struct {
	defs []Definition
}

// NewCalculator returns a calculator for the given definitions, evaluated in
// order. With no definitions it uses Definitions().
func NewCalculator(defs ...Definition) *Calculator {
	if len(defs) == 0 {
		defs = Definitions()
	}
	return &Calculator{defs: defs}
}

// Compute returns a new tile holding the input bands plus one band per
// definition. A definition may read bands produced by earlier definitions.
// A missing input band fails with a *raster.MissingBandError; numeric
// degeneracies never fail.
func (c *Calculator) Compute(t raster.Tile) (raster.Tile, error) {
	out := t
	for _, def := range c.defs {
		inputs := make([]*raster.Band, len(def.Inputs))
		for i, name := range def.Inputs {
			b, err := out.Require(name)
			if err != nil {
				return raster.Tile{}, err
			}
			inputs[i] = b
		}

		band, err := raster.Combine(def.Name, def.Formula, inputs...)
		if err != nil {
			return raster.Tile{}, fmt.Errorf("compute %s: %w", def.Name, err)
		}
		if out, err = out.WithBands(band); err != nil {
			return raster.Tile{}, fmt.Errorf("attach %s: %w", def.Name, err)
		}
	}
	return out, nil
}
