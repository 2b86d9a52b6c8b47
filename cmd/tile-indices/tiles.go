package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/banshee-data/vegetation.report/internal/export"
	"github.com/banshee-data/vegetation.report/internal/pipeline"
	"github.com/banshee-data/vegetation.report/internal/raster"
)

// tileFile is one entry of the tile input file. Pixel values are row-major;
// null decodes as NaN.
type tileFile struct {
	ID        string              `json:"id"`
	CRS       string              `json:"crs"`
	Timestamp string              `json:"timestamp,omitempty"` // RFC3339
	Rows      int                 `json:"rows"`
	Cols      int                 `json:"cols"`
	Bands     map[string]bandFile `json:"bands"`
}

type bandFile struct {
	CRS    string     `json:"crs,omitempty"`
	Values []*float64 `json:"values"`
}

// tileSet is a decoded tile collection. ordinals[i] is the position of
// tiles[i] in the input file; entries that could not be decoded are in
// rejects.
type tileSet struct {
	tiles    []raster.Tile
	ordinals []int
	rejects  []*pipeline.TileError
	total    int
}

// readTiles decodes a JSON array of tiles from path, or from stdin when path
// is "-". collectionID names rejected entries that carry no id.
func readTiles(path, collectionID string) (tileSet, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return tileSet{}, fmt.Errorf("open tiles: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeTiles(r, collectionID)
}

// decodeTiles fails only when the input is not a JSON array. A malformed
// entry is rejected and the remaining entries are kept.
func decodeTiles(r io.Reader, collectionID string) (tileSet, error) {
	var entries []json.RawMessage
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return tileSet{}, fmt.Errorf("decode tiles: %w", err)
	}

	set := tileSet{total: len(entries)}
	for i, raw := range entries {
		var e tileFile
		err := json.Unmarshal(raw, &e)
		var t raster.Tile
		if err == nil {
			t, err = e.tile()
		}
		if err != nil {
			set.rejects = append(set.rejects, &pipeline.TileError{
				Index:  i,
				TileID: export.TileID(raster.Tile{ID: e.ID}, collectionID, i),
				Err:    fmt.Errorf("decode: %w", err),
			})
			continue
		}
		set.tiles = append(set.tiles, t)
		set.ordinals = append(set.ordinals, i)
	}
	return set, nil
}

func (e tileFile) tile() (raster.Tile, error) {
	var ts time.Time
	if e.Timestamp != "" {
		var err error
		if ts, err = time.Parse(time.RFC3339, e.Timestamp); err != nil {
			return raster.Tile{}, fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	names := make([]string, 0, len(e.Bands))
	for name := range e.Bands {
		names = append(names, name)
	}
	sort.Strings(names)

	bands := make([]*raster.Band, 0, len(names))
	for _, name := range names {
		bf := e.Bands[name]
		values := make([]float64, len(bf.Values))
		for i, v := range bf.Values {
			if v == nil {
				values[i] = math.NaN()
				continue
			}
			values[i] = *v
		}
		b, err := raster.NewBand(name, e.Rows, e.Cols, values)
		if err != nil {
			return raster.Tile{}, err
		}
		b.CRS = bf.CRS
		bands = append(bands, b)
	}
	return raster.NewTile(e.ID, e.CRS, ts, bands...)
}
