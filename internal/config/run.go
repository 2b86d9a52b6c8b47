package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/vegetation.report/internal/cloudmask"
	"github.com/banshee-data/vegetation.report/internal/export"
	"github.com/banshee-data/vegetation.report/internal/geometry"
	"github.com/banshee-data/vegetation.report/internal/pipeline"
	"github.com/banshee-data/vegetation.report/internal/raster"
)

// DateLayout is the format of start_date and end_date.
const DateLayout = "2006-01-02"

// DefaultCollectionID prefixes synthesised tile ids.
const DefaultCollectionID = "COPERNICUS_S2_SR_HARMONIZED"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// PointBuffer describes a circular region around a lon/lat point.
type PointBuffer struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	BufferM float64 `json:"buffer_m"`
}

// BandFile overrides how one band is read.
type BandFile struct {
	Name        string   `json:"name"`
	ScaleFactor *float64 `json:"scale_factor,omitempty"`
	Optional    bool     `json:"optional,omitempty"`
}

// RunFile is the on-disk form of a run configuration.
type RunFile struct {
	// Region is a GeoJSON geometry. Point is used when Region is absent.
	Region json.RawMessage `json:"region,omitempty"`
	Point  *PointBuffer    `json:"point,omitempty"`

	StartDate    *string `json:"start_date,omitempty"` // "2006-01-02"
	EndDate      *string `json:"end_date,omitempty"`
	Folder       *string `json:"folder,omitempty"`
	CollectionID *string `json:"collection_id,omitempty"`

	Scale         *float64   `json:"scale,omitempty"`
	OutputBands   []string   `json:"output_bands,omitempty"`
	ReferenceBand *string    `json:"reference_band,omitempty"`
	Bands         []BandFile `json:"bands,omitempty"`
	ValidClasses  []int      `json:"valid_classes,omitempty"`

	// NoData is the fill value for masked pixels; omitted means NaN.
	NoData  *float64 `json:"no_data,omitempty"`
	Workers *int     `json:"workers,omitempty"`
}

// LoadRunFile loads and validates a RunFile. The file must have a .json
// extension and be under 1MB.
func LoadRunFile(path string) (*RunFile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RunFile{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadRunConfig loads a run file and converts it to a pipeline.RunConfig.
func LoadRunConfig(path string) (pipeline.RunConfig, error) {
	f, err := LoadRunFile(path)
	if err != nil {
		return pipeline.RunConfig{}, err
	}
	return f.RunConfig()
}

// Validate checks that the configuration values are valid.
func (c *RunFile) Validate() error {
	if _, err := c.GetRegion(); err != nil {
		return err
	}

	if c.GetFolder() == "" {
		return errors.New("folder must be set")
	}

	start, err := parseDate("start_date", c.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("end_date", c.EndDate)
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("end_date %s is before start_date %s", *c.EndDate, *c.StartDate)
	}

	if c.Scale != nil && (*c.Scale <= 0 || math.IsInf(*c.Scale, 0)) {
		return fmt.Errorf("scale must be positive, got %v", *c.Scale)
	}

	for _, b := range c.Bands {
		if b.Name == "" {
			return errors.New("band entry without a name")
		}
		if b.ScaleFactor != nil && *b.ScaleFactor < 0 {
			return fmt.Errorf("band %s: scale_factor must be non-negative, got %v", b.Name, *b.ScaleFactor)
		}
	}

	for _, class := range c.ValidClasses {
		if class < cloudmask.NoData || class > cloudmask.SnowOrIce {
			return fmt.Errorf("valid_classes: %d is not a scene classification code", class)
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	return nil
}

func parseDate(field string, v *string) (time.Time, error) {
	if v == nil || *v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, *v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s '%s': %w", field, *v, err)
	}
	return t, nil
}

// GetRegion returns the configured region: the GeoJSON geometry if present,
// otherwise the buffered point.
func (c *RunFile) GetRegion() (orb.Geometry, error) {
	if len(c.Region) > 0 && string(c.Region) != "null" {
		g, err := geometry.Parse(c.Region)
		if err != nil {
			return nil, fmt.Errorf("invalid region: %w", err)
		}
		return g, nil
	}
	if c.Point != nil {
		poly, err := geometry.BufferedPoint(orb.Point{c.Point.Lon, c.Point.Lat}, c.Point.BufferM, geometry.DefaultSegments)
		if err != nil {
			return nil, fmt.Errorf("invalid point: %w", err)
		}
		return poly, nil
	}
	return nil, errors.New("either region or point must be set")
}

// GetFolder returns the folder value or the empty string.
func (c *RunFile) GetFolder() string {
	if c.Folder == nil {
		return ""
	}
	return *c.Folder
}

// GetCollectionID returns the collection_id value or the default.
func (c *RunFile) GetCollectionID() string {
	if c.CollectionID == nil || *c.CollectionID == "" {
		return DefaultCollectionID
	}
	return *c.CollectionID
}

// GetScale returns the scale value or the default.
func (c *RunFile) GetScale() float64 {
	if c.Scale == nil {
		return export.DefaultScale
	}
	return *c.Scale
}

// GetOutputBands returns the output_bands value or the default.
func (c *RunFile) GetOutputBands() []string {
	if len(c.OutputBands) == 0 {
		return export.DefaultBandNames()
	}
	return append([]string(nil), c.OutputBands...)
}

// GetReferenceBand returns the reference_band value or the default.
func (c *RunFile) GetReferenceBand() string {
	if c.ReferenceBand == nil || *c.ReferenceBand == "" {
		return export.DefaultReferenceBand
	}
	return *c.ReferenceBand
}

// GetBandSpecs returns the default band specs with any per-band overrides
// applied. Bands not in the default set are appended.
func (c *RunFile) GetBandSpecs() []raster.BandSpec {
	specs := raster.DefaultBandSpecs()
	for _, b := range c.Bands {
		spec := raster.BandSpec{Name: b.Name, ScaleFactor: 1, Optional: b.Optional}
		if b.ScaleFactor != nil {
			spec.ScaleFactor = *b.ScaleFactor
		}
		replaced := false
		for i := range specs {
			if specs[i].Name == b.Name {
				if b.ScaleFactor == nil {
					spec.ScaleFactor = specs[i].ScaleFactor
				}
				specs[i] = spec
				replaced = true
				break
			}
		}
		if !replaced {
			specs = append(specs, spec)
		}
	}
	return specs
}

// GetValidClasses returns the valid_classes value or the default.
func (c *RunFile) GetValidClasses() []int {
	if len(c.ValidClasses) == 0 {
		return append([]int(nil), cloudmask.DefaultValidClasses...)
	}
	return append([]int(nil), c.ValidClasses...)
}

// GetWorkers returns the workers value or the default (0, one per CPU).
func (c *RunFile) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// RunConfig converts the file into a pipeline.RunConfig. The file is
// validated first.
func (c *RunFile) RunConfig() (pipeline.RunConfig, error) {
	if err := c.Validate(); err != nil {
		return pipeline.RunConfig{}, err
	}

	region, err := c.GetRegion()
	if err != nil {
		return pipeline.RunConfig{}, err
	}
	start, _ := parseDate("start_date", c.StartDate)
	end, _ := parseDate("end_date", c.EndDate)

	cfg := pipeline.RunConfig{
		Region:        region,
		StartDate:     start,
		EndDate:       end,
		Folder:        c.GetFolder(),
		CollectionID:  c.GetCollectionID(),
		Scale:         c.GetScale(),
		OutputBands:   c.GetOutputBands(),
		ReferenceBand: c.GetReferenceBand(),
		BandSpecs:     c.GetBandSpecs(),
		ValidClasses:  c.GetValidClasses(),
		Workers:       c.GetWorkers(),
	}
	if c.NoData != nil {
		v := *c.NoData
		cfg.NoData = &v
	}
	return cfg, nil
}
