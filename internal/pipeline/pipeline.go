package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/vegetation.report/internal/cloudmask"
	"github.com/banshee-data/vegetation.report/internal/export"
	"github.com/banshee-data/vegetation.report/internal/indices"
	"github.com/banshee-data/vegetation.report/internal/raster"
)

// RunConfig is the immutable configuration of one run. Zero-valued fields
// take the package defaults of the stage that reads them.
type RunConfig struct {
	Region       orb.Geometry
	StartDate    time.Time
	EndDate      time.Time
	Folder       string
	CollectionID string

	Scale         float64
	OutputBands   []string
	ReferenceBand string
	BandSpecs     []raster.BandSpec
	ValidClasses  []int

	// NoData is written to masked pixels. Nil means NaN.
	NoData *float64

	// Workers bounds concurrent tiles. Zero or less uses GOMAXPROCS.
	Workers int
}

// NoDataValue returns the effective no-data value.
func (c RunConfig) NoDataValue() float64 {
	if c.NoData == nil {
		return cloudmask.NoDataNaN
	}
	return *c.NoData
}

// WorkerCount returns the effective concurrency bound.
func (c RunConfig) WorkerCount() int {
	if c.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

// Validate checks the fields that have no sensible default.
func (c RunConfig) Validate() error {
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
	}
	if c.NoData != nil && math.IsInf(*c.NoData, 0) {
		return errors.New("no-data value must be finite or NaN")
	}
	return nil
}

// TileError records a tile that could not be processed.
type TileError struct {
	Index  int
	TileID string
	Err    error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %d (%s): %v", e.Index, e.TileID, e.Err)
}

func (e *TileError) Unwrap() error { return e.Err }

// TileReport summarises a processed tile.
type TileReport struct {
	Index  int               `json:"index"`
	TileID string            `json:"tile_id"`
	Mask   cloudmask.Metrics `json:"mask"`

	// Means holds the mean of each derived index over valid, finite pixels.
	// An index with no such pixels has a NaN mean.
	Means map[string]float64 `json:"-"`
}

// Result is the outcome of a run. Descriptors and Reports follow input
// order with failed tiles omitted; Failures are sorted by index.
type Result struct {
	Descriptors []export.Descriptor
	Reports     []TileReport
	Failures    []*TileError
}

// Err joins the per-tile failures, or returns nil when every tile succeeded.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// AddFailures records tiles that failed before reaching the pipeline, such
// as entries that could not be decoded. Failures stay sorted by index.
func (r *Result) AddFailures(fs ...*TileError) {
	r.Failures = append(r.Failures, fs...)
	r.sortFailures()
}

func (r *Result) sortFailures() {
	sort.SliceStable(r.Failures, func(i, j int) bool {
		return r.Failures[i].Index < r.Failures[j].Index
	})
}

// Pipeline processes tiles with a fixed configuration. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	cfg     RunConfig
	specs   []raster.BandSpec
	masker  MaskStage
	indexer IndexStage
	builder DescriptorStage
}

// New validates cfg and assembles the default stages.
func New(cfg RunConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	builder, err := export.NewBuilder(export.Config{
		BandNames:     cfg.OutputBands,
		ReferenceBand: cfg.ReferenceBand,
		Scale:         cfg.Scale,
		Folder:        cfg.Folder,
		CollectionID:  cfg.CollectionID,
		Region:        cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("export builder: %w", err)
	}

	return NewWithStages(cfg, SCLMasker(cfg.ValidClasses), indices.NewCalculator(), builder), nil
}

// NewWithStages assembles a pipeline from explicit stages. cfg is not
// validated.
func NewWithStages(cfg RunConfig, masker MaskStage, indexer IndexStage, builder DescriptorStage) *Pipeline {
	specs := cfg.BandSpecs
	if len(specs) == 0 {
		specs = raster.DefaultBandSpecs()
	}
	cfg.BandSpecs = append([]raster.BandSpec(nil), specs...)
	cfg.OutputBands = append([]string(nil), cfg.OutputBands...)
	cfg.ValidClasses = append([]int(nil), cfg.ValidClasses...)
	cfg.Region = orb.Clone(cfg.Region)

	return &Pipeline{
		cfg:     cfg,
		specs:   cfg.BandSpecs,
		masker:  masker,
		indexer: indexer,
		builder: builder,
	}
}

// Run processes tiles concurrently. Per-tile failures are collected in the
// result and never stop the run; a cancelled context aborts it with
// ctx.Err(). An empty input yields an empty result.
func Run(ctx context.Context, tiles []raster.Tile, cfg RunConfig) (*Result, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, tiles)
}

type outcome struct {
	desc   export.Descriptor
	report TileReport
	err    error
}

// Run processes tiles with p's configuration. See the package-level Run.
func (p *Pipeline) Run(ctx context.Context, tiles []raster.Tile) (*Result, error) {
	return p.RunAt(ctx, tiles, nil)
}

// RunAt is Run for a subset of a larger collection: ordinals[i] is the
// position of tiles[i] in that collection and is used for reported indices
// and synthesised ids. Nil ordinals number tiles from zero.
func (p *Pipeline) RunAt(ctx context.Context, tiles []raster.Tile, ordinals []int) (*Result, error) {
	if ordinals != nil && len(ordinals) != len(tiles) {
		return nil, fmt.Errorf("%d ordinals for %d tiles", len(ordinals), len(tiles))
	}
	if len(tiles) == 0 {
		diagf("run: no tiles")
		return &Result{}, nil
	}
	ordinal := func(i int) int {
		if ordinals == nil {
			return i
		}
		return ordinals[i]
	}

	start := time.Now()
	outcomes := make([]outcome, len(tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.WorkerCount())
	for i := range tiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, r, err := p.ProcessTile(tiles[i], ordinal(i))
			outcomes[i] = outcome{desc: d, report: r, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Descriptors: make([]export.Descriptor, 0, len(tiles)),
		Reports:     make([]TileReport, 0, len(tiles)),
	}
	for i, o := range outcomes {
		if o.err != nil {
			te := &TileError{
				Index:  ordinal(i),
				TileID: export.TileID(tiles[i], p.cfg.CollectionID, ordinal(i)),
				Err:    o.err,
			}
			opsf("%v", te)
			res.Failures = append(res.Failures, te)
			continue
		}
		res.Descriptors = append(res.Descriptors, o.desc)
		res.Reports = append(res.Reports, o.report)
	}
	res.sortFailures()

	diagf("run: %d tiles, %d descriptors, %d failures in %v",
		len(tiles), len(res.Descriptors), len(res.Failures), time.Since(start))
	return res, nil
}

// ProcessTile runs every stage on a single tile. ordinal is the tile's
// position in the input and feeds the synthesised id.
func (p *Pipeline) ProcessTile(t raster.Tile, ordinal int) (export.Descriptor, TileReport, error) {
	p.checkDate(t, ordinal)

	working, err := raster.Extract(t, p.specs)
	if err != nil {
		return export.Descriptor{}, TileReport{}, fmt.Errorf("extract bands: %w", err)
	}

	mask, err := p.masker.Mask(working)
	if err != nil {
		return export.Descriptor{}, TileReport{}, fmt.Errorf("build mask: %w", err)
	}
	metrics := cloudmask.ComputeMetrics(mask)

	withIndices, err := p.indexer.Compute(working)
	if err != nil {
		return export.Descriptor{}, TileReport{}, fmt.Errorf("compute indices: %w", err)
	}

	masked, err := cloudmask.Apply(withIndices, mask, p.cfg.NoDataValue())
	if err != nil {
		return export.Descriptor{}, TileReport{}, fmt.Errorf("apply mask: %w", err)
	}

	desc, err := p.builder.Build(masked, ordinal)
	if err != nil {
		return export.Descriptor{}, TileReport{}, fmt.Errorf("build descriptor: %w", err)
	}

	report := TileReport{
		Index:  ordinal,
		TileID: desc.TileID,
		Mask:   metrics,
		Means:  indexMeans(withIndices, mask),
	}
	tracef("tile %d (%s): %d/%d valid pixels (%.3f)",
		ordinal, desc.TileID, metrics.ValidPixels, metrics.TotalPixels, metrics.ValidFraction)
	return desc, report, nil
}

func (p *Pipeline) checkDate(t raster.Tile, ordinal int) {
	if t.Timestamp.IsZero() {
		return
	}
	if (!p.cfg.StartDate.IsZero() && t.Timestamp.Before(p.cfg.StartDate)) ||
		(!p.cfg.EndDate.IsZero() && !t.Timestamp.Before(p.cfg.EndDate.AddDate(0, 0, 1))) {
		diagf("tile %d (%s): acquired %s, outside run window",
			ordinal, export.TileID(t, p.cfg.CollectionID, ordinal), t.Timestamp.Format(time.RFC3339))
	}
}

// indexMeans averages every derived index band that is present in t over
// the valid, finite pixels of m.
func indexMeans(t raster.Tile, m cloudmask.Mask) map[string]float64 {
	valid := m.Values()
	means := make(map[string]float64)
	for _, name := range indices.Names() {
		b, ok := t.Band(name)
		if !ok {
			continue
		}
		vals := b.Values()
		kept := make([]float64, 0, len(vals))
		for i, v := range vals {
			if valid[i] && !math.IsNaN(v) && !math.IsInf(v, 0) {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			means[name] = math.NaN()
			continue
		}
		means[name] = stat.Mean(kept, nil)
	}
	return means
}
