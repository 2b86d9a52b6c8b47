package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vegetation.report/internal/cloudmask"
	"github.com/banshee-data/vegetation.report/internal/export"
	"github.com/banshee-data/vegetation.report/internal/indices"
	"github.com/banshee-data/vegetation.report/internal/raster"
	"github.com/banshee-data/vegetation.report/internal/testutil"
)

var testRegion = orb.Polygon{orb.Ring{{16.3, 48.1}, {16.4, 48.1}, {16.4, 48.2}, {16.3, 48.2}, {16.3, 48.1}}}

func testConfig() RunConfig {
	return RunConfig{
		Region:       testRegion,
		StartDate:    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		Folder:       "s2-indices",
		CollectionID: "COPERNICUS_S2",
	}
}

func bandValues(t *testing.T, d export.Descriptor, name string) []float64 {
	t.Helper()
	b, err := d.Image().Require(name)
	require.NoError(t, err)
	return b.Values()
}

func TestRun_ReferenceScenario(t *testing.T) {
	t.Parallel()

	tile := testutil.UniformTile(t, "S2A_T33UXP", 2, 2, testutil.Vegetated)
	res, err := Run(context.Background(), []raster.Tile{tile}, testConfig())
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Len(t, res.Descriptors, 1)

	d := res.Descriptors[0]
	assert.Equal(t, "S2A_T33UXP", d.TileID)
	assert.Equal(t, "EPSG:32633", d.CRS)
	assert.Equal(t, 10.0, d.Scale)
	assert.Equal(t, "s2-indices", d.Folder)
	assert.Equal(t, []string{"SCL", "NDVI", "EVI", "kNDVI", "NIRv", "NDWI", "NMDI"}, d.BandNames())

	for _, v := range bandValues(t, d, indices.NDVI) {
		assert.InDelta(t, 1.0/3.0, v, 1e-12)
	}
	for _, v := range bandValues(t, d, indices.NDWI) {
		assert.InDelta(t, -0.6, v, 1e-12)
	}
	for _, v := range bandValues(t, d, indices.NMDI) {
		assert.InDelta(t, 0.6, v, 1e-12)
	}
	for _, v := range bandValues(t, d, indices.EVI) {
		assert.InDelta(t, 0.5/2.225, v, 1e-12)
	}

	require.Len(t, res.Reports, 1)
	r := res.Reports[0]
	assert.Equal(t, cloudmask.Metrics{TotalPixels: 4, ValidPixels: 4, ValidFraction: 1}, r.Mask)
	assert.InDelta(t, 1.0/3.0, r.Means[indices.NDVI], 1e-12)
	assert.InDelta(t, 1.0/3.0*0.4, r.Means[indices.NIRv], 1e-12)
}

func TestRun_OrderAndFailures(t *testing.T) {
	t.Parallel()

	tiles := []raster.Tile{
		testutil.UniformTile(t, "a", 2, 2, testutil.Vegetated),
		testutil.UniformTile(t, "b", 2, 2, testutil.Vegetated),
		testutil.UniformTile(t, "c", 2, 2, testutil.Vegetated, testutil.WithoutBand(raster.NIR)),
		testutil.UniformTile(t, "d", 2, 2, testutil.Vegetated),
		testutil.UniformTile(t, "e", 2, 2, testutil.Vegetated),
	}

	cfg := testConfig()
	cfg.Workers = 3
	res, err := Run(context.Background(), tiles, cfg)
	require.NoError(t, err)

	var ids []string
	for _, d := range res.Descriptors {
		ids = append(ids, d.TileID)
	}
	assert.Equal(t, []string{"a", "b", "d", "e"}, ids)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, 2, f.Index)
	assert.Equal(t, "c", f.TileID)

	var missing *raster.MissingBandError
	require.True(t, errors.As(f, &missing))
	assert.Equal(t, raster.NIR, missing.Band)
	assert.True(t, errors.Is(res.Err(), raster.ErrMissingBand))

	require.Len(t, res.Reports, 4)
	assert.Equal(t, 3, res.Reports[2].Index)
}

func TestRun_EmptyInput(t *testing.T) {
	t.Parallel()

	res, err := Run(context.Background(), nil, testConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Descriptors)
	assert.Empty(t, res.Failures)
	assert.NoError(t, res.Err())
}

func TestRun_AllCloud(t *testing.T) {
	t.Parallel()

	tile := testutil.UniformTile(t, "cloudy", 2, 2, testutil.Vegetated, testutil.WithSCL(3, 3, 3, 3))
	res, err := Run(context.Background(), []raster.Tile{tile}, testConfig())
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)

	d := res.Descriptors[0]
	for _, name := range d.BandNames() {
		for _, v := range bandValues(t, d, name) {
			assert.True(t, math.IsNaN(v), "band %s should be fully masked", name)
		}
	}

	r := res.Reports[0]
	assert.Equal(t, 0, r.Mask.ValidPixels)
	assert.True(t, math.IsNaN(r.Means[indices.NDVI]))
}

func TestRun_PartialMaskAndNoData(t *testing.T) {
	t.Parallel()

	tile := testutil.UniformTile(t, "mixed", 2, 2, testutil.Vegetated, testutil.WithSCL(4, 3, 5, 8))

	cfg := testConfig()
	noData := -9999.0
	cfg.NoData = &noData
	res, err := Run(context.Background(), []raster.Tile{tile}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)

	ndvi := bandValues(t, res.Descriptors[0], indices.NDVI)
	want := []float64{1.0 / 3.0, -9999, 1.0 / 3.0, -9999}
	if diff := cmp.Diff(want, ndvi, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("NDVI mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{4, -9999, 5, -9999}, bandValues(t, res.Descriptors[0], raster.SCL))
	assert.InDelta(t, 0.5, res.Reports[0].Mask.ValidFraction, 1e-12)
}

func TestRun_SynthesisedIDs(t *testing.T) {
	t.Parallel()

	tiles := []raster.Tile{
		testutil.UniformTile(t, "", 1, 1, testutil.Vegetated),
		testutil.UniformTile(t, "named", 1, 1, testutil.Vegetated),
		testutil.UniformTile(t, "", 1, 1, testutil.Vegetated),
	}
	res, err := Run(context.Background(), tiles, testConfig())
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 3)

	assert.Equal(t, "COPERNICUS_S2_image_0", res.Descriptors[0].TileID)
	assert.Equal(t, "named", res.Descriptors[1].TileID)
	assert.Equal(t, "COPERNICUS_S2_image_2", res.Descriptors[2].TileID)
	assert.Equal(t, "COPERNICUS_S2_image_2", res.Descriptors[2].FileNamePrefix)
}

func TestRunAt_KeepsCallerOrdinals(t *testing.T) {
	t.Parallel()

	p, err := New(testConfig())
	require.NoError(t, err)

	tiles := []raster.Tile{
		testutil.UniformTile(t, "", 1, 1, testutil.Vegetated),
		testutil.UniformTile(t, "", 1, 1, testutil.Vegetated, testutil.WithoutBand(raster.NIR)),
		testutil.UniformTile(t, "", 1, 1, testutil.Vegetated),
	}
	res, err := p.RunAt(context.Background(), tiles, []int{0, 3, 4})
	require.NoError(t, err)

	require.Len(t, res.Descriptors, 2)
	assert.Equal(t, "COPERNICUS_S2_image_0", res.Descriptors[0].TileID)
	assert.Equal(t, "COPERNICUS_S2_image_4", res.Descriptors[1].TileID)
	assert.Equal(t, 4, res.Reports[1].Index)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 3, res.Failures[0].Index)
	assert.Equal(t, "COPERNICUS_S2_image_3", res.Failures[0].TileID)

	res.AddFailures(
		&TileError{Index: 5, TileID: "late", Err: errors.New("decode")},
		&TileError{Index: 1, TileID: "early", Err: errors.New("decode")},
	)
	var order []int
	for _, f := range res.Failures {
		order = append(order, f.Index)
	}
	assert.Equal(t, []int{1, 3, 5}, order)

	_, err = p.RunAt(context.Background(), tiles, []int{0})
	assert.Error(t, err)
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	var tiles []raster.Tile
	for i := 0; i < 12; i++ {
		scl := []float64{4, float64(i % 12), 5, 9}
		tiles = append(tiles, testutil.UniformTile(t, fmt.Sprintf("tile-%02d", i), 2, 2, testutil.Reflectance{
			Blue: 400 + float64(i), Green: 900, Red: 1800 + 10*float64(i), NIR: 4200, SWIR1: 1500,
		}, testutil.WithSCL(scl...)))
	}

	snapshot := func(workers int) ([]byte, map[string][]float64) {
		cfg := testConfig()
		cfg.Workers = workers
		res, err := Run(context.Background(), tiles, cfg)
		require.NoError(t, err)

		data, err := json.Marshal(res.Descriptors)
		require.NoError(t, err)
		pixels := make(map[string][]float64)
		for _, d := range res.Descriptors {
			for _, name := range d.BandNames() {
				pixels[d.TileID+"/"+name] = bandValues(t, d, name)
			}
		}
		return data, pixels
	}

	serialJSON, serialPixels := snapshot(1)
	parallelJSON, parallelPixels := snapshot(8)

	assert.JSONEq(t, string(serialJSON), string(parallelJSON))
	if diff := cmp.Diff(serialPixels, parallelPixels, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("pixel mismatch between runs (-serial +parallel):\n%s", diff)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tiles := []raster.Tile{testutil.UniformTile(t, "a", 1, 1, testutil.Vegetated)}
	res, err := Run(ctx, tiles, testConfig())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"no region", func(c *RunConfig) { c.Region = nil }},
		{"no folder", func(c *RunConfig) { c.Folder = "" }},
		{"negative scale", func(c *RunConfig) { c.Scale = -1 }},
		{"dates reversed", func(c *RunConfig) { c.EndDate = c.StartDate.AddDate(0, 0, -1) }},
		{"infinite no-data", func(c *RunConfig) { v := math.Inf(1); c.NoData = &v }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunConfig_Defaults(t *testing.T) {
	t.Parallel()

	var cfg RunConfig
	assert.True(t, math.IsNaN(cfg.NoDataValue()))
	assert.Positive(t, cfg.WorkerCount())

	cfg.Workers = 3
	assert.Equal(t, 3, cfg.WorkerCount())
}

// gatedIndexer fails tiles with the configured id and records the peak
// number of concurrent calls.
type gatedIndexer struct {
	fail   string
	mu     sync.Mutex
	active int
	peak   int
	calls  atomic.Int64
}

func (g *gatedIndexer) Compute(t raster.Tile) (raster.Tile, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.active++
	if g.active > g.peak {
		g.peak = g.active
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	time.Sleep(2 * time.Millisecond)
	if t.ID == g.fail {
		return raster.Tile{}, errors.New("index stage failed")
	}
	return indices.NewCalculator().Compute(t)
}

func TestRun_StageFailureIsolatedAndBounded(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Workers = 2
	builder, err := export.NewBuilder(export.Config{Folder: cfg.Folder, CollectionID: cfg.CollectionID, Region: cfg.Region})
	require.NoError(t, err)

	indexer := &gatedIndexer{fail: "t3"}
	p := NewWithStages(cfg, SCLMasker(nil), indexer, builder)

	var tiles []raster.Tile
	for i := 0; i < 8; i++ {
		tiles = append(tiles, testutil.UniformTile(t, fmt.Sprintf("t%d", i), 1, 1, testutil.Vegetated))
	}

	res, err := p.Run(context.Background(), tiles)
	require.NoError(t, err)

	assert.Equal(t, int64(8), indexer.calls.Load())
	assert.LessOrEqual(t, indexer.peak, 2)
	assert.Len(t, res.Descriptors, 7)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 3, res.Failures[0].Index)
	assert.Contains(t, res.Failures[0].Error(), "tile 3 (t3)")
}

func TestSCLMasker_CustomClasses(t *testing.T) {
	t.Parallel()

	tile := testutil.UniformTile(t, "water", 1, 3, testutil.Vegetated, testutil.WithSCL(4, 6, 5))
	m, err := SCLMasker([]int{cloudmask.Water}).Mask(tile)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, m.Values())
}
