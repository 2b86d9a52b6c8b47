// Command tile-indices masks a collection of Sentinel-2 tiles, derives the
// spectral index bands and writes one export descriptor per tile.
//
// Usage:
//
//	tile-indices -config run.json -tiles tiles.json [-db outbox.db] [-out descriptors.json]
//
// Descriptors, per-tile reports and failures are written as JSON to -out
// (stdout by default). With -db the run is also recorded in the export
// outbox for the job submitter.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/vegetation.report/internal/config"
	"github.com/banshee-data/vegetation.report/internal/db"
	"github.com/banshee-data/vegetation.report/internal/export"
	"github.com/banshee-data/vegetation.report/internal/pipeline"
	"github.com/banshee-data/vegetation.report/internal/version"
)

type options struct {
	configPath string
	tilesPath  string
	dbPath     string
	workers    int
	verbose    bool
}

type reportJSON struct {
	pipeline.TileReport
	Means map[string]*float64 `json:"means"`
}

type failureJSON struct {
	Index  int    `json:"index"`
	TileID string `json:"tile_id"`
	Error  string `json:"error"`
}

type output struct {
	RunID       string              `json:"run_id,omitempty"`
	Descriptors []export.Descriptor `json:"descriptors"`
	Reports     []reportJSON        `json:"reports"`
	Failures    []failureJSON       `json:"failures"`
}

func main() {
	var opts options
	var outPath string
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "path to run configuration (.json)")
	flag.StringVar(&opts.tilesPath, "tiles", "", "path to tile collection (.json), or - for stdin")
	flag.StringVar(&opts.dbPath, "db", "", "optional path to sqlite export outbox")
	flag.StringVar(&outPath, "out", "", "write output to this file instead of stdout")
	flag.IntVar(&opts.workers, "workers", -1, "concurrent tiles; -1 uses the config value")
	flag.BoolVar(&opts.verbose, "v", false, "log per-tile mask statistics")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("tile-indices", version.String())
		return
	}
	if opts.configPath == "" || opts.tilesPath == "" {
		log.Fatalf("-config and -tiles must be provided")
	}

	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, out, os.Stderr); err != nil {
		log.Fatalf("tile-indices: %v", err)
	}
}

// run executes one pipeline run. Logs go to logw.
func run(ctx context.Context, opts options, out, logw io.Writer) error {
	cfg, err := config.LoadRunConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.workers >= 0 {
		cfg.Workers = opts.workers
	}

	set, err := readTiles(opts.tilesPath, cfg.CollectionID)
	if err != nil {
		return err
	}

	var trace io.Writer
	if opts.verbose {
		trace = logw
	}
	pipeline.SetLogWriters(logw, logw, trace)

	logger := log.New(logw, "[tile-indices] ", log.LstdFlags)
	for _, te := range set.rejects {
		logger.Printf("skipping %v", te)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	res, err := p.RunAt(ctx, set.tiles, set.ordinals)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	res.AddFailures(set.rejects...)

	o := output{
		Descriptors: append([]export.Descriptor{}, res.Descriptors...),
		Reports:     make([]reportJSON, len(res.Reports)),
		Failures:    make([]failureJSON, len(res.Failures)),
	}
	for i, r := range res.Reports {
		o.Reports[i] = reportJSON{TileReport: r, Means: finiteMeans(r.Means)}
	}
	for i, f := range res.Failures {
		o.Failures[i] = failureJSON{Index: f.Index, TileID: f.TileID, Error: f.Err.Error()}
	}

	if opts.dbPath != "" {
		outbox, err := db.NewDB(opts.dbPath)
		if err != nil {
			return fmt.Errorf("open outbox: %w", err)
		}
		defer outbox.Close()

		if o.RunID, err = outbox.RecordRun(ctx, cfg, set.total, res); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if set.total > 0 && len(res.Descriptors) == 0 {
		return errors.New("every tile failed")
	}
	return nil
}

// finiteMeans maps NaN means to null so the report stays valid JSON.
func finiteMeans(means map[string]float64) map[string]*float64 {
	out := make(map[string]*float64, len(means))
	for name, v := range means {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[name] = nil
			continue
		}
		v := v
		out[name] = &v
	}
	return out
}
