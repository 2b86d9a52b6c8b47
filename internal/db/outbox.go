package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/vegetation.report/internal/export"
	"github.com/banshee-data/vegetation.report/internal/pipeline"
	"github.com/banshee-data/vegetation.report/internal/version"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run summarises a recorded pipeline run.
type Run struct {
	RunID           string `json:"run_id"`
	CollectionID    string `json:"collection_id"`
	Folder          string `json:"folder"`
	ToolVersion     string `json:"tool_version"`
	TileCount       int    `json:"tile_count"`
	DescriptorCount int    `json:"descriptor_count"`
	FailureCount    int    `json:"failure_count"`
	CreatedAt       int64  `json:"created_at"`
}

// PendingDescriptor is an outbox entry not yet marked as submitted.
type PendingDescriptor struct {
	DescriptorID  string
	RunID         string
	Ordinal       int
	ValidFraction float64
	CreatedAt     int64
	Descriptor    export.Descriptor
}

// TileFailure is a recorded per-tile failure.
type TileFailure struct {
	RunID     string `json:"run_id"`
	TileIndex int    `json:"tile_index"`
	TileID    string `json:"tile_id"`
	Error     string `json:"error"`
}

// RecordRun stores a run, its descriptors and its failures in one
// transaction and returns the generated run id. tileCount is the number of
// input tiles.
func (db *DB) RecordRun(ctx context.Context, cfg pipeline.RunConfig, tileCount int, res *pipeline.Result) (string, error) {
	if res == nil {
		return "", errors.New("record run: nil result")
	}
	if len(res.Reports) != len(res.Descriptors) {
		return "", fmt.Errorf("record run: %d reports for %d descriptors", len(res.Reports), len(res.Descriptors))
	}

	runID := uuid.New().String()
	createdAt := db.clock.Now().UnixNano()

	encoded := make([]string, len(res.Descriptors))
	for i, d := range res.Descriptors {
		data, err := json.Marshal(d)
		if err != nil {
			return "", fmt.Errorf("record run: encode descriptor %s: %w", d.TileID, err)
		}
		encoded[i] = string(data)
	}

	err := db.retryOnBusy(func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO runs (
				run_id, collection_id, folder, tool_version,
				tile_count, descriptor_count, failure_count, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, cfg.CollectionID, cfg.Folder, version.Version,
			tileCount, len(res.Descriptors), len(res.Failures), createdAt,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for i, d := range res.Descriptors {
			report := res.Reports[i]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO descriptors (
					descriptor_id, run_id, ordinal, tile_id,
					descriptor_json, valid_fraction, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), runID, report.Index, d.TileID,
				encoded[i], report.Mask.ValidFraction, createdAt,
			); err != nil {
				return fmt.Errorf("insert descriptor %s: %w", d.TileID, err)
			}
		}

		for _, f := range res.Failures {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tile_failures (run_id, tile_index, tile_id, error)
				VALUES (?, ?, ?, ?)`,
				runID, f.Index, f.TileID, f.Err.Error(),
			); err != nil {
				return fmt.Errorf("insert failure %s: %w", f.TileID, err)
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return runID, nil
}

// GetRun returns a recorded run by id.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := db.QueryRowContext(ctx, `
		SELECT run_id, collection_id, folder, tool_version,
		       tile_count, descriptor_count, failure_count, created_at
		FROM runs
		WHERE run_id = ?`, runID,
	).Scan(
		&r.RunID, &r.CollectionID, &r.Folder, &r.ToolVersion,
		&r.TileCount, &r.DescriptorCount, &r.FailureCount, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &r, nil
}

// ListFailures returns the failures recorded for a run, ordered by tile
// index.
func (db *DB) ListFailures(ctx context.Context, runID string) ([]TileFailure, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, tile_index, tile_id, error
		FROM tile_failures
		WHERE run_id = ?
		ORDER BY tile_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []TileFailure
	for rows.Next() {
		var f TileFailure
		if err := rows.Scan(&f.RunID, &f.TileIndex, &f.TileID, &f.Error); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// PendingDescriptors returns up to limit descriptors not yet submitted,
// oldest run first and in input order within a run. limit <= 0 returns all.
func (db *DB) PendingDescriptors(ctx context.Context, limit int) ([]PendingDescriptor, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT descriptor_id, run_id, ordinal, valid_fraction, created_at, descriptor_json
		FROM descriptors
		WHERE submitted_at IS NULL
		ORDER BY created_at, run_id, ordinal
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending descriptors: %w", err)
	}
	defer rows.Close()

	var out []PendingDescriptor
	for rows.Next() {
		var (
			p    PendingDescriptor
			body string
		)
		if err := rows.Scan(&p.DescriptorID, &p.RunID, &p.Ordinal, &p.ValidFraction, &p.CreatedAt, &body); err != nil {
			return nil, fmt.Errorf("scan pending descriptor: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &p.Descriptor); err != nil {
			return nil, fmt.Errorf("decode descriptor %s: %w", p.DescriptorID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSubmitted stamps the given descriptors as handed to the job
// submitter. Ids that are unknown or already submitted are ignored; the
// number of rows updated is returned.
func (db *DB) MarkSubmitted(ctx context.Context, descriptorIDs ...string) (int, error) {
	if len(descriptorIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(descriptorIDs)), ",")
	args := make([]interface{}, 0, len(descriptorIDs)+1)
	args = append(args, db.clock.Now().UnixNano())
	for _, id := range descriptorIDs {
		args = append(args, id)
	}

	var n int64
	err := db.retryOnBusy(func() error {
		res, err := db.ExecContext(ctx, `
			UPDATE descriptors
			SET submitted_at = ?
			WHERE submitted_at IS NULL AND descriptor_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark submitted: %w", err)
	}
	return int(n), nil
}
