// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus persists curated study records and filter-run audit data
// in a SQLite database under corpus/index/corpus.db.
// Implements: docs/ARCHITECTURE § Corpus Store.
package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/evidence-engine/internal/filter"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "corpus.db"

	// timeFormat is fixed-width so created_at sorts as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrNoRuns is returned by LatestRun when no filter run has been stored.
var ErrNoRuns = errors.New("no filter runs stored")

// Store manages the corpus SQLite database.
type Store struct {
	db         *sql.DB
	corpusDir  string
	maxResults int
}

// NewStore opens or creates the corpus database at
// corpusDir/index/corpus.db and creates the schema if it does not exist.
func NewStore(cfg types.CorpusConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.CorpusDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:         db,
		corpusDir:  cfg.CorpusDir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS filter_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			created_at TEXT NOT NULL,
			input INTEGER NOT NULL,
			retained INTEGER NOT NULL,
			rejected_all_tags INTEGER NOT NULL,
			counts TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			year INTEGER,
			design TEXT,
			sample_size INTEGER,
			quality_score REAL,
			tags TEXT,
			outcomes TEXT,
			recency_guaranteed TEXT,
			run_id TEXT NOT NULL REFERENCES filter_runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_design ON records(design)`,
		`CREATE INDEX IF NOT EXISTS idx_records_year ON records(year)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES filter_runs(id),
			record_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			include INTEGER NOT NULL,
			reason TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id)`,
		`CREATE TABLE IF NOT EXISTS removed_tags (
			run_id TEXT NOT NULL REFERENCES filter_runs(id),
			record_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (run_id, record_id, tag)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Run is the stored summary of one filter run.
type Run struct {
	ID              string           `json:"id" yaml:"id"`
	Mode            types.FilterMode `json:"mode" yaml:"mode"`
	CreatedAt       time.Time        `json:"created_at" yaml:"created_at"`
	Input           int              `json:"input" yaml:"input"`
	Retained        int              `json:"retained" yaml:"retained"`
	RejectedAllTags int              `json:"rejected_all_tags" yaml:"rejected_all_tags"`
	Counts          map[string]int   `json:"counts,omitempty" yaml:"counts,omitempty"`
}

// SaveRun stores a filter result in one transaction: the run summary, every
// decision, the removed-tag provenance, and an upsert of each retained
// record. A record retained again by a later run is replaced wholesale.
func (s *Store) SaveRun(ctx context.Context, res filter.Result, now time.Time) (Run, error) {
	run := Run{
		ID:              uuid.NewString(),
		Mode:            res.Mode,
		CreatedAt:       now.UTC(),
		Input:           res.Input,
		Retained:        len(res.Retained),
		RejectedAllTags: res.RejectedAllTags,
		Counts:          res.Counts,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	countsJSON, _ := json.Marshal(run.Counts)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO filter_runs (id, mode, created_at, input, retained, rejected_all_tags, counts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.CreatedAt.Format(timeFormat),
		run.Input, run.Retained, run.RejectedAllTags, string(countsJSON),
	)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}

	decStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO decisions (run_id, record_id, tag, include, reason) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("preparing decision insert: %w", err)
	}
	defer decStmt.Close()

	for _, d := range res.Decisions {
		if _, err := decStmt.ExecContext(ctx, run.ID, d.RecordID, d.Tag, d.Include, string(d.Reason)); err != nil {
			return Run{}, fmt.Errorf("inserting decision %s/%s: %w", d.RecordID, d.Tag, err)
		}
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, year, design, sample_size, quality_score, tags, outcomes, recency_guaranteed, run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			year=excluded.year, design=excluded.design, sample_size=excluded.sample_size,
			quality_score=excluded.quality_score, tags=excluded.tags, outcomes=excluded.outcomes,
			recency_guaranteed=excluded.recency_guaranteed, run_id=excluded.run_id`)
	if err != nil {
		return Run{}, fmt.Errorf("preparing record upsert: %w", err)
	}
	defer recStmt.Close()

	remStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO removed_tags (run_id, record_id, tag, reason) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("preparing removed-tag insert: %w", err)
	}
	defer remStmt.Close()

	for _, r := range res.Retained {
		tagsJSON, _ := json.Marshal(r.Tags)
		outcomesJSON, _ := json.Marshal(r.Outcomes)
		recencyJSON, _ := json.Marshal(r.Provenance.RecencyGuaranteed)
		var sampleSize sql.NullInt64
		if r.SampleSize != nil {
			sampleSize = sql.NullInt64{Int64: int64(*r.SampleSize), Valid: true}
		}
		_, err := recStmt.ExecContext(ctx,
			r.ID, r.Year, string(r.Design), sampleSize, r.QualityScore,
			string(tagsJSON), string(outcomesJSON), string(recencyJSON), run.ID,
		)
		if err != nil {
			return Run{}, fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
		for _, rt := range r.Provenance.RemovedTags {
			if _, err := remStmt.ExecContext(ctx, run.ID, r.ID, rt.Tag, string(rt.Reason)); err != nil {
				return Run{}, fmt.Errorf("inserting removed tag %s/%s: %w", r.ID, rt.Tag, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

// Runs lists stored filter runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, created_at, input, retained, rejected_all_tags, counts
		 FROM filter_runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			mode       string
			createdAt  string
			countsJSON sql.NullString
		)
		if err := rows.Scan(&r.ID, &mode, &createdAt, &r.Input, &r.Retained, &r.RejectedAllTags, &countsJSON); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Mode = types.FilterMode(mode)
		r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		if countsJSON.Valid {
			json.Unmarshal([]byte(countsJSON.String), &r.Counts)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent filter run. Its ID identifies the
// current evidence index version.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

// Decisions returns the per-tag decisions of one run in evaluation order.
func (s *Store) Decisions(ctx context.Context, runID string) ([]types.PaperQualityDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, tag, include, reason FROM decisions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []types.PaperQualityDecision
	for rows.Next() {
		var (
			d      types.PaperQualityDecision
			reason string
		)
		if err := rows.Scan(&d.RecordID, &d.Tag, &d.Include, &reason); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Reason = types.DecisionReason(reason)
		out = append(out, d)
	}
	return out, rows.Err()
}
