// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// QueryOptions holds filters for corpus queries. Zero values match all.
type QueryOptions struct {
	// Tag keeps records carrying this topic tag.
	Tag string

	// Design keeps records of this study design.
	Design types.StudyDesign

	// MinYear keeps records published in or after this year.
	MinYear int

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

const selectRecords = `SELECT r.id, r.year, r.design, r.sample_size, r.quality_score,
	r.tags, r.outcomes, r.recency_guaranteed, r.run_id
FROM records r
WHERE 1=1`

// Retrieve returns stored records matching opts, newest first (year
// descending, then id descending). Each record carries the removed-tag
// provenance of the run that last retained it.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]types.CuratedRecord, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(selectRecords)

	if opts.Tag != "" {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(r.tags) WHERE value = ?)`)
		args = append(args, opts.Tag)
	}
	if opts.Design != "" {
		qb.WriteString(` AND r.design = ?`)
		args = append(args, string(opts.Design))
	}
	if opts.MinYear > 0 {
		qb.WriteString(` AND r.year >= ?`)
		args = append(args, opts.MinYear)
	}

	qb.WriteString(` ORDER BY r.year DESC, r.id DESC LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	var (
		results []types.CuratedRecord
		runIDs  []string
	)
	for rows.Next() {
		rec, runID, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
		runIDs = append(runIDs, runID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		removed, err := s.removedTags(ctx, runIDs[i], results[i].ID)
		if err != nil {
			return nil, err
		}
		results[i].Provenance.RemovedTags = removed
	}
	return results, nil
}

// Record returns one stored record by id.
func (s *Store) Record(ctx context.Context, id string) (types.CuratedRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRecords+` AND r.id = ?`, id)
	rec, runID, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CuratedRecord{}, fmt.Errorf("record %s not found", id)
		}
		return types.CuratedRecord{}, err
	}
	rec.Provenance.RemovedTags, err = s.removedTags(ctx, runID, id)
	return rec, err
}

// Cards returns the matching records as plain study cards for grading.
func (s *Store) Cards(ctx context.Context, opts QueryOptions) ([]types.StudyCard, error) {
	recs, err := s.Retrieve(ctx, opts)
	if err != nil {
		return nil, err
	}
	cards := make([]types.StudyCard, len(recs))
	for i, r := range recs {
		cards[i] = r.StudyCard
	}
	return cards, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (types.CuratedRecord, string, error) {
	var (
		rec          types.CuratedRecord
		design       string
		sampleSize   sql.NullInt64
		tagsJSON     sql.NullString
		outcomesJSON sql.NullString
		recencyJSON  sql.NullString
		runID        string
	)
	if err := sc.Scan(
		&rec.ID, &rec.Year, &design, &sampleSize, &rec.QualityScore,
		&tagsJSON, &outcomesJSON, &recencyJSON, &runID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, "", err
		}
		return rec, "", fmt.Errorf("scanning record: %w", err)
	}

	rec.Design = types.StudyDesign(design)
	if sampleSize.Valid {
		n := int(sampleSize.Int64)
		rec.SampleSize = &n
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &rec.Tags)
	}
	if outcomesJSON.Valid {
		json.Unmarshal([]byte(outcomesJSON.String), &rec.Outcomes)
	}
	if recencyJSON.Valid {
		json.Unmarshal([]byte(recencyJSON.String), &rec.Provenance.RecencyGuaranteed)
	}
	return rec, runID, nil
}

func (s *Store) removedTags(ctx context.Context, runID, recordID string) ([]types.RemovedTag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, reason FROM removed_tags WHERE run_id = ? AND record_id = ? ORDER BY tag`,
		runID, recordID)
	if err != nil {
		return nil, fmt.Errorf("querying removed tags: %w", err)
	}
	defer rows.Close()

	var out []types.RemovedTag
	for rows.Next() {
		var (
			rt     types.RemovedTag
			reason string
		)
		if err := rows.Scan(&rt.Tag, &reason); err != nil {
			return nil, fmt.Errorf("scanning removed tag: %w", err)
		}
		rt.Reason = types.DecisionReason(reason)
		out = append(out, rt)
	}
	return out, rows.Err()
}
