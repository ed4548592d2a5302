package corpus

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/filter"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// --- test helpers ---

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(types.CorpusConfig{CorpusDir: dir, MaxResults: 20})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func sampleTable() types.QualityThresholdTable {
	return types.QualityThresholdTable{
		Thresholds:         map[string]float64{"sleep": 3.5},
		DefaultThreshold:   3.0,
		Recency:            types.RecencyPolicy{DefaultTopN: 1, LargeTopN: 10, MinQuality: 2.5},
		BypassDesigns:      []types.StudyDesign{types.DesignMetaAnalysis},
		ExceptionalQuality: 4.5,
	}
}

func sampleRecords() []types.StudyCard {
	n := 120
	effect := 0.3
	return []types.StudyCard{
		{
			ID: "rct-2021", Year: 2021, Design: types.DesignRCT, SampleSize: &n, QualityScore: 3.2,
			Tags:     []string{"creatine", "sleep"},
			Outcomes: []types.Outcome{{Domain: "strength", EffectSize: &effect, Direction: types.DirectionIncrease}},
		},
		{ID: "sleep-2025", Year: 2025, Design: types.DesignRCT, QualityScore: 4.0, Tags: []string{"sleep"}},
		{ID: "meta-2015", Year: 2015, Design: types.DesignMetaAnalysis, QualityScore: 1.0, Tags: []string{"creatine"}},
		{ID: "cohort-2024", Year: 2024, Design: types.DesignCohort, QualityScore: 2.6, Tags: []string{"zinc"}},
		{ID: "weak-2019", Year: 2019, Design: types.DesignOther, QualityScore: 1.5, Tags: []string{"zinc"}},
	}
}

func saveSample(t *testing.T, s *Store) (Run, filter.Result) {
	t.Helper()
	res, err := filter.Filter(sampleRecords(), sampleTable(), types.ModeMonthly)
	require.NoError(t, err)
	run, err := s.SaveRun(context.Background(), res, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return run, res
}

// --- tests ---

func TestNewStoreCreatesDatabase(t *testing.T) {
	_, dir := testStore(t)
	_, err := os.Stat(filepath.Join(dir, indexDir, dbFile))
	require.NoError(t, err)
}

func TestNewStoreReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewStore(types.CorpusConfig{CorpusDir: dir})
	require.NoError(t, err)
	saveSample(t, s1)
	require.NoError(t, s1.Close())

	s2, err := NewStore(types.CorpusConfig{CorpusDir: dir})
	require.NoError(t, err)
	defer s2.Close()
	runs, err := s2.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveRun(t *testing.T) {
	s, _ := testStore(t)
	run, res := saveSample(t, s)

	_, err := uuid.Parse(run.ID)
	require.NoError(t, err, "run id is a uuid")
	assert.Equal(t, types.ModeMonthly, run.Mode)
	assert.Equal(t, 5, run.Input)
	assert.Equal(t, 4, run.Retained)
	assert.Equal(t, 1, run.RejectedAllTags)

	decisions, err := s.Decisions(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Decisions, decisions)
}

func TestRetrieveOrderAndProvenance(t *testing.T) {
	s, _ := testStore(t)
	saveSample(t, s)

	recs, err := s.Retrieve(context.Background(), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "sleep-2025", recs[0].ID)
	assert.Equal(t, "cohort-2024", recs[1].ID)
	assert.Equal(t, "rct-2021", recs[2].ID)
	assert.Equal(t, "meta-2015", recs[3].ID)

	rct := recs[2]
	assert.Equal(t, []string{"creatine"}, rct.Tags)
	assert.Equal(t, []types.RemovedTag{{Tag: "sleep", Reason: types.ReasonBelowThreshold}}, rct.Provenance.RemovedTags)
	require.NotNil(t, rct.SampleSize)
	assert.Equal(t, 120, *rct.SampleSize)
	require.Len(t, rct.Outcomes, 1)
	assert.Equal(t, 0.3, *rct.Outcomes[0].EffectSize)

	assert.Equal(t, []string{"zinc"}, recs[1].Provenance.RecencyGuaranteed)
	assert.Nil(t, recs[3].SampleSize)
}

func TestRetrieveFilters(t *testing.T) {
	s, _ := testStore(t)
	saveSample(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		opts QueryOptions
		ids  []string
	}{
		{"by tag", QueryOptions{Tag: "creatine"}, []string{"rct-2021", "meta-2015"}},
		{"by design", QueryOptions{Design: types.DesignCohort}, []string{"cohort-2024"}},
		{"by year", QueryOptions{MinYear: 2020}, []string{"sleep-2025", "cohort-2024", "rct-2021"}},
		{"limit", QueryOptions{MaxResults: 1}, []string{"sleep-2025"}},
		{"removed tag does not match", QueryOptions{Tag: "sleep"}, []string{"sleep-2025"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.Retrieve(ctx, tt.opts)
			require.NoError(t, err)
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestLaterRunReplacesRecord(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	saveSample(t, s)

	updated := sampleRecords()[:1]
	updated[0].QualityScore = 4.0
	res, err := filter.Filter(updated, sampleTable(), types.ModeMonthly)
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, res, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rec, err := s.Record(ctx, "rct-2021")
	require.NoError(t, err)
	assert.Equal(t, 4.0, rec.QualityScore)
	assert.Equal(t, []string{"creatine", "sleep"}, rec.Tags)
	assert.Empty(t, rec.Provenance.RemovedTags)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
}

func TestRecordNotFound(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.Record(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLatestRunEmpty(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestCards(t *testing.T) {
	s, _ := testStore(t)
	saveSample(t, s)

	cards, err := s.Cards(context.Background(), QueryOptions{Tag: "creatine"})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "rct-2021", cards[0].ID)
}

func TestExport(t *testing.T) {
	s, dir := testStore(t)
	saveSample(t, s)
	ctx := context.Background()

	yamlPath, err := s.ExportYAML(ctx, QueryOptions{Tag: "zinc"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, indexDir, "export.yaml"), yamlPath)

	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML []types.CuratedRecord
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	require.Len(t, fromYAML, 1)
	assert.Equal(t, "cohort-2024", fromYAML[0].ID)

	jsonPath, err := s.ExportJSON(ctx, QueryOptions{})
	require.NoError(t, err)
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var fromJSON []types.CuratedRecord
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Len(t, fromJSON, 4)
}

func TestExportEmpty(t *testing.T) {
	s, _ := testStore(t)
	path, err := s.ExportJSON(context.Background(), QueryOptions{})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
