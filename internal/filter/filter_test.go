// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func testTable() types.QualityThresholdTable {
	return types.QualityThresholdTable{
		Thresholds:       map[string]float64{"sleep": 3.5},
		DefaultThreshold: 3.0,
		Recency: types.RecencyPolicy{
			DefaultTopN:        2,
			LargeTopN:          10,
			LargeTagMinRecords: 500,
			MinQuality:         2.5,
		},
		BypassDesigns:      []types.StudyDesign{types.DesignMetaAnalysis, types.DesignSystematicReview},
		ExceptionalQuality: 4.5,
	}
}

func rec(id string, year int, design types.StudyDesign, quality float64, tags ...string) types.StudyCard {
	return types.StudyCard{ID: id, Year: year, Design: design, QualityScore: quality, Tags: tags}
}

func guaranteedIDs(g Guarantees, tag string) []string {
	var ids []string
	for k, v := range g {
		if v && k.Tag == tag {
			ids = append(ids, k.RecordID)
		}
	}
	return ids
}

func TestMarkRecencySmallTag(t *testing.T) {
	records := []types.StudyCard{
		rec("a", 2020, types.DesignRCT, 3.0, "zinc"),
		rec("b", 2024, types.DesignRCT, 3.0, "zinc"),
		rec("c", 2024, types.DesignRCT, 3.0, "zinc"),
		rec("d", 2023, types.DesignRCT, 3.0, "zinc"),
		rec("e", 2025, types.DesignRCT, 2.0, "zinc"),
	}
	g := MarkRecency(records, testTable().Recency)

	assert.ElementsMatch(t, []string{"b", "c"}, guaranteedIDs(g, "zinc"))
	assert.False(t, g.Has("e", "zinc"), "below recency minimum quality")
	assert.False(t, g.Has("a", "zinc"))
}

func TestMarkRecencyTieBreaksOnIDDescending(t *testing.T) {
	records := []types.StudyCard{
		rec("a", 2024, types.DesignRCT, 3.0, "zinc"),
		rec("c", 2024, types.DesignRCT, 3.0, "zinc"),
		rec("b", 2024, types.DesignRCT, 3.0, "zinc"),
	}
	g := MarkRecency(records, testTable().Recency)

	assert.ElementsMatch(t, []string{"b", "c"}, guaranteedIDs(g, "zinc"))
	assert.False(t, g.Has("a", "zinc"))
}

func TestMarkRecencyDuplicateIDHoldsOneSlot(t *testing.T) {
	records := []types.StudyCard{
		rec("d", 2025, types.DesignRCT, 3.0, "zinc"),
		rec("e", 2024, types.DesignRCT, 3.0, "zinc"),
		rec("d", 2001, types.DesignRCT, 3.0, "zinc"),
		rec("f", 2023, types.DesignRCT, 3.0, "zinc"),
	}
	g := MarkRecency(records, testTable().Recency)
	assert.ElementsMatch(t, []string{"d", "e"}, guaranteedIDs(g, "zinc"))
}

func TestMarkRecencyLargeTagByCount(t *testing.T) {
	var records []types.StudyCard
	for i := range 600 {
		records = append(records, rec(fmt.Sprintf("r%04d", i), 1400+i, types.DesignCohort, 2.6, "sleep"))
	}
	// Newer but ineligible records must not take slots.
	for i := range 5 {
		records = append(records, rec(fmt.Sprintf("low%d", i), 3000, types.DesignCohort, 2.4, "sleep"))
	}

	g := MarkRecency(records, testTable().Recency)

	var want []string
	for i := 590; i < 600; i++ {
		want = append(want, fmt.Sprintf("r%04d", i))
	}
	assert.ElementsMatch(t, want, guaranteedIDs(g, "sleep"))
}

func TestMarkRecencyLargeTagByList(t *testing.T) {
	policy := testTable().Recency
	policy.LargeTags = []string{"Protein"}

	var records []types.StudyCard
	for i := range 20 {
		records = append(records, rec(fmt.Sprintf("p%02d", i), 2000+i, types.DesignRCT, 3.0, "protein"))
	}
	g := MarkRecency(records, policy)
	assert.Len(t, guaranteedIDs(g, "protein"), 10)
	assert.True(t, g.Has("p19", "protein"))
	assert.False(t, g.Has("p09", "protein"))
}

func TestTopN(t *testing.T) {
	policy := testTable().Recency
	assert.Equal(t, 2, TopN("zinc", 499, policy))
	assert.Equal(t, 10, TopN("zinc", 500, policy))

	policy.LargeTagMinRecords = 0
	assert.Equal(t, 2, TopN("zinc", 10000, policy))
}

func TestEvaluatePrecedence(t *testing.T) {
	table := testTable()
	tests := []struct {
		name       string
		card       types.StudyCard
		tag        string
		guaranteed bool
		include    bool
		reason     types.DecisionReason
	}{
		{"bypass beats everything", rec("x", 2020, types.DesignMetaAnalysis, 0.1), "sleep", false, true, types.ReasonStructuralBypass},
		{"systematic review bypasses", rec("x", 2020, types.DesignSystematicReview, 1.0), "zinc", true, true, types.ReasonStructuralBypass},
		{"exceptional quality", rec("x", 2020, types.DesignCohort, 4.5), "sleep", true, true, types.ReasonExceptionalQuality},
		{"recency guarantee", rec("x", 2020, types.DesignCohort, 2.6), "sleep", true, true, types.ReasonRecencyGuarantee},
		{"meets tag threshold", rec("x", 2020, types.DesignCohort, 3.5), "sleep", false, true, types.ReasonMeetsThreshold},
		{"below tag threshold", rec("x", 2020, types.DesignCohort, 3.4), "sleep", false, false, types.ReasonBelowThreshold},
		{"unknown tag uses default", rec("x", 2020, types.DesignRCT, 3.0), "new-topic", false, true, types.ReasonMeetsThreshold},
		{"below default", rec("x", 2020, types.DesignRCT, 2.9), "new-topic", false, false, types.ReasonBelowThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, reason := Evaluate(tt.card, tt.tag, table, tt.guaranteed)
			assert.Equal(t, tt.include, include)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestFilterBypassRetainsEveryTag(t *testing.T) {
	records := []types.StudyCard{
		rec("meta", 2001, types.DesignMetaAnalysis, 0.5, "sleep", "zinc", "creatine"),
	}
	res, err := Filter(records, testTable(), types.ModeMonthly)
	require.NoError(t, err)

	require.Len(t, res.Retained, 1)
	assert.Equal(t, []string{"sleep", "zinc", "creatine"}, res.Retained[0].Tags)
	assert.Empty(t, res.Retained[0].Provenance.RemovedTags)
	for _, d := range res.Decisions {
		assert.True(t, d.Include)
		assert.Equal(t, types.ReasonStructuralBypass, d.Reason)
	}
	assert.Equal(t, 1, res.Counts["zinc_structural_bypass"])
}

func TestFilterNarrowsTagsWithProvenance(t *testing.T) {
	table := testTable()
	table.Recency.DefaultTopN = 0

	records := []types.StudyCard{
		rec("r1", 2022, types.DesignRCT, 3.2, "creatine", "sleep"),
	}
	res, err := Filter(records, table, types.ModeMonthly)
	require.NoError(t, err)

	require.Len(t, res.Retained, 1)
	got := res.Retained[0]
	assert.Equal(t, []string{"creatine"}, got.Tags)
	assert.Equal(t, []types.RemovedTag{{Tag: "sleep", Reason: types.ReasonBelowThreshold}}, got.Provenance.RemovedTags)
	assert.Equal(t, []string{"creatine", "sleep"}, records[0].Tags, "input not modified")

	assert.Equal(t, map[string]int{
		"creatine_meets_threshold": 1,
		"sleep_below_threshold":    1,
	}, res.Counts)
	assert.Equal(t, 1, res.Rejected[types.ReasonBelowThreshold])
}

func TestFilterRecencyProvenance(t *testing.T) {
	records := []types.StudyCard{
		rec("new", 2025, types.DesignCohort, 2.7, "zinc"),
		rec("old", 2010, types.DesignCohort, 2.7, "zinc"),
		rec("older", 2005, types.DesignCohort, 2.7, "zinc"),
	}
	res, err := Filter(records, testTable(), types.ModeMonthly)
	require.NoError(t, err)

	require.Len(t, res.Retained, 2)
	assert.Equal(t, "new", res.Retained[0].ID)
	assert.Equal(t, "old", res.Retained[1].ID)
	assert.Equal(t, []string{"zinc"}, res.Retained[0].Provenance.RecencyGuaranteed)
	assert.Equal(t, 2, res.Counts["zinc_recency_guarantee"])
	assert.Equal(t, 1, res.Counts["zinc_below_threshold"])
	assert.Equal(t, 1, res.RejectedAllTags)
}

func TestFilterRejectedEntirely(t *testing.T) {
	records := []types.StudyCard{
		rec("weak", 2020, types.DesignOther, 1.0, "zinc", "sleep"),
		rec("untagged", 2020, types.DesignRCT, 4.0),
		rec("good", 2020, types.DesignRCT, 4.0, "zinc"),
	}
	res, err := Filter(records, testTable(), types.ModeMonthly)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RejectedAllTags)
	assert.Equal(t, 2, res.Dropped())
	assert.Equal(t, 2, res.Rejected[types.ReasonBelowThreshold])

	audit := res.AuditCounts()
	assert.Equal(t, 2, audit[RejectedAllKey])
	assert.Equal(t, 1, audit["zinc_below_threshold"])
	assert.Equal(t, 1, audit["sleep_below_threshold"])
	assert.NotContains(t, res.Counts, RejectedAllKey)
}

func TestFilterBootstrapPassesThrough(t *testing.T) {
	records := []types.StudyCard{
		rec("weak", 2020, types.DesignOther, 0.1, "zinc"),
		rec("untagged", 2021, types.DesignRCT, 1.0),
	}
	res, err := Filter(records, testTable(), types.ModeBootstrap)
	require.NoError(t, err)

	require.Len(t, res.Retained, 2)
	assert.Equal(t, records[0], res.Retained[0].StudyCard)
	assert.Equal(t, records[1], res.Retained[1].StudyCard)
	assert.Empty(t, res.Decisions)
	assert.Empty(t, res.Counts)
	assert.Zero(t, res.RejectedAllTags)
}

func TestFilterUnknownMode(t *testing.T) {
	_, err := Filter(nil, testTable(), types.FilterMode("weekly"))
	require.Error(t, err)
}

func TestFilterDuplicateTagsDecidedOnce(t *testing.T) {
	res, err := Filter([]types.StudyCard{rec("d", 2020, types.DesignRCT, 3.1, "zinc", "zinc")}, testTable(), types.ModeMonthly)
	require.NoError(t, err)
	assert.Len(t, res.Decisions, 1)
	assert.Equal(t, []string{"zinc"}, res.Retained[0].Tags)
}

func TestFilterDropsRepeatedIDs(t *testing.T) {
	records := []types.StudyCard{
		rec("d", 2025, types.DesignCohort, 2.6, "zinc"),
		rec("e", 2024, types.DesignCohort, 2.6, "zinc"),
		rec("d", 2001, types.DesignCohort, 2.6, "zinc"),
	}
	res, err := Filter(records, testTable(), types.ModeMonthly)
	require.NoError(t, err)

	require.Len(t, res.Retained, 2)
	assert.Equal(t, 2025, res.Retained[0].Year)
	assert.Equal(t, "e", res.Retained[1].ID)
	assert.Equal(t, 2, res.Counts["zinc_recency_guarantee"])
	assert.Len(t, res.Decisions, 2)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Dropped())
	assert.Equal(t, 1, res.AuditCounts()[DuplicatesKey])
}

func TestReport(t *testing.T) {
	records := []types.StudyCard{
		rec("weak", 2020, types.DesignOther, 1.0, "zinc"),
		rec("good", 2020, types.DesignRCT, 4.0, "zinc"),
	}
	res, err := Filter(records, testTable(), types.ModeMonthly)
	require.NoError(t, err)

	var buf bytes.Buffer
	Report(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Filter summary (monthly): 1 retained, 1 dropped (total: 2)")
	assert.Contains(t, out, "  rejected_all_tags: 1\n")
	assert.Contains(t, out, "  zinc_below_threshold: 1\n")
}

func TestParseFilterMode(t *testing.T) {
	m, err := types.ParseFilterMode(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, types.ModeMonthly, m)

	_, err = types.ParseFilterMode("daily")
	assert.Error(t, err)
}
