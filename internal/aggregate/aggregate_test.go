// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func testCfg() types.BankingConfig {
	return types.BankingConfig{
		DesignWeights: map[string]float64{
			"meta-analysis":     1.5,
			"systematic-review": 1.3,
			"rct":               1.0,
			"crossover":         0.9,
			"cohort":            0.7,
			"case-control":      0.5,
			"other":             0.3,
		},
		DefaultWeight:     0.3,
		WMin:              8.0,
		Cutoffs:           types.EffectCutoffs{Small: 0.10, B: 0.20, A: 0.35},
		NullEps:           0.05,
		NegativeThresh:    0.10,
		DirectionFallback: 0.20,
	}
}

func f(v float64) *float64 { return &v }
func n(v int) *int { return &v }

func card(id string, design types.StudyDesign, size int, outcomes ...types.Outcome) types.StudyCard {
	return types.StudyCard{
		ID:         id,
		Design:     design,
		SampleSize: n(size),
		Tags:       []string{"creatine"},
		Outcomes:   outcomes,
	}
}

func effect(domain string, e float64) types.Outcome {
	return types.Outcome{Domain: domain, EffectSize: f(e)}
}

func direction(domain string, d types.Direction) types.Outcome {
	return types.Outcome{Domain: domain, Direction: d}
}

// --- Weight ---

func TestWeight(t *testing.T) {
	cfg := testCfg()
	tests := []struct {
		name   string
		design types.StudyDesign
		n      int
		want   float64
	}{
		{"rct 60", types.DesignRCT, 60, math.Log(61)},
		{"meta 100", types.DesignMetaAnalysis, 100, 1.5 * math.Log(101)},
		{"unknown design uses default", types.StudyDesign("n-of-1"), 20, 0.3 * math.Log(21)},
		{"negative n clamps to zero", types.DesignRCT, -5, 0},
		{"zero n", types.DesignCohort, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Weight(tt.design, tt.n, cfg), 1e-9)
		})
	}
}

func TestCardWeightUnknownSampleSize(t *testing.T) {
	c := types.StudyCard{ID: "x", Design: types.DesignRCT}
	assert.Equal(t, 0.0, CardWeight(c, testCfg()))
}

// --- Aggregate ---

func TestAggregateTwoRCTsGradesB(t *testing.T) {
	cards := []types.StudyCard{
		card("rct-1", types.DesignRCT, 60, types.Outcome{Domain: "strength", EffectSize: f(0.30), Direction: types.DirectionIncrease}),
		card("rct-2", types.DesignRCT, 80, types.Outcome{Domain: "strength", EffectSize: f(0.28), Direction: types.DirectionIncrease}),
	}

	r := Aggregate(cards, testCfg())

	assert.InDelta(t, math.Log(61)+math.Log(81), r.TotalWeight, 1e-9)
	assert.InDelta(t, 0.29, r.PooledEffect, 0.005)
	assert.Equal(t, 1.0, r.Consistency)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, types.GradeB, r.Grade)
	assert.Equal(t, 2, r.Contributing)
	assert.Equal(t, []string{"rct-1", "rct-2"}, r.SupportingIDs)
}

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate(nil, testCfg())
	assert.Equal(t, types.GradeD, r.Grade)
	assert.Equal(t, 0.0, r.TotalWeight)
	assert.Equal(t, 0.5, r.Consistency)
	assert.Empty(t, r.SupportingIDs)
	assert.NotNil(t, r.SupportingIDs)
}

func TestAggregateOutcomeSubstitution(t *testing.T) {
	cfg := testCfg()
	tests := []struct {
		name         string
		outcome      types.Outcome
		wantEffect   float64
		contributing int
	}{
		{"effect size clamped high", effect("s", 3.0), 1.0, 1},
		{"effect size clamped low", effect("s", -2.0), -1.0, 1},
		{"increase uses fallback", direction("s", types.DirectionIncrease), 0.20, 1},
		{"decrease uses negative fallback", direction("s", types.DirectionDecrease), -0.20, 1},
		{"no_effect contributes zero", direction("s", types.DirectionNoEffect), 0, 1},
		{"uncertain contributes zero", direction("s", types.DirectionUncertain), 0, 1},
		{"unrecognized direction excluded", direction("s", types.Direction("mixed")), 0, 0},
		{"empty direction excluded", types.Outcome{Domain: "s"}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Aggregate([]types.StudyCard{card("a", types.DesignRCT, 100, tt.outcome)}, cfg)
			assert.Equal(t, tt.contributing, r.Contributing)
			assert.InDelta(t, tt.wantEffect, r.PooledEffect, 1e-9)
		})
	}
}

func TestAggregateExcludedOutcomeDoesNotDilute(t *testing.T) {
	cfg := testCfg()
	withJunk := []types.StudyCard{
		card("a", types.DesignRCT, 100, effect("s", 0.4), direction("s", types.Direction("???"))),
	}
	without := []types.StudyCard{
		card("a", types.DesignRCT, 100, effect("s", 0.4)),
	}
	assert.Equal(t, Aggregate(without, cfg), Aggregate(withJunk, cfg))
}

func TestAggregateInsufficientEvidenceIsD(t *testing.T) {
	cfg := testCfg()

	t.Run("single outcome", func(t *testing.T) {
		r := Aggregate([]types.StudyCard{card("a", types.DesignMetaAnalysis, 100000, effect("s", 0.9))}, cfg)
		require.GreaterOrEqual(t, r.TotalWeight, cfg.WMin)
		assert.Equal(t, types.GradeD, r.Grade)
	})

	t.Run("weight below w_min", func(t *testing.T) {
		r := Aggregate([]types.StudyCard{
			card("a", types.DesignRCT, 10, effect("s", 0.9)),
			card("b", types.DesignRCT, 10, effect("s", 0.9)),
		}, cfg)
		require.Less(t, r.TotalWeight, cfg.WMin)
		assert.Equal(t, types.GradeD, r.Grade)
	})
}

func TestAggregateGradingChain(t *testing.T) {
	cfg := testCfg()
	tests := []struct {
		name    string
		effects []float64
		want    types.Grade
	}{
		{"consistent null is F", []float64{0.01, 0.02, 0.0}, types.GradeF},
		{"consistent harm is F", []float64{-0.3, -0.25, -0.2}, types.GradeF},
		{"strong consistent effect is A", []float64{0.5, 0.45, 0.4}, types.GradeA},
		{"moderate consistent effect is B", []float64{0.25, 0.22, 0.24}, types.GradeB},
		{"small effect is C", []float64{0.12, 0.11, 0.12}, types.GradeC},
		{"consistent effect under B cutoff is C", []float64{0.17, 0.17, 0.17}, types.GradeC},
		{"below small cutoff is D", []float64{0.07, 0.08, 0.06}, types.GradeD},
		{"large inconsistent effect is C", []float64{0.9, 0.9, -0.6, -0.6}, types.GradeC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cards []types.StudyCard
			for i, e := range tt.effects {
				cards = append(cards, card(string(rune('a'+i)), types.DesignRCT, 200, effect("s", e)))
			}
			r := Aggregate(cards, cfg)
			require.GreaterOrEqual(t, r.TotalWeight, cfg.WMin)
			assert.Equal(t, tt.want, r.Grade, "pooled=%.3f consistency=%.3f confidence=%.3f", r.PooledEffect, r.Consistency, r.Confidence)
		})
	}
}

func TestAggregateConsistencyBounds(t *testing.T) {
	cfg := testCfg()
	sets := [][]float64{
		{0.3, -0.3},
		{0.5, 0.1, -0.2},
		{0, 0, 0},
		{-1, -1, 1},
		{0.2},
	}
	for _, effects := range sets {
		var cards []types.StudyCard
		for i, e := range effects {
			cards = append(cards, card(string(rune('a'+i)), types.DesignRCT, 50, effect("s", e)))
		}
		r := Aggregate(cards, cfg)
		assert.GreaterOrEqual(t, r.Consistency, 0.0)
		assert.LessOrEqual(t, r.Consistency, 1.0)
		if r.PooledEffect == 0 {
			assert.Equal(t, 0.5, r.Consistency, "effects %v", effects)
		} else {
			assert.NotEqual(t, 0.5, r.Consistency, "effects %v", effects)
		}
	}
}

func TestGradeMonotonicInEffect(t *testing.T) {
	cfg := testCfg()
	for _, consistency := range []float64{0.3, 0.6, 0.8, 1.0} {
		for _, weight := range []float64{8, 12, 40} {
			conf := confidenceOf(weight, consistency, cfg.WMin)
			prev := types.GradeF
			for e := 0.0; e <= 1.0; e += 0.005 {
				g := grade(types.AggregationResult{
					PooledEffect: e,
					Consistency:  consistency,
					TotalWeight:  weight,
					Confidence:   conf,
					Contributing: 3,
				}, cfg)
				assert.False(t, prev.BetterThan(g), "grade dropped from %s to %s at effect %.3f (S=%.2f, W=%.0f)", prev, g, e, consistency, weight)
				prev = g
			}
		}
	}
}

func TestAggregateSupportingIDsCapped(t *testing.T) {
	var cards []types.StudyCard
	for i := 0; i < 15; i++ {
		id := string(rune('a' + i))
		cards = append(cards, card(id, types.DesignRCT, 50, effect("s", 0.2), effect("s", 0.3)))
	}
	cards = append(cards, cards[0])

	r := Aggregate(cards, testCfg())
	assert.Len(t, r.SupportingIDs, types.MaxSupportingIDs)
	assert.Equal(t, "a", r.SupportingIDs[0])
}

// --- batch helpers ---

func TestForPairNarrowsWithoutMutating(t *testing.T) {
	cards := []types.StudyCard{
		{ID: "a", Tags: []string{"creatine"}, Outcomes: []types.Outcome{effect("strength", 0.3), effect("sleep", 0.1)}},
		{ID: "b", Tags: []string{"caffeine"}, Outcomes: []types.Outcome{effect("strength", 0.2)}},
		{ID: "c", Tags: []string{"creatine"}, Outcomes: []types.Outcome{effect("sleep", 0.1)}},
	}

	got := ForPair(cards, "creatine", "strength")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Len(t, got[0].Outcomes, 1)
	assert.Len(t, cards[0].Outcomes, 2, "input card must not be modified")
}

func TestAggregateAll(t *testing.T) {
	cards := []types.StudyCard{
		{ID: "a", Design: types.DesignRCT, SampleSize: n(60), Tags: []string{"creatine", "beta-alanine"},
			Outcomes: []types.Outcome{effect("strength", 0.3)}},
		{ID: "b", Design: types.DesignRCT, SampleSize: n(80), Tags: []string{"creatine"},
			Outcomes: []types.Outcome{effect("strength", 0.28), effect("sleep", 0.0)}},
	}

	results, err := AggregateAll(context.Background(), cards, testCfg())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "beta-alanine", results[0].Topic)
	assert.Equal(t, "creatine", results[1].Topic)
	assert.Equal(t, "sleep", results[1].Domain)
	assert.Equal(t, "strength", results[2].Domain)
	assert.Equal(t, types.GradeB, results[2].Grade)
}

func TestAggregateAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cards := []types.StudyCard{{ID: "a", Tags: []string{"x"}, Outcomes: []types.Outcome{effect("s", 0.1)}}}
	_, err := AggregateAll(ctx, cards, testCfg())
	assert.ErrorIs(t, err, context.Canceled)
}
