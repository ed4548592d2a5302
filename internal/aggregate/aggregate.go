// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate pools per-study effect estimates into one evidence grade.
// Each outcome contributes a signed effect carrying the weight of its parent
// study; the pooled effect, its consistency and a bounded confidence decide
// the grade through a fixed, ordered rule chain.
// Implements: docs/ARCHITECTURE § Evidence Aggregation.
package aggregate

import (
	"math"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const (
	// minContributing is the fewest outcomes that can be graded above D.
	minContributing = 2

	// consistentShare is the consistency at which a pool counts as agreeing.
	consistentShare = 0.6

	// ambiguousConsistency is reported when the pooled effect has no sign.
	ambiguousConsistency = 0.5

	confidenceBase      = 0.35
	confidenceVolume    = 0.4
	confidenceAgreement = 0.25

	gradeAConfidence = 0.7
	gradeBConfidence = 0.5

	// moderateCeiling bounds the "moderate effect" band of grade C.
	moderateCeiling = 0.15
)

// contribution is one outcome that entered the pool.
type contribution struct {
	effect float64
	weight float64
}

// Aggregate pools the outcomes of cards into an AggregationResult.
//
// Outcome effects are taken from the normalized effect size (clamped to
// [-1, 1]) when present; otherwise increase/decrease substitute
// ±cfg.DirectionFallback and no_effect/uncertain contribute 0. Outcomes with
// neither an effect size nor a recognized direction are excluded.
//
// An empty pool yields a zero-evidence D.
func Aggregate(cards []types.StudyCard, cfg types.BankingConfig) types.AggregationResult {
	var (
		contribs   []contribution
		supporting []string
		seen       = make(map[string]bool)
	)

	for _, card := range cards {
		w := CardWeight(card, cfg)
		contributed := false
		for _, o := range card.Outcomes {
			effect, ok := outcomeEffect(o, cfg)
			if !ok {
				continue
			}
			contribs = append(contribs, contribution{effect: effect, weight: w})
			contributed = true
		}
		if contributed && card.ID != "" && !seen[card.ID] && len(supporting) < types.MaxSupportingIDs {
			seen[card.ID] = true
			supporting = append(supporting, card.ID)
		}
	}

	if len(contribs) == 0 {
		return types.AggregationResult{
			Consistency:   ambiguousConsistency,
			Grade:         types.GradeD,
			SupportingIDs: []string{},
		}
	}

	pooled, total := pool(contribs)
	consistency := consistencyOf(contribs, pooled, total)
	confidence := confidenceOf(total, consistency, cfg.WMin)

	result := types.AggregationResult{
		PooledEffect:  pooled,
		Consistency:   consistency,
		TotalWeight:   total,
		Confidence:    confidence,
		Contributing:  len(contribs),
		SupportingIDs: supporting,
	}
	result.Grade = grade(result, cfg)
	return result
}

// outcomeEffect returns the signed effect an outcome contributes and
// whether it contributes at all.
func outcomeEffect(o types.Outcome, cfg types.BankingConfig) (float64, bool) {
	if o.EffectSize != nil {
		return clamp(*o.EffectSize, -1, 1), true
	}
	switch o.Direction {
	case types.DirectionIncrease:
		return cfg.DirectionFallback, true
	case types.DirectionDecrease:
		return -cfg.DirectionFallback, true
	case types.DirectionNoEffect, types.DirectionUncertain:
		return 0, true
	}
	return 0, false
}

// pool returns the weighted mean effect and the total weight. A pool with
// zero total weight has no defined mean and reports 0.
func pool(contribs []contribution) (float64, float64) {
	var sum, total float64
	for _, c := range contribs {
		sum += c.effect * c.weight
		total += c.weight
	}
	if total <= 0 {
		return 0, total
	}
	return sum / total, total
}

// consistencyOf returns the share of total weight whose effect sign matches
// the pooled sign. A signless pool is ambiguous by definition.
func consistencyOf(contribs []contribution, pooled, total float64) float64 {
	target := sign(pooled)
	if target == 0 || total <= 0 {
		return ambiguousConsistency
	}
	var agree float64
	for _, c := range contribs {
		if sign(c.effect) == target {
			agree += c.weight
		}
	}
	return clamp(agree/total, 0, 1)
}

func confidenceOf(total, consistency, wMin float64) float64 {
	volume := 0.0
	if wMin > 0 {
		volume = total / wMin
	}
	return math.Min(1, confidenceBase+confidenceVolume*volume+confidenceAgreement*consistency)
}

// grade applies the ordered grading chain; the first matching rule wins.
func grade(r types.AggregationResult, cfg types.BankingConfig) types.Grade {
	abs := math.Abs(r.PooledEffect)
	consistent := r.Consistency >= consistentShare

	switch {
	case r.TotalWeight < cfg.WMin || r.Contributing < minContributing:
		return types.GradeD
	case abs < cfg.NullEps && consistent:
		return types.GradeF
	case r.PooledEffect <= -cfg.NegativeThresh && consistent:
		return types.GradeF
	case abs >= cfg.Cutoffs.A && r.Confidence >= gradeAConfidence:
		return types.GradeA
	case abs >= cfg.Cutoffs.B && r.Confidence >= gradeBConfidence:
		return types.GradeB
	// C extends past moderateCeiling up to the B cutoff so that a consistent
	// pool below the B cutoff never grades worse than a smaller effect.
	case abs >= cfg.Cutoffs.Small && abs < math.Max(moderateCeiling, cfg.Cutoffs.B):
		return types.GradeC
	case abs >= moderateCeiling && !consistent:
		return types.GradeC
	}
	return types.GradeD
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
