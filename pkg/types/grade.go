// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// Grade is the ordinal evidence label. A is the strongest consistent
// positive evidence, D means insufficient or inconclusive evidence, and F
// means consistent evidence of no effect or of harm.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// gradeScale orders grades from best (index 0) to worst.
var gradeScale = []Grade{GradeA, GradeB, GradeC, GradeD, GradeF}

// ParseGrade accepts a case-insensitive grade letter.
func ParseGrade(s string) (Grade, error) {
	g := Grade(strings.ToUpper(strings.TrimSpace(s)))
	if g.Index() < 0 {
		return "", fmt.Errorf("invalid grade %q: want one of A, B, C, D, F", s)
	}
	return g, nil
}

// Index returns the position of g on the scale A(0)..F(4), or -1 if g is
// not a valid grade.
func (g Grade) Index() int {
	for i, s := range gradeScale {
		if s == g {
			return i
		}
	}
	return -1
}

// Shift moves g by steps positions along the scale, clamped to [A, F].
// Positive steps move toward F.
func (g Grade) Shift(steps int) Grade {
	i := g.Index()
	if i < 0 {
		return g
	}
	i += steps
	if i < 0 {
		i = 0
	}
	if i >= len(gradeScale) {
		i = len(gradeScale) - 1
	}
	return gradeScale[i]
}

// BetterThan reports whether g ranks above other on the scale.
func (g Grade) BetterThan(other Grade) bool {
	return g.Index() >= 0 && g.Index() < other.Index()
}

// MaxSupportingIDs caps the citation list carried by an AggregationResult.
const MaxSupportingIDs = 10

// AggregationResult is the pooled evidence for one (topic, domain) pair.
type AggregationResult struct {
	// Topic is the topic tag the cards were selected by (e.g. "creatine").
	Topic string `json:"topic,omitempty" yaml:"topic,omitempty"`

	// Domain is the outcome domain (e.g. "strength").
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// PooledEffect is the weighted mean of the contributing effects.
	PooledEffect float64 `json:"pooled_effect" yaml:"pooled_effect"`

	// Consistency is the share of weight agreeing in sign with PooledEffect.
	Consistency float64 `json:"consistency" yaml:"consistency"`

	// TotalWeight is the sum of contributing outcome weights.
	TotalWeight float64 `json:"total_weight" yaml:"total_weight"`

	// Confidence blends evidence volume and agreement, in [0, 1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Grade is the assigned evidence grade.
	Grade Grade `json:"grade" yaml:"grade"`

	// Contributing is the number of outcomes that entered the pool.
	Contributing int `json:"contributing" yaml:"contributing"`

	// SupportingIDs lists up to MaxSupportingIDs distinct card IDs for citation.
	SupportingIDs []string `json:"supporting_ids" yaml:"supporting_ids"`
}
