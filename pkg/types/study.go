// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the evidence-engine.
// Covers: study records (StudyCard, Outcome), grading (Grade,
// AggregationResult), suitability rules (SuitabilityRule, CompiledRuleSet,
// Profile) and corpus curation (QualityThresholdTable, PaperQualityDecision).
// Implements: docs/ARCHITECTURE § Data Model.
package types

import (
	"strings"
)

// StudyDesign classifies how a study was conducted.
type StudyDesign string

const (
	DesignMetaAnalysis     StudyDesign = "meta-analysis"
	DesignSystematicReview StudyDesign = "systematic-review"
	DesignRCT              StudyDesign = "rct"
	DesignCrossover        StudyDesign = "crossover"
	DesignCohort           StudyDesign = "cohort"
	DesignCaseControl      StudyDesign = "case-control"
	DesignOther            StudyDesign = "other"
)

// KnownDesigns lists every recognized design in descending evidence order.
var KnownDesigns = []StudyDesign{
	DesignMetaAnalysis,
	DesignSystematicReview,
	DesignRCT,
	DesignCrossover,
	DesignCohort,
	DesignCaseControl,
	DesignOther,
}

// ParseStudyDesign normalizes free-form design labels such as "RCT",
// "Meta_Analysis" or " systematic review " into a StudyDesign. Labels that
// match no known design are returned normalized but otherwise unchanged;
// the weighting model treats them as unknown.
func ParseStudyDesign(s string) StudyDesign {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	switch norm {
	case "randomized-controlled-trial", "randomised-controlled-trial":
		return DesignRCT
	case "meta", "metaanalysis":
		return DesignMetaAnalysis
	}
	return StudyDesign(norm)
}

// Known reports whether d is one of the recognized designs.
func (d StudyDesign) Known() bool {
	for _, k := range KnownDesigns {
		if d == k {
			return true
		}
	}
	return false
}

// UnmarshalText normalizes the design label during JSON and YAML decoding.
func (d *StudyDesign) UnmarshalText(text []byte) error {
	*d = ParseStudyDesign(string(text))
	return nil
}

// Direction is the qualitative direction of an outcome.
type Direction string

const (
	DirectionIncrease  Direction = "increase"
	DirectionDecrease  Direction = "decrease"
	DirectionNoEffect  Direction = "no_effect"
	DirectionUncertain Direction = "uncertain"
)

// UnmarshalText lowercases the direction label during decoding.
func (d *Direction) UnmarshalText(text []byte) error {
	*d = Direction(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// Outcome is one measured effect reported by a study.
type Outcome struct {
	// Domain is the outcome area (e.g. "strength", "sleep").
	Domain string `json:"domain" yaml:"domain"`

	// EffectSize is the normalized effect in [-1, 1]. Nil when the study
	// only reports a direction.
	EffectSize *float64 `json:"effect_size,omitempty" yaml:"effect_size,omitempty"`

	// Direction is the qualitative direction reported by the study.
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// StudyCard is one evidence source produced by upstream extraction. Cards
// are treated as immutable; engines work on copies when they need to narrow
// tags or outcomes.
type StudyCard struct {
	// ID is the stable record identifier (DOI, PMID or slug).
	ID string `json:"id" yaml:"id"`

	// Year is the publication year; zero when unknown.
	Year int `json:"year" yaml:"year"`

	// Design is the study design.
	Design StudyDesign `json:"design" yaml:"design"`

	// SampleSize is the number of participants. Nil when unknown.
	SampleSize *int `json:"sample_size,omitempty" yaml:"sample_size,omitempty"`

	// QualityScore is the upstream quality rating used by the corpus filter.
	QualityScore float64 `json:"quality_score" yaml:"quality_score"`

	// Tags are topic labels such as supplement names.
	Tags []string `json:"tags" yaml:"tags"`

	// Outcomes lists the effects reported by the study.
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`
}

// HasTag reports whether the card carries tag.
func (c StudyCard) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// N returns the sample size, treating unknown as zero.
func (c StudyCard) N() int {
	if c.SampleSize == nil {
		return 0
	}
	return *c.SampleSize
}
