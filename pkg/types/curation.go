// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// FilterMode selects how the corpus filter treats a batch.
type FilterMode string

const (
	// ModeBootstrap passes every record through during corpus construction.
	ModeBootstrap FilterMode = "bootstrap"

	// ModeMonthly applies the full quality and recency policy.
	ModeMonthly FilterMode = "monthly"
)

// ParseFilterMode accepts "bootstrap" or "monthly" in any case.
func ParseFilterMode(s string) (FilterMode, error) {
	switch m := FilterMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBootstrap, ModeMonthly:
		return m, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q (want bootstrap or monthly)", s)
	}
}

// DecisionReason explains a per-tag inclusion decision.
type DecisionReason string

const (
	ReasonStructuralBypass   DecisionReason = "structural_bypass"
	ReasonExceptionalQuality DecisionReason = "exceptional_quality"
	ReasonRecencyGuarantee   DecisionReason = "recency_guarantee"
	ReasonMeetsThreshold     DecisionReason = "meets_threshold"
	ReasonBelowThreshold     DecisionReason = "below_threshold"
)

// PaperQualityDecision records the filter outcome for one (record, tag) pair.
type PaperQualityDecision struct {
	RecordID string         `json:"record_id" yaml:"record_id"`
	Tag      string         `json:"tag" yaml:"tag"`
	Include  bool           `json:"include" yaml:"include"`
	Reason   DecisionReason `json:"reason" yaml:"reason"`
}

// RemovedTag is a tag narrowed away from a retained record, with its reason.
type RemovedTag struct {
	Tag    string         `json:"tag" yaml:"tag"`
	Reason DecisionReason `json:"reason" yaml:"reason"`
}

// Provenance is the audit metadata attached to a retained record.
type Provenance struct {
	// RemovedTags lists tags the record did not qualify for.
	RemovedTags []RemovedTag `json:"removed_tags,omitempty" yaml:"removed_tags,omitempty"`

	// RecencyGuaranteed lists tags for which the record held a recency slot.
	RecencyGuaranteed []string `json:"recency_guaranteed,omitempty" yaml:"recency_guaranteed,omitempty"`
}

// CuratedRecord is a StudyCard retained by the filter. Its Tags are
// narrowed to the qualifying tags.
type CuratedRecord struct {
	StudyCard  `yaml:",inline"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`
}
