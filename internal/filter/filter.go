// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter implements the monthly quality and recency curation pass
// over a batch of study records.
// Implements: docs/ARCHITECTURE § Corpus Curation.
package filter

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// RejectedAllKey is the audit counter for records that qualified for no tag.
const RejectedAllKey = "rejected_all_tags"

// DuplicatesKey is the audit counter for records dropped as repeated ids.
const DuplicatesKey = "duplicate_ids"

// Result is the outcome of one filter run.
type Result struct {
	Mode types.FilterMode `json:"mode" yaml:"mode"`

	// Input is the number of records in the batch.
	Input int `json:"input" yaml:"input"`

	// Retained holds records that qualified for at least one tag, in input
	// order, with tags narrowed to the qualifying ones.
	Retained []types.CuratedRecord `json:"retained" yaml:"retained"`

	// Decisions lists every (record, tag) decision in evaluation order.
	Decisions []types.PaperQualityDecision `json:"decisions" yaml:"decisions"`

	// Counts is keyed "{tag}_{reason}" for every decision.
	Counts map[string]int `json:"counts" yaml:"counts"`

	// Rejected counts per-tag rejections by reason.
	Rejected map[types.DecisionReason]int `json:"rejected" yaml:"rejected"`

	// RejectedAllTags counts records dropped because no tag qualified.
	RejectedAllTags int `json:"rejected_all_tags" yaml:"rejected_all_tags"`

	// Duplicates counts records dropped because an earlier record in the
	// batch carried the same id.
	Duplicates int `json:"duplicates" yaml:"duplicates"`
}

// Dropped returns the number of records not retained.
func (r Result) Dropped() int {
	return r.Input - len(r.Retained)
}

// AuditCounts returns Counts merged with the rejected_all_tags counter and,
// when nonzero, the duplicate_ids counter.
func (r Result) AuditCounts() map[string]int {
	out := make(map[string]int, len(r.Counts)+2)
	maps.Copy(out, r.Counts)
	out[RejectedAllKey] = r.RejectedAllTags
	if r.Duplicates > 0 {
		out[DuplicatesKey] = r.Duplicates
	}
	return out
}

// Filter curates records under table. Bootstrap mode retains every record
// unchanged and makes no decisions. Monthly mode first marks recency
// guarantees per tag, then evaluates each (record, tag) pair. In monthly
// mode a record whose id repeats an earlier one is dropped and counted in
// Duplicates.
func Filter(records []types.StudyCard, table types.QualityThresholdTable, mode types.FilterMode) (Result, error) {
	result := Result{
		Mode:     mode,
		Input:    len(records),
		Counts:   make(map[string]int),
		Rejected: make(map[types.DecisionReason]int),
	}

	switch mode {
	case types.ModeBootstrap:
		result.Retained = make([]types.CuratedRecord, len(records))
		for i, r := range records {
			result.Retained[i] = types.CuratedRecord{StudyCard: r}
		}
		return result, nil
	case types.ModeMonthly:
	default:
		return Result{}, fmt.Errorf("unknown filter mode %q", mode)
	}

	guaranteed := MarkRecency(records, table.Recency)

	unique := firstByID(records)
	result.Duplicates = len(records) - len(unique)

	for _, r := range unique {
		var kept []string
		var prov types.Provenance
		for _, tag := range uniqueTags(r.Tags) {
			include, reason := Evaluate(r, tag, table, guaranteed.Has(r.ID, tag))
			result.Decisions = append(result.Decisions, types.PaperQualityDecision{
				RecordID: r.ID,
				Tag:      tag,
				Include:  include,
				Reason:   reason,
			})
			result.Counts[tag+"_"+string(reason)]++

			if !include {
				result.Rejected[reason]++
				prov.RemovedTags = append(prov.RemovedTags, types.RemovedTag{Tag: tag, Reason: reason})
				continue
			}
			kept = append(kept, tag)
			if reason == types.ReasonRecencyGuarantee {
				prov.RecencyGuaranteed = append(prov.RecencyGuaranteed, tag)
			}
		}

		if len(kept) == 0 {
			result.RejectedAllTags++
			continue
		}
		card := r
		card.Tags = kept
		result.Retained = append(result.Retained, types.CuratedRecord{StudyCard: card, Provenance: prov})
	}
	return result, nil
}

// Evaluate decides one (record, tag) pair. The first matching rule wins:
// always-include design, exceptional quality, recency guarantee, tag
// threshold. Anything else is below threshold.
func Evaluate(r types.StudyCard, tag string, table types.QualityThresholdTable, guaranteed bool) (bool, types.DecisionReason) {
	switch {
	case table.Bypasses(r.Design):
		return true, types.ReasonStructuralBypass
	case r.QualityScore >= table.ExceptionalQuality:
		return true, types.ReasonExceptionalQuality
	case guaranteed:
		return true, types.ReasonRecencyGuarantee
	case r.QualityScore >= table.Threshold(tag):
		return true, types.ReasonMeetsThreshold
	default:
		return false, types.ReasonBelowThreshold
	}
}

// Report writes the run summary and its audit counts to w, one
// "key: count" line per counter in key order.
func Report(w io.Writer, r Result) {
	fmt.Fprintf(w, "Filter summary (%s): %d retained, %d dropped (total: %d)\n",
		r.Mode, len(r.Retained), r.Dropped(), r.Input)
	if r.Mode == types.ModeBootstrap {
		return
	}
	counts := r.AuditCounts()
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}
