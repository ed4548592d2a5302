// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"sort"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Key identifies one (record, tag) pair.
type Key struct {
	RecordID string
	Tag      string
}

// Guarantees is the recency side-table built before per-tag evaluation.
// A true entry means the record holds a recency slot for that tag.
type Guarantees map[Key]bool

// Has reports whether record id is recency-guaranteed for tag.
func (g Guarantees) Has(id, tag string) bool {
	return g[Key{RecordID: id, Tag: tag}]
}

// MarkRecency groups records by tag and marks the most recent eligible
// records of each tag. Eligible records have a quality score of at least
// policy.MinQuality; they are ranked by year descending, then identifier
// descending. Only the first record carrying a given id is considered.
// Records are not modified.
func MarkRecency(records []types.StudyCard, policy types.RecencyPolicy) Guarantees {
	byTag := make(map[string][]types.StudyCard)
	for _, r := range firstByID(records) {
		if r.QualityScore < policy.MinQuality {
			continue
		}
		for _, tag := range uniqueTags(r.Tags) {
			byTag[tag] = append(byTag[tag], r)
		}
	}

	g := make(Guarantees)
	for tag, eligible := range byTag {
		sort.SliceStable(eligible, func(i, j int) bool {
			if eligible[i].Year != eligible[j].Year {
				return eligible[i].Year > eligible[j].Year
			}
			return eligible[i].ID > eligible[j].ID
		})
		n := min(TopN(tag, len(eligible), policy), len(eligible))
		for _, r := range eligible[:n] {
			g[Key{RecordID: r.ID, Tag: tag}] = true
		}
	}
	return g
}

// TopN returns how many recency slots tag receives given its number of
// eligible records.
func TopN(tag string, eligible int, policy types.RecencyPolicy) int {
	if policy.IsLargeTag(tag) {
		return policy.LargeTopN
	}
	if policy.LargeTagMinRecords > 0 && eligible >= policy.LargeTagMinRecords {
		return policy.LargeTopN
	}
	return policy.DefaultTopN
}

// firstByID drops records whose id already appeared earlier in the batch.
func firstByID(records []types.StudyCard) []types.StudyCard {
	seen := make(map[string]bool, len(records))
	out := make([]types.StudyCard, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// uniqueTags drops blank and repeated tags, keeping first-seen order.
func uniqueTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
