// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DefaultDose is the dose multiplier when no rule changes it.
const DefaultDose = 1.0

// Apply personalizes an intrinsic grade for profile using the rules in set.
//
// Any applying hard_stop rule forces F and zeroes the dose, overriding every
// caution. Otherwise the grade_delta values of applying caution rules are
// summed and applied as one clamped step on the A..F scale (negative deltas
// worsen the grade), dose multipliers compose multiplicatively and notes
// are joined in rule order. With no applying rule the grade and default
// dose are returned unchanged.
func Apply(topic string, grade types.Grade, profile types.Profile, set types.CompiledRuleSet) types.Suitability {
	result := types.Suitability{
		IntrinsicGrade: grade,
		FinalGrade:     grade,
		DoseMultiplier: DefaultDose,
	}

	var hardStops, cautions []types.SuitabilityRule
	for _, r := range set.Rules {
		if !Applies(r, topic, profile) {
			continue
		}
		if r.Severity == types.SeverityHardStop {
			hardStops = append(hardStops, r)
		} else {
			cautions = append(cautions, r)
		}
	}

	if len(hardStops) > 0 {
		result.FinalGrade = types.GradeF
		result.DoseMultiplier = 0
		result.HardStop = true
		result.Note = joinNotes(hardStops)
		result.MatchedRules = ruleIDs(hardStops)
		return result
	}
	if len(cautions) == 0 {
		return result
	}

	delta := 0
	for _, r := range cautions {
		delta += r.Actions.GradeDelta
		if r.Actions.DoseMultiplier != nil {
			result.DoseMultiplier *= *r.Actions.DoseMultiplier
		}
	}
	result.FinalGrade = grade.Shift(-delta)
	result.Note = joinNotes(cautions)
	result.MatchedRules = ruleIDs(cautions)
	return result
}

// Applies reports whether rule covers topic and its predicate holds for
// profile.
func Applies(rule types.SuitabilityRule, topic string, profile types.Profile) bool {
	return coversTopic(rule.AppliesTo, topic) && Matches(rule.Profile, profile)
}

func coversTopic(appliesTo []string, topic string) bool {
	for _, t := range appliesTo {
		if strings.EqualFold(t, types.WildcardTopic) || strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

// Matches reports whether every condition set in p holds for profile.
// Age bounds fail when the profile age is unknown.
func Matches(p types.ProfilePredicate, profile types.Profile) bool {
	if p.Pregnant != nil && *p.Pregnant != profile.Pregnant {
		return false
	}
	if p.Breastfeeding != nil && *p.Breastfeeding != profile.Breastfeeding {
		return false
	}
	if len(p.Sex) > 0 && !oneOf(profile.Sex, p.Sex) {
		return false
	}
	if len(p.AgeGroup) > 0 && !oneOf(profile.AgeGroup, p.AgeGroup) {
		return false
	}
	if len(p.ActivityLevel) > 0 && !oneOf(profile.ActivityLevel, p.ActivityLevel) {
		return false
	}
	if len(p.Conditions) > 0 && !intersects(profile.Conditions, p.Conditions) {
		return false
	}
	if len(p.Medications) > 0 && !intersects(profile.Medications, p.Medications) {
		return false
	}
	if len(p.Allergies) > 0 && !intersects(profile.Allergies, p.Allergies) {
		return false
	}
	if p.AgeMin != nil && (profile.Age == nil || *profile.Age < *p.AgeMin) {
		return false
	}
	if p.AgeMax != nil && (profile.Age == nil || *profile.Age > *p.AgeMax) {
		return false
	}
	return true
}

// oneOf is the equality/membership comparator for scalar attributes.
func oneOf(value string, allowed []string) bool {
	if value == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}

// intersects is the membership comparator for set attributes.
func intersects(have, want []string) bool {
	for _, h := range have {
		if oneOf(h, want) {
			return true
		}
	}
	return false
}

func joinNotes(rules []types.SuitabilityRule) string {
	var notes []string
	for _, r := range rules {
		if r.Actions.Note != "" {
			notes = append(notes, r.Actions.Note)
		}
	}
	return strings.Join(notes, " ")
}

func ruleIDs(rules []types.SuitabilityRule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}
