// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Severity classifies how a suitability rule affects a grade.
type Severity string

const (
	// SeverityHardStop forces the final grade to F.
	SeverityHardStop Severity = "hard_stop"

	// SeverityCaution shifts the grade and dose and adds a note.
	SeverityCaution Severity = "caution"
)

// WildcardTopic in AppliesTo makes a rule apply to every topic.
const WildcardTopic = "all"

// ProfilePredicate is the closed set of profile conditions a rule can test.
// Unset fields are not tested. Every set field must be satisfied for the
// rule to apply.
type ProfilePredicate struct {
	// Pregnant requires the profile pregnancy flag to equal this value.
	Pregnant *bool `json:"pregnant,omitempty" yaml:"pregnant,omitempty"`

	// Breastfeeding requires the profile breastfeeding flag to equal this value.
	Breastfeeding *bool `json:"breastfeeding,omitempty" yaml:"breastfeeding,omitempty"`

	// Sex requires the profile sex to be one of these values.
	Sex []string `json:"sex,omitempty" yaml:"sex,omitempty"`

	// AgeGroup requires the profile age group to be one of these values.
	AgeGroup []string `json:"age_group,omitempty" yaml:"age_group,omitempty"`

	// ActivityLevel requires the profile activity level to be one of these values.
	ActivityLevel []string `json:"activity_level,omitempty" yaml:"activity_level,omitempty"`

	// Conditions requires the profile to list at least one of these conditions.
	Conditions []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// Medications requires the profile to list at least one of these medications.
	Medications []string `json:"medications,omitempty" yaml:"medications,omitempty"`

	// Allergies requires the profile to list at least one of these allergies.
	Allergies []string `json:"allergies,omitempty" yaml:"allergies,omitempty"`

	// AgeMin requires a known profile age of at least this value.
	AgeMin *int `json:"age_min,omitempty" yaml:"age_min,omitempty"`

	// AgeMax requires a known profile age of at most this value.
	AgeMax *int `json:"age_max,omitempty" yaml:"age_max,omitempty"`
}

// RuleActions are the effects of a caution rule. Hard-stop rules may carry
// a note; their grade and dose effects are superseded by the hard stop.
type RuleActions struct {
	// GradeDelta shifts the grade; negative values worsen it.
	GradeDelta int `json:"grade_delta,omitempty" yaml:"grade_delta,omitempty"`

	// DoseMultiplier scales the recommended dose. Nil means 1.0.
	DoseMultiplier *float64 `json:"dose_multiplier,omitempty" yaml:"dose_multiplier,omitempty"`

	// Note is the user-visible guidance text.
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// SuitabilityRule is one declarative safety rule.
type SuitabilityRule struct {
	// ID uniquely identifies the rule across all sources.
	ID string `json:"id" yaml:"id"`

	// AppliesTo lists the topic tags the rule covers, or WildcardTopic.
	AppliesTo []string `json:"applies_to" yaml:"applies_to"`

	// Profile is the predicate a user profile must satisfy.
	Profile ProfilePredicate `json:"profile" yaml:"profile"`

	// Severity is hard_stop or caution.
	Severity Severity `json:"severity" yaml:"severity"`

	// Actions are the effects applied when the rule matches.
	Actions RuleActions `json:"actions" yaml:"actions"`
}

// CompiledRuleSet is the versioned, hash-sealed artifact produced by rule
// compilation. It is replaced wholesale on recompilation.
type CompiledRuleSet struct {
	// Version is a human-meaningful label (prefix + UTC timestamp).
	Version string `json:"version" yaml:"version"`

	// IndexVersion is the evidence-index version the rules were compiled against.
	IndexVersion string `json:"index_version" yaml:"index_version"`

	// GeneratedAt is the compilation time.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	// Rules is the ordered rule list.
	Rules []SuitabilityRule `json:"rules" yaml:"rules"`

	// Hash is the SHA-256 of the canonical serialization of Rules.
	Hash string `json:"hash" yaml:"hash"`
}

// Profile describes the user a grade is personalized for.
type Profile struct {
	Age           *int     `json:"age,omitempty" yaml:"age,omitempty"`
	Sex           string   `json:"sex,omitempty" yaml:"sex,omitempty"`
	AgeGroup      string   `json:"age_group,omitempty" yaml:"age_group,omitempty"`
	ActivityLevel string   `json:"activity_level,omitempty" yaml:"activity_level,omitempty"`
	Pregnant      bool     `json:"pregnant,omitempty" yaml:"pregnant,omitempty"`
	Breastfeeding bool     `json:"breastfeeding,omitempty" yaml:"breastfeeding,omitempty"`
	Conditions    []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Medications   []string `json:"medications,omitempty" yaml:"medications,omitempty"`
	Allergies     []string `json:"allergies,omitempty" yaml:"allergies,omitempty"`
}

// Suitability is the personalized outcome of applying a rule-set.
type Suitability struct {
	// IntrinsicGrade is the grade before personalization.
	IntrinsicGrade Grade `json:"intrinsic_grade" yaml:"intrinsic_grade"`

	// FinalGrade is the personalized grade.
	FinalGrade Grade `json:"final_grade" yaml:"final_grade"`

	// Note concatenates the notes of the applied rules.
	Note string `json:"suitability_note,omitempty" yaml:"suitability_note,omitempty"`

	// DoseMultiplier is the product of applied dose multipliers (1.0 by default).
	DoseMultiplier float64 `json:"dose_multiplier" yaml:"dose_multiplier"`

	// HardStop is true when a hard_stop rule forced the grade.
	HardStop bool `json:"hard_stop,omitempty" yaml:"hard_stop,omitempty"`

	// MatchedRules lists the IDs of the rules that applied, in rule order.
	MatchedRules []string `json:"matched_rules,omitempty" yaml:"matched_rules,omitempty"`
}
