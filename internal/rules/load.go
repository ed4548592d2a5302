// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rules loads, compiles and evaluates suitability rules. Rules gate
// safety decisions, so loading is all-or-nothing: the first malformed rule
// aborts the whole load with a *ValidationError.
// Implements: docs/ARCHITECTURE § Suitability Rules.
package rules

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// wrapperKey is the key under which a wrapper object holds its rule list.
const wrapperKey = "rules"

// ValidationError describes a malformed rule definition.
type ValidationError struct {
	Source string // file the rule came from
	Index  int    // position of the rule within its file, -1 for file-level errors
	RuleID string // rule id when known
	Field  string // offending field
	Msg    string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Source)
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": rule %d", e.Index)
	}
	if e.RuleID != "" {
		fmt.Fprintf(&b, " (%s)", e.RuleID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Msg)
	return b.String()
}

// LoadSummary holds counts from a rule load.
type LoadSummary struct {
	Files      int
	Rules      int
	Duplicates int
}

// Load reads every path in order and returns the merged rule list. Rule
// IDs are unique across sources: the first occurrence wins and later
// duplicates are dropped.
func Load(paths ...string) ([]types.SuitabilityRule, LoadSummary, error) {
	var (
		all     []types.SuitabilityRule
		summary LoadSummary
		seen    = make(map[string]bool)
	)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, LoadSummary{}, fmt.Errorf("reading rules %s: %w", path, err)
		}
		parsed, err := Parse(data, path)
		if err != nil {
			return nil, LoadSummary{}, err
		}
		summary.Files++

		for _, r := range parsed {
			if seen[r.ID] {
				summary.Duplicates++
				continue
			}
			seen[r.ID] = true
			all = append(all, r)
		}
	}

	summary.Rules = len(all)
	return all, summary, nil
}

// LoadDir loads every *.yaml, *.yml and *.json file in dir, in lexical
// filename order.
func LoadDir(dir string) ([]types.SuitabilityRule, LoadSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, LoadSummary{}, fmt.Errorf("reading rules directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	return Load(paths...)
}

// Parse decodes one rule source. The document may be a bare list of rules,
// a single rule object, or an object holding the list under "rules". JSON
// documents are accepted as YAML.
func Parse(data []byte, source string) ([]types.SuitabilityRule, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Source: source, Index: -1, Msg: fmt.Sprintf("parse error: %v", err)}
	}

	var raw []any
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case []any:
		raw = v
	case map[string]any:
		if list, ok := v[wrapperKey]; ok {
			items, ok := list.([]any)
			if !ok {
				return nil, &ValidationError{Source: source, Index: -1, Field: wrapperKey, Msg: "must be a list"}
			}
			raw = items
		} else {
			raw = []any{v}
		}
	default:
		return nil, &ValidationError{Source: source, Index: -1, Msg: fmt.Sprintf("expected a rule, a list of rules, or a %q wrapper, got %T", wrapperKey, doc)}
	}

	rules := make([]types.SuitabilityRule, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &ValidationError{Source: source, Index: i, Msg: fmt.Sprintf("rule must be an object, got %T", item)}
		}
		r, err := parseRule(obj)
		if err != nil {
			err.Source = source
			err.Index = i
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func parseRule(obj map[string]any) (types.SuitabilityRule, *ValidationError) {
	var r types.SuitabilityRule

	id, _ := obj["id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return r, &ValidationError{Field: "id", Msg: "missing or empty"}
	}
	r.ID = id

	fail := func(field, format string, args ...any) *ValidationError {
		return &ValidationError{RuleID: id, Field: field, Msg: fmt.Sprintf(format, args...)}
	}

	applies, ok := obj["applies_to"].([]any)
	if !ok {
		return r, fail("applies_to", "must be a list of topics, got %T", obj["applies_to"])
	}
	r.AppliesTo = make([]string, 0, len(applies))
	for _, a := range applies {
		s, ok := a.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return r, fail("applies_to", "entries must be non-empty strings, got %v", a)
		}
		r.AppliesTo = append(r.AppliesTo, strings.TrimSpace(s))
	}

	sev, _ := obj["severity"].(string)
	switch types.Severity(sev) {
	case types.SeverityHardStop, types.SeverityCaution:
		r.Severity = types.Severity(sev)
	default:
		return r, fail("severity", "must be %q or %q, got %v", types.SeverityHardStop, types.SeverityCaution, obj["severity"])
	}

	if p, present := obj["profile"]; present && p != nil {
		m, ok := p.(map[string]any)
		if !ok {
			return r, fail("profile", "must be an object, got %T", p)
		}
		pred, err := parsePredicate(m)
		if err != nil {
			err.RuleID = id
			return r, err
		}
		r.Profile = pred
	}

	if a, present := obj["actions"]; present && a != nil {
		m, ok := a.(map[string]any)
		if !ok {
			return r, fail("actions", "must be an object, got %T", a)
		}
		actions, err := parseActions(m)
		if err != nil {
			err.RuleID = id
			return r, err
		}
		r.Actions = actions
	}

	return r, nil
}

// parsePredicate converts a profile mapping into the closed predicate set.
// Unknown keys are rejected so a typo cannot silently disable a rule.
func parsePredicate(m map[string]any) (types.ProfilePredicate, *ValidationError) {
	var p types.ProfilePredicate

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		field := "profile." + k
		var err *ValidationError
		switch k {
		case "pregnant":
			p.Pregnant, err = boolValue(field, v)
		case "breastfeeding":
			p.Breastfeeding, err = boolValue(field, v)
		case "sex":
			p.Sex, err = stringSet(field, v)
		case "age_group":
			p.AgeGroup, err = stringSet(field, v)
		case "activity_level":
			p.ActivityLevel, err = stringSet(field, v)
		case "conditions":
			p.Conditions, err = stringSet(field, v)
		case "medications":
			p.Medications, err = stringSet(field, v)
		case "allergies":
			p.Allergies, err = stringSet(field, v)
		case "age_min":
			p.AgeMin, err = intValue(field, v)
		case "age_max":
			p.AgeMax, err = intValue(field, v)
		default:
			err = &ValidationError{Field: field, Msg: "unsupported predicate key"}
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func parseActions(m map[string]any) (types.RuleActions, *ValidationError) {
	var a types.RuleActions
	for k, v := range m {
		field := "actions." + k
		switch k {
		case "grade_delta":
			d, err := intValue(field, v)
			if err != nil {
				return a, err
			}
			a.GradeDelta = *d
		case "dose_multiplier":
			x, ok := number(v)
			if !ok || x < 0 {
				return a, &ValidationError{Field: field, Msg: fmt.Sprintf("must be a non-negative number, got %v", v)}
			}
			a.DoseMultiplier = &x
		case "note":
			s, ok := v.(string)
			if !ok {
				return a, &ValidationError{Field: field, Msg: fmt.Sprintf("must be a string, got %T", v)}
			}
			a.Note = strings.TrimSpace(s)
		default:
			return a, &ValidationError{Field: field, Msg: "unsupported action"}
		}
	}
	return a, nil
}

func boolValue(field string, v any) (*bool, *ValidationError) {
	b, ok := v.(bool)
	if !ok {
		return nil, &ValidationError{Field: field, Msg: fmt.Sprintf("must be a boolean, got %v", v)}
	}
	return &b, nil
}

// stringSet accepts a single string or a list of strings.
func stringSet(field string, v any) ([]string, *ValidationError) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			break
		}
		return []string{strings.TrimSpace(x)}, nil
	case []any:
		if len(x) == 0 {
			break
		}
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, &ValidationError{Field: field, Msg: fmt.Sprintf("entries must be non-empty strings, got %v", item)}
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	}
	return nil, &ValidationError{Field: field, Msg: fmt.Sprintf("must be a string or a non-empty list of strings, got %v", v)}
}

func intValue(field string, v any) (*int, *ValidationError) {
	x, ok := number(v)
	if !ok || x != math.Trunc(x) {
		return nil, &ValidationError{Field: field, Msg: fmt.Sprintf("must be an integer, got %v", v)}
	}
	i := int(x)
	return &i, nil
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
