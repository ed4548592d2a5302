// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads the process-wide engine configuration: the banking
// (weighting and grading) parameters and the corpus quality-threshold table.
// Each loader layers built-in defaults, an optional YAML or JSON file, and
// EVIDENCE_ENGINE_* environment overrides, then validates the result. The
// returned values are meant to be treated as read-only for a whole run.
// Implements: docs/ARCHITECTURE § Configuration.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// EnvPrefix is the environment variable prefix for configuration overrides.
const EnvPrefix = "EVIDENCE_ENGINE"

// DefaultBanking returns the built-in banking configuration.
func DefaultBanking() types.BankingConfig {
	return types.BankingConfig{
		DesignWeights: map[string]float64{
			string(types.DesignMetaAnalysis):     1.5,
			string(types.DesignSystematicReview): 1.3,
			string(types.DesignRCT):              1.0,
			string(types.DesignCrossover):        0.9,
			string(types.DesignCohort):           0.7,
			string(types.DesignCaseControl):      0.5,
			string(types.DesignOther):            0.3,
		},
		DefaultWeight:     0.3,
		WMin:              8.0,
		Cutoffs:           types.EffectCutoffs{Small: 0.10, B: 0.20, A: 0.35},
		NullEps:           0.05,
		NegativeThresh:    0.10,
		DirectionFallback: 0.20,
	}
}

// DefaultThresholds returns the built-in quality-threshold table.
func DefaultThresholds() types.QualityThresholdTable {
	return types.QualityThresholdTable{
		Thresholds:       map[string]float64{},
		DefaultThreshold: 3.0,
		Recency: types.RecencyPolicy{
			DefaultTopN:        2,
			LargeTopN:          10,
			LargeTagMinRecords: 500,
			MinQuality:         2.5,
		},
		BypassDesigns:      []types.StudyDesign{types.DesignMetaAnalysis, types.DesignSystematicReview},
		ExceptionalQuality: 4.5,
	}
}

// LoadBanking reads the banking configuration from path, layered over
// DefaultBanking. An empty path loads defaults plus environment overrides
// (EVIDENCE_ENGINE_BANKING_W_MIN, EVIDENCE_ENGINE_BANKING_CUTOFFS_A, ...).
func LoadBanking(path string) (types.BankingConfig, error) {
	def := DefaultBanking()
	v := newViper("banking")
	v.SetDefault("design_weights", def.DesignWeights)
	v.SetDefault("default_weight", def.DefaultWeight)
	v.SetDefault("w_min", def.WMin)
	v.SetDefault("cutoffs.small", def.Cutoffs.Small)
	v.SetDefault("cutoffs.b", def.Cutoffs.B)
	v.SetDefault("cutoffs.a", def.Cutoffs.A)
	v.SetDefault("null_eps", def.NullEps)
	v.SetDefault("negative_thresh", def.NegativeThresh)
	v.SetDefault("direction_fallback", def.DirectionFallback)

	if err := readFile(v, path); err != nil {
		return types.BankingConfig{}, err
	}

	var cfg types.BankingConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return types.BankingConfig{}, fmt.Errorf("decoding banking config: %w", err)
	}

	weights := make(map[string]float64, len(cfg.DesignWeights))
	for k, w := range cfg.DesignWeights {
		weights[string(types.ParseStudyDesign(k))] = w
	}
	cfg.DesignWeights = weights

	if err := ValidateBanking(cfg); err != nil {
		return types.BankingConfig{}, err
	}
	return cfg, nil
}

// ValidateBanking checks the invariants the aggregator relies on.
func ValidateBanking(cfg types.BankingConfig) error {
	var errs []error
	if cfg.WMin <= 0 {
		errs = append(errs, fmt.Errorf("w_min must be positive, got %v", cfg.WMin))
	}
	c := cfg.Cutoffs
	if c.Small <= 0 || c.Small >= c.B || c.B >= c.A {
		errs = append(errs, fmt.Errorf("cutoffs must be positive and ascending (small < b < a), got %v/%v/%v", c.Small, c.B, c.A))
	}
	if cfg.DefaultWeight < 0 {
		errs = append(errs, fmt.Errorf("default_weight must not be negative, got %v", cfg.DefaultWeight))
	}
	designs := make([]string, 0, len(cfg.DesignWeights))
	for d := range cfg.DesignWeights {
		designs = append(designs, d)
	}
	sort.Strings(designs)
	for _, d := range designs {
		if w := cfg.DesignWeights[d]; w < 0 {
			errs = append(errs, fmt.Errorf("design weight for %q must not be negative, got %v", d, w))
		}
	}
	if cfg.NullEps < 0 || cfg.NegativeThresh < 0 || cfg.DirectionFallback < 0 {
		errs = append(errs, errors.New("null_eps, negative_thresh and direction_fallback must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid banking config: %w", errors.Join(errs...))
	}
	return nil
}

// LoadThresholds reads the quality-threshold table from path, layered over
// DefaultThresholds.
func LoadThresholds(path string) (types.QualityThresholdTable, error) {
	def := DefaultThresholds()
	v := newViper("thresholds")
	v.SetDefault("thresholds", def.Thresholds)
	v.SetDefault("default_threshold", def.DefaultThreshold)
	v.SetDefault("recency.default_top_n", def.Recency.DefaultTopN)
	v.SetDefault("recency.large_top_n", def.Recency.LargeTopN)
	v.SetDefault("recency.large_tags", def.Recency.LargeTags)
	v.SetDefault("recency.large_tag_min_records", def.Recency.LargeTagMinRecords)
	v.SetDefault("recency.min_quality", def.Recency.MinQuality)
	v.SetDefault("bypass_designs", []string{string(types.DesignMetaAnalysis), string(types.DesignSystematicReview)})
	v.SetDefault("exceptional_quality", def.ExceptionalQuality)

	if err := readFile(v, path); err != nil {
		return types.QualityThresholdTable{}, err
	}

	var table types.QualityThresholdTable
	if err := v.Unmarshal(&table); err != nil {
		return types.QualityThresholdTable{}, fmt.Errorf("decoding threshold table: %w", err)
	}
	if table.Thresholds == nil {
		table.Thresholds = map[string]float64{}
	}
	for i, d := range table.BypassDesigns {
		table.BypassDesigns[i] = types.ParseStudyDesign(string(d))
	}

	if err := ValidateThresholds(table); err != nil {
		return types.QualityThresholdTable{}, err
	}
	return table, nil
}

// ValidateThresholds checks the invariants the corpus filter relies on.
func ValidateThresholds(t types.QualityThresholdTable) error {
	var errs []error
	if t.Recency.DefaultTopN < 0 || t.Recency.LargeTopN < 0 {
		errs = append(errs, errors.New("recency top-N values must not be negative"))
	}
	if t.Recency.LargeTagMinRecords < 0 {
		errs = append(errs, errors.New("recency.large_tag_min_records must not be negative"))
	}
	if t.ExceptionalQuality <= 0 {
		errs = append(errs, fmt.Errorf("exceptional_quality must be positive, got %v", t.ExceptionalQuality))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid threshold table: %w", errors.Join(errs...))
	}
	return nil
}

func newViper(section string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix + "_" + strings.ToUpper(section))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}
