package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// EffectCutoffs are the ascending effect-size thresholds used by grading.
type EffectCutoffs struct {
	// Small is the smallest effect that can earn a C.
	Small float64 `json:"small" yaml:"small" mapstructure:"small"`

	// B is the minimum |effect| for grade B.
	B float64 `json:"b" yaml:"b" mapstructure:"b"`

	// A is the minimum |effect| for grade A.
	A float64 `json:"a" yaml:"a" mapstructure:"a"`
}

// BankingConfig holds the weighting and grading parameters for the
// aggregator. It is loaded once per run and never mutated afterwards.
type BankingConfig struct {
	// DesignWeights maps a study design to its evidence weight multiplier.
	DesignWeights map[string]float64 `json:"design_weights" yaml:"design_weights" mapstructure:"design_weights"`

	// DefaultWeight applies to designs missing from DesignWeights.
	DefaultWeight float64 `json:"default_weight" yaml:"default_weight" mapstructure:"default_weight"`

	// WMin is the minimum total weight required to grade above D.
	WMin float64 `json:"w_min" yaml:"w_min" mapstructure:"w_min"`

	// Cutoffs are the small/B/A effect-size thresholds.
	Cutoffs EffectCutoffs `json:"cutoffs" yaml:"cutoffs" mapstructure:"cutoffs"`

	// NullEps is the |effect| below which a consistent pool counts as null.
	NullEps float64 `json:"null_eps" yaml:"null_eps" mapstructure:"null_eps"`

	// NegativeThresh is the magnitude at or beyond which a negative pool grades F.
	NegativeThresh float64 `json:"negative_thresh" yaml:"negative_thresh" mapstructure:"negative_thresh"`

	// DirectionFallback is the magnitude substituted for direction-only outcomes.
	DirectionFallback float64 `json:"direction_fallback" yaml:"direction_fallback" mapstructure:"direction_fallback"`
}

// DesignWeight returns the configured weight for d, falling back to
// DefaultWeight for designs without an entry.
func (c BankingConfig) DesignWeight(d StudyDesign) float64 {
	if w, ok := c.DesignWeights[string(d)]; ok {
		return w
	}
	return c.DefaultWeight
}

// Version returns a short content hash identifying this configuration.
// Two configs with identical values share a version.
func (c BankingConfig) Version() string {
	data, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(data))[:12]
}

// RecencyPolicy controls the per-tag recency guarantee of the corpus filter.
type RecencyPolicy struct {
	// DefaultTopN is the number of most recent records guaranteed per tag.
	DefaultTopN int `json:"default_top_n" yaml:"default_top_n" mapstructure:"default_top_n"`

	// LargeTopN replaces DefaultTopN for large tags.
	LargeTopN int `json:"large_top_n" yaml:"large_top_n" mapstructure:"large_top_n"`

	// LargeTags are always treated as large.
	LargeTags []string `json:"large_tags" yaml:"large_tags" mapstructure:"large_tags"`

	// LargeTagMinRecords makes any tag with at least this many eligible
	// records large. Zero disables count-based promotion.
	LargeTagMinRecords int `json:"large_tag_min_records" yaml:"large_tag_min_records" mapstructure:"large_tag_min_records"`

	// MinQuality is the quality floor for recency eligibility.
	MinQuality float64 `json:"min_quality" yaml:"min_quality" mapstructure:"min_quality"`
}

// IsLargeTag reports whether tag is in the configured large-tag set.
func (p RecencyPolicy) IsLargeTag(tag string) bool {
	for _, t := range p.LargeTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// QualityThresholdTable is the static policy for the monthly corpus filter.
type QualityThresholdTable struct {
	// Thresholds maps a topic tag to its minimum quality score.
	Thresholds map[string]float64 `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`

	// DefaultThreshold applies to tags missing from Thresholds.
	DefaultThreshold float64 `json:"default_threshold" yaml:"default_threshold" mapstructure:"default_threshold"`

	// Recency is the recency-guarantee policy.
	Recency RecencyPolicy `json:"recency" yaml:"recency" mapstructure:"recency"`

	// BypassDesigns are always included regardless of quality.
	BypassDesigns []StudyDesign `json:"bypass_designs" yaml:"bypass_designs" mapstructure:"bypass_designs"`

	// ExceptionalQuality is the score at or above which a record bypasses
	// every threshold.
	ExceptionalQuality float64 `json:"exceptional_quality" yaml:"exceptional_quality" mapstructure:"exceptional_quality"`
}

// Threshold returns the quality threshold for tag. Unknown tags use
// DefaultThreshold so new topics remain filterable.
func (t QualityThresholdTable) Threshold(tag string) float64 {
	if v, ok := t.Thresholds[tag]; ok {
		return v
	}
	if v, ok := t.Thresholds[strings.ToLower(tag)]; ok {
		return v
	}
	return t.DefaultThreshold
}

// Bypasses reports whether design is on the always-include list.
func (t QualityThresholdTable) Bypasses(design StudyDesign) bool {
	for _, d := range t.BypassDesigns {
		if d == design {
			return true
		}
	}
	return false
}

// RulesConfig holds settings for the suitability rule stage.
type RulesConfig struct {
	// RulesDir holds the rule source files (*.yaml, *.yml, *.json).
	RulesDir string `json:"rules_dir" yaml:"rules_dir" mapstructure:"rules_dir"`

	// CompiledPath is where the compiled rule-set is written.
	CompiledPath string `json:"compiled_path" yaml:"compiled_path" mapstructure:"compiled_path"`

	// IndexVersion is the evidence-index version rules are compiled against.
	IndexVersion string `json:"index_version" yaml:"index_version" mapstructure:"index_version"`
}

// CorpusConfig holds settings for the corpus store.
type CorpusConfig struct {
	// CorpusDir is the base directory for the corpus (contains index/).
	CorpusDir string `json:"corpus_dir" yaml:"corpus_dir" mapstructure:"corpus_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Banking    BankingConfig         `json:"banking" yaml:"banking" mapstructure:"banking"`
	Thresholds QualityThresholdTable `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
	Rules      RulesConfig           `json:"rules" yaml:"rules" mapstructure:"rules"`
	Corpus     CorpusConfig          `json:"corpus" yaml:"corpus" mapstructure:"corpus"`
}
