// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rules

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// VersionPrefix starts every compiled rule-set version label.
const VersionPrefix = "rules-"

const versionTimeFmt = "20060102T150405Z"

// ErrHashMismatch is returned when a compiled rule-set's content does not
// match its recorded hash.
var ErrHashMismatch = errors.New("compiled rule-set hash mismatch")

// Compile seals rules into a CompiledRuleSet against the given evidence
// index version. Compiling the same rules twice yields the same Hash; only
// Version and GeneratedAt follow the clock.
func Compile(rules []types.SuitabilityRule, indexVersion string, now time.Time) (types.CompiledRuleSet, error) {
	canon := canonicalRules(rules)
	hash, err := Hash(canon)
	if err != nil {
		return types.CompiledRuleSet{}, err
	}
	now = now.UTC()
	return types.CompiledRuleSet{
		Version:      VersionPrefix + now.Format(versionTimeFmt),
		IndexVersion: indexVersion,
		GeneratedAt:  now.Truncate(time.Second),
		Rules:        canon,
		Hash:         hash,
	}, nil
}

// Hash returns the hex SHA-256 of the canonical JSON form of rules. Struct
// fields serialize in declaration order, so the form is stable.
func Hash(rules []types.SuitabilityRule) (string, error) {
	data, err := json.Marshal(canonicalRules(rules))
	if err != nil {
		return "", fmt.Errorf("serializing rules: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// canonicalRules copies rules with nil lists replaced by empty ones so that
// a YAML round trip does not change the hash.
func canonicalRules(rules []types.SuitabilityRule) []types.SuitabilityRule {
	out := make([]types.SuitabilityRule, len(rules))
	for i, r := range rules {
		if r.AppliesTo == nil {
			r.AppliesTo = []string{}
		}
		out[i] = r
	}
	return out
}

// Verify recomputes the hash of set.Rules and compares it to set.Hash.
func Verify(set types.CompiledRuleSet) error {
	got, err := Hash(set.Rules)
	if err != nil {
		return err
	}
	if got != set.Hash {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrHashMismatch, set.Hash, got)
	}
	return nil
}

// Stale reports whether set was compiled against a different evidence
// index version than the current one.
func Stale(set types.CompiledRuleSet, indexVersion string) bool {
	return set.IndexVersion != indexVersion
}

// Save writes set to path as YAML. The file is written to a temporary file
// in the same directory and renamed into place, so readers see either the
// previous rule-set or the complete new one.
func Save(path string, set types.CompiledRuleSet) error {
	data, err := yaml.Marshal(&set)
	if err != nil {
		return fmt.Errorf("marshaling compiled rules: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	committed = true
	return nil
}

// ReadCompiled loads a compiled rule-set and verifies its hash.
func ReadCompiled(path string) (types.CompiledRuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.CompiledRuleSet{}, fmt.Errorf("reading compiled rules: %w", err)
	}
	var set types.CompiledRuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return types.CompiledRuleSet{}, fmt.Errorf("parsing compiled rules %s: %w", path, err)
	}
	if err := Verify(set); err != nil {
		return types.CompiledRuleSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}
