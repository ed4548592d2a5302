// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/corpus"
	"github.com/pdiddy/evidence-engine/internal/rules"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Compile, verify and apply suitability rules",
	Long: `Rules manages the suitability rule-set that personalizes evidence grades.
Rule sources are YAML or JSON files; compile validates them all-or-nothing
and writes a hashed, versioned rule-set atomically.`,
}

// --- compile subcommand ---

var rulesCompileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Validate rule sources and write the compiled rule-set",
	Long: `Compile loads every *.yaml, *.yml and *.json file in the rules directory.
Any invalid rule aborts the whole compile. The compiled rule-set records
the evidence index version it was built against; without --index-version
the latest corpus filter run identifies the index.`,
	RunE: runRulesCompile,
}

func runRulesCompile(cmd *cobra.Command, args []string) error {
	dir := stringSetting(cmd, "rules-dir", "rules.rules_dir")
	out := stringSetting(cmd, "out", "rules.compiled_path")

	indexVersion, err := resolveIndexVersion(cmd)
	if err != nil {
		return err
	}

	loaded, summary, err := rules.LoadDir(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "loaded %d rules from %d files (%d duplicates dropped)\n",
		summary.Rules, summary.Files, summary.Duplicates)

	set, err := rules.Compile(loaded, indexVersion, time.Now())
	if err != nil {
		return err
	}
	if err := rules.Save(out, set); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "compiled %s (index %s, hash %s) -> %s\n",
		set.Version, set.IndexVersion, set.Hash[:12], out)
	return nil
}

// resolveIndexVersion returns --index-version, the configured index
// version, or the ID of the latest corpus run, in that order.
func resolveIndexVersion(cmd *cobra.Command) (string, error) {
	if v := stringSetting(cmd, "index-version", "rules.index_version"); v != "" {
		return v, nil
	}
	store, err := corpus.NewStore(corpusConfig(cmd))
	if err != nil {
		return "", err
	}
	defer store.Close()

	run, err := store.LatestRun(cmd.Context())
	if errors.Is(err, corpus.ErrNoRuns) {
		return "", fmt.Errorf("--index-version is required: the corpus has no filter runs")
	}
	if err != nil {
		return "", err
	}
	logger.Debug("index version from corpus", "run", run.ID)
	return run.ID, nil
}

// --- verify subcommand ---

var rulesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a compiled rule-set's hash and index version",
	RunE:  runRulesVerify,
}

func runRulesVerify(cmd *cobra.Command, args []string) error {
	path := stringSetting(cmd, "compiled", "rules.compiled_path")
	set, err := rules.ReadCompiled(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %s, %d rules, index %s, hash ok\n",
		path, set.Version, len(set.Rules), set.IndexVersion)

	if current, _ := cmd.Flags().GetString("index-version"); current != "" && rules.Stale(set, current) {
		return fmt.Errorf("compiled rules are stale: built against index %s, current is %s", set.IndexVersion, current)
	}
	return nil
}

// --- apply subcommand ---

var rulesApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Personalize an evidence grade for a profile",
	Long: `Apply evaluates the compiled rule-set for a topic and intrinsic grade
against a user profile (YAML or JSON) and prints the final grade, dose
multiplier and suitability note.`,
	RunE: runRulesApply,
}

func runRulesApply(cmd *cobra.Command, args []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	if topic == "" {
		return fmt.Errorf("--topic is required")
	}
	gradeFlag, _ := cmd.Flags().GetString("grade")
	grade, err := types.ParseGrade(gradeFlag)
	if err != nil {
		return err
	}

	set, err := rules.ReadCompiled(stringSetting(cmd, "compiled", "rules.compiled_path"))
	if err != nil {
		return err
	}

	var profile types.Profile
	if path, _ := cmd.Flags().GetString("profile"); path != "" {
		profile, err = readProfile(path)
		if err != nil {
			return err
		}
	}

	result := rules.Apply(topic, grade, profile, set)
	runMetrics.ObserveSuitability(result)
	logger.Debug("suitability applied", "topic", topic, "matched", result.MatchedRules)

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(result)
	}

	fmt.Fprintf(os.Stdout, "%s: %s -> %s (dose x%.2f)\n", topic, result.IntrinsicGrade, result.FinalGrade, result.DoseMultiplier)
	if result.HardStop {
		fmt.Fprintln(os.Stdout, "hard stop")
	}
	if result.Note != "" {
		fmt.Fprintln(os.Stdout, result.Note)
	}
	return nil
}

// readProfile parses a profile file. YAML is a superset of JSON, so both
// formats decode with the YAML parser.
func readProfile(path string) (types.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Profile{}, fmt.Errorf("reading profile: %w", err)
	}
	var p types.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return types.Profile{}, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return p, nil
}

func init() {
	rulesCmd.PersistentFlags().String("corpus-dir", "corpus", "base directory for the corpus (contains index/)")

	rulesCompileCmd.Flags().String("rules-dir", "rules", "directory of rule source files")
	rulesCompileCmd.Flags().String("out", "rules/compiled/rules.yaml", "compiled rule-set output path")
	rulesCompileCmd.Flags().String("index-version", "", "evidence index version (default: latest corpus run)")

	rulesVerifyCmd.Flags().String("compiled", "rules/compiled/rules.yaml", "compiled rule-set path")
	rulesVerifyCmd.Flags().String("index-version", "", "fail if the rule-set was compiled against another index version")

	rulesApplyCmd.Flags().String("compiled", "rules/compiled/rules.yaml", "compiled rule-set path")
	rulesApplyCmd.Flags().String("topic", "", "topic tag, e.g. creatine")
	rulesApplyCmd.Flags().String("grade", "", "intrinsic grade A-F")
	rulesApplyCmd.Flags().String("profile", "", "user profile file (YAML or JSON)")
	rulesApplyCmd.Flags().Bool("json", false, "output the result as JSON")

	rulesCmd.AddCommand(rulesCompileCmd)
	rulesCmd.AddCommand(rulesVerifyCmd)
	rulesCmd.AddCommand(rulesApplyCmd)

	rootCmd.AddCommand(rulesCmd)
}
