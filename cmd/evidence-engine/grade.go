package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/aggregate"
	"github.com/pdiddy/evidence-engine/internal/config"
	"github.com/pdiddy/evidence-engine/internal/corpus"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Pool study records into evidence grades",
	Long: `Grade pools the outcomes of study records into a graded result for each
(topic, domain) pair. Records come from --input or, with --from-corpus, from
the curated corpus store. With --topic and --domain only that pair is graded.

Weights and grading cutoffs come from the banking config (--banking).`,
	RunE: runGrade,
}

func runGrade(cmd *cobra.Command, args []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	domain, _ := cmd.Flags().GetString("domain")
	if (topic == "") != (domain == "") {
		return fmt.Errorf("--topic and --domain must be given together")
	}

	cfg, err := config.LoadBanking(stringSetting(cmd, "banking", "banking_file"))
	if err != nil {
		return err
	}
	logger.Debug("banking config loaded", "version", cfg.Version())

	var cards []types.StudyCard
	if fromCorpus, _ := cmd.Flags().GetBool("from-corpus"); fromCorpus {
		store, err := corpus.NewStore(corpusConfig(cmd))
		if err != nil {
			return err
		}
		defer store.Close()
		cards, err = store.Cards(cmd.Context(), corpus.QueryOptions{Tag: topic, MaxResults: corpusScanLimit})
		if err != nil {
			return err
		}
	} else {
		cards, _, err = readInput(cmd, os.Stderr)
		if err != nil {
			return err
		}
	}

	start := time.Now()
	var results []types.AggregationResult
	if topic != "" {
		results = []types.AggregationResult{aggregate.AggregatePair(cards, topic, domain, cfg)}
	} else {
		results, err = aggregate.AggregateAll(cmd.Context(), cards, cfg)
		if err != nil {
			return err
		}
	}
	runMetrics.ObserveStage("grade", time.Since(start))
	for _, r := range results {
		runMetrics.ObserveGrade(r.Grade)
	}
	logger.Info("graded", "pairs", len(results), "records", len(cards))

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(results)
	}
	return formatGradeOutput(results, cfg.Version())
}

func formatGradeOutput(results []types.AggregationResult, cfgVersion string) error {
	if len(results) == 0 {
		fmt.Println("No (topic, domain) pairs found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-20s  %-16s  %-5s  %7s  %5s  %7s  %5s  %3s\n",
		"Topic", "Domain", "Grade", "Effect", "Cons", "Weight", "Conf", "N")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 84))

	for _, r := range results {
		fmt.Fprintf(os.Stdout, "%-20s  %-16s  %-5s  %7.3f  %5.2f  %7.2f  %5.2f  %3d\n",
			truncate(r.Topic, 20), truncate(r.Domain, 16), r.Grade,
			r.PooledEffect, r.Consistency, r.TotalWeight, r.Confidence, r.Contributing)
	}

	fmt.Fprintf(os.Stdout, "\n%d pairs graded (banking config %s)\n", len(results), cfgVersion)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	gradeCmd.Flags().String("input", "", "JSONL file of study cards (- for stdin)")
	gradeCmd.Flags().Bool("from-corpus", false, "read records from the corpus store instead of --input")
	gradeCmd.Flags().String("corpus-dir", "corpus", "base directory for the corpus (contains index/)")
	gradeCmd.Flags().String("banking", "", "banking config file (YAML or JSON)")
	gradeCmd.Flags().String("topic", "", "grade only this topic tag")
	gradeCmd.Flags().String("domain", "", "grade only this outcome domain")
	gradeCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(gradeCmd)
}
