// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/config"
	"github.com/pdiddy/evidence-engine/internal/corpus"
	"github.com/pdiddy/evidence-engine/internal/filter"
	"github.com/pdiddy/evidence-engine/internal/ingest"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Apply the monthly quality and recency filter to a batch",
	Long: `Filter curates a batch of study records. In monthly mode each (record,
tag) pair is kept for an always-include design, exceptional quality, a
recency guarantee, or a quality score at the tag's threshold; records
qualifying for no tag are dropped. Bootstrap mode passes every record.

Retained records are written as JSONL to --output; --store saves the run
and its audit decisions to the corpus store.`,
	RunE: runFilter,
}

func runFilter(cmd *cobra.Command, args []string) error {
	modeFlag, _ := cmd.Flags().GetString("mode")
	mode, err := types.ParseFilterMode(modeFlag)
	if err != nil {
		return err
	}

	table, err := config.LoadThresholds(stringSetting(cmd, "thresholds", "thresholds_file"))
	if err != nil {
		return err
	}

	cards, _, err := readInput(cmd, os.Stderr)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := filter.Filter(cards, table, mode)
	if err != nil {
		return err
	}
	runMetrics.ObserveStage("filter", time.Since(start))
	for _, d := range res.Decisions {
		runMetrics.ObserveDecision(d)
	}
	runMetrics.AddRejectedAllTags(res.RejectedAllTags)

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		if err := ingest.WriteFile(out, res.Retained); err != nil {
			return err
		}
	}

	if save, _ := cmd.Flags().GetBool("store"); save {
		store, err := corpus.NewStore(corpusConfig(cmd))
		if err != nil {
			return err
		}
		defer store.Close()
		run, err := store.SaveRun(cmd.Context(), res, time.Now())
		if err != nil {
			return err
		}
		logger.Info("filter run stored", "run", run.ID, "retained", run.Retained)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(struct {
			Mode     types.FilterMode `json:"mode"`
			Input    int              `json:"input"`
			Retained int              `json:"retained"`
			Counts   map[string]int   `json:"counts"`
		}{res.Mode, res.Input, len(res.Retained), res.AuditCounts()})
	}
	filter.Report(os.Stdout, res)
	return nil
}

func init() {
	filterCmd.Flags().String("input", "", "JSONL file of study cards (- for stdin)")
	filterCmd.Flags().String("mode", string(types.ModeMonthly), "filter mode: monthly or bootstrap")
	filterCmd.Flags().String("thresholds", "", "quality threshold table (YAML or JSON)")
	filterCmd.Flags().String("output", "", "write retained records as JSONL to this path")
	filterCmd.Flags().Bool("store", false, "save the run and retained records to the corpus store")
	filterCmd.Flags().String("corpus-dir", "corpus", "base directory for the corpus (contains index/)")
	filterCmd.Flags().Bool("json", false, "print the audit counts as JSON")

	rootCmd.AddCommand(filterCmd)
}
