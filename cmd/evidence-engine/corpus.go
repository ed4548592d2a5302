// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/corpus"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// corpusScanLimit bounds whole-corpus reads such as grading from the store.
const corpusScanLimit = 1000000

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Query the curated corpus store (retrieve, export, runs)",
	Long: `Corpus reads the SQLite store written by "filter --store". Records carry
the removed-tag provenance of the run that last retained them.`,
}

// --- retrieve subcommand ---

var corpusRetrieveCmd = &cobra.Command{
	Use:   "retrieve [record-id]",
	Short: "List curated records by tag, design or year",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCorpusRetrieve,
}

func runCorpusRetrieve(cmd *cobra.Command, args []string) error {
	store, err := corpus.NewStore(corpusConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(args) == 1 {
		rec, err := store.Record(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(rec)
	}

	results, err := store.Retrieve(cmd.Context(), corpusQueryFromFlags(cmd))
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-24s  %-4s  %-17s  %-7s  %s\n", "ID", "Year", "Design", "Quality", "Tags")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 80))
	for _, r := range results {
		fmt.Fprintf(os.Stdout, "%-24s  %-4d  %-17s  %-7.2f  %s\n",
			truncate(r.ID, 24), r.Year, r.Design, r.QualityScore, strings.Join(r.Tags, ","))
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export subcommand ---

var corpusExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export curated records to YAML or JSON",
	Long: `Export writes the corpus (or a filtered subset) to corpus/index/export.yaml
or export.json. Supports the same filter flags as retrieve.`,
	RunE: runCorpusExport,
}

func runCorpusExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := corpus.NewStore(corpusConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	opts := corpusQueryFromFlags(cmd)

	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = store.ExportJSON(cmd.Context(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

// --- runs subcommand ---

var corpusRunsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List filter runs, or the decisions of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCorpusRuns,
}

func runCorpusRuns(cmd *cobra.Command, args []string) error {
	store, err := corpus.NewStore(corpusConfig(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(args) == 1 {
		decisions, err := store.Decisions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(decisions)
		}
		for _, d := range decisions {
			verdict := "kept   "
			if !d.Include {
				verdict = "removed"
			}
			fmt.Fprintf(os.Stdout, "%s  %-24s  %-20s  %s\n", verdict, truncate(d.RecordID, 24), truncate(d.Tag, 20), d.Reason)
		}
		return nil
	}

	runs, err := store.Runs(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(runs)
	}
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "%s  %s  %-9s  input %d, retained %d, rejected %d\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Mode, r.Input, r.Retained, r.RejectedAllTags)
	}
	return nil
}

// --- shared helpers ---

func corpusConfig(cmd *cobra.Command) types.CorpusConfig {
	dir := stringSetting(cmd, "corpus-dir", "corpus.corpus_dir")
	if dir == "" {
		dir = "corpus"
	}
	return types.CorpusConfig{
		CorpusDir:  dir,
		MaxResults: maxResultsSetting(cmd),
	}
}

func maxResultsSetting(cmd *cobra.Command) int {
	if cmd.Flags().Lookup("max-results") == nil {
		return 0
	}
	return intSetting(cmd, "max-results", "corpus.max_results")
}

func corpusQueryFromFlags(cmd *cobra.Command) corpus.QueryOptions {
	tag, _ := cmd.Flags().GetString("tag")
	design, _ := cmd.Flags().GetString("design")
	minYear, _ := cmd.Flags().GetInt("min-year")
	limit, _ := cmd.Flags().GetInt("limit")

	opts := corpus.QueryOptions{
		Tag:        tag,
		MinYear:    minYear,
		MaxResults: limit,
	}
	if design != "" {
		opts.Design = types.ParseStudyDesign(design)
	}
	return opts
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	corpusCmd.PersistentFlags().String("corpus-dir", "corpus", "base directory for the corpus (contains index/)")
	corpusCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	for _, c := range []*cobra.Command{corpusRetrieveCmd, corpusExportCmd} {
		c.Flags().String("tag", "", "filter by topic tag")
		c.Flags().String("design", "", "filter by study design")
		c.Flags().Int("min-year", 0, "filter to records published in or after this year")
	}
	corpusRetrieveCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	corpusRetrieveCmd.Flags().Bool("json", false, "output results as JSON")
	corpusExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	corpusRunsCmd.Flags().Bool("json", false, "output as JSON")

	corpusCmd.AddCommand(corpusRetrieveCmd)
	corpusCmd.AddCommand(corpusExportCmd)
	corpusCmd.AddCommand(corpusRunsCmd)

	rootCmd.AddCommand(corpusCmd)
}
