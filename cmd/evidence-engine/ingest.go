package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Validate a batch of line-delimited study records",
	Long: `Ingest reads a JSONL batch of study cards, reports lines that cannot be
parsed or carry no id, and warns about unrecognized study designs (they
receive the default design weight). With --output the accepted records are
written back out as normalized JSONL.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cards, summary, err := readInput(cmd, os.Stderr)
	if err != nil {
		return err
	}

	for _, c := range cards {
		if !c.Design.Known() {
			fmt.Fprintf(os.Stderr, "warning: %s: unknown design %q\n", c.ID, c.Design)
		}
	}

	fmt.Fprintf(os.Stdout, "read: %d, skipped: %d, blank: %d (total: %d)\n",
		summary.Read, summary.Skipped, summary.Blank, summary.Total())

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		if err := ingest.WriteFile(out, cards); err != nil {
			return err
		}
	}

	if strict, _ := cmd.Flags().GetBool("strict"); strict && summary.HasSkips() {
		return fmt.Errorf("%d line(s) skipped", summary.Skipped)
	}
	return nil
}

func init() {
	ingestCmd.Flags().String("input", "", "JSONL file of study cards (- for stdin)")
	ingestCmd.Flags().String("output", "", "write accepted records as JSONL to this path")
	ingestCmd.Flags().Bool("strict", false, "exit non-zero when any line is skipped")

	rootCmd.AddCommand(ingestCmd)
}
