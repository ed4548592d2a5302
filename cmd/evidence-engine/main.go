// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the evidence-engine CLI.
// Subcommands cover ingestion, grading, suitability rules, the monthly
// corpus filter and the corpus store.
// Implements: docs/ARCHITECTURE § CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/evidence-engine/internal/config"
	"github.com/pdiddy/evidence-engine/internal/ingest"
	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// logger is configured from --log-level before any subcommand runs.
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

	// runMetrics collects counters for the current invocation and is
	// flushed to --metrics-file on exit.
	runMetrics = metrics.New()
)

// rootCmd is the base command for the evidence-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "evidence-engine",
	Short: "Grade supplement evidence and curate the study corpus",
	Long: `evidence-engine pools study records into evidence grades, personalizes
grades with suitability rules, and curates the study corpus each month.

Records are line-delimited JSON study cards. Each stage is a subcommand:
ingest, grade, rules, filter and corpus.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("metrics_file")
		if err := runMetrics.WriteTextfile(path); err != nil {
			return err
		}
		if path != "" {
			logger.Debug("metrics written", "path", path)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./evidence-engine.yaml or ~/.config/evidence-engine/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("metrics-file", "", "write Prometheus textfile metrics to this path on exit")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("metrics_file", rootCmd.PersistentFlags().Lookup("metrics-file"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("evidence-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "evidence-engine"))
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// --- shared helpers ---

// stringSetting returns the flag value when set on the command line,
// otherwise the config-file or environment value for key, otherwise the
// flag default.
func stringSetting(cmd *cobra.Command, flag, key string) string {
	v, _ := cmd.Flags().GetString(flag)
	if cmd.Flags().Changed(flag) {
		return v
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return v
}

// intSetting is stringSetting for integer flags.
func intSetting(cmd *cobra.Command, flag, key string) int {
	v, _ := cmd.Flags().GetInt(flag)
	if cmd.Flags().Changed(flag) {
		return v
	}
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return v
}

// readInput loads study cards from --input, or stdin when it is "-".
func readInput(cmd *cobra.Command, w io.Writer) ([]types.StudyCard, ingest.Summary, error) {
	path, _ := cmd.Flags().GetString("input")
	if path == "" {
		return nil, ingest.Summary{}, fmt.Errorf("--input is required")
	}

	start := time.Now()
	var (
		cards   []types.StudyCard
		summary ingest.Summary
		err     error
	)
	if path == "-" {
		cards, summary, err = ingest.ReadRecords(os.Stdin, w)
	} else {
		cards, summary, err = ingest.ReadFile(path, w)
	}
	runMetrics.AddIngestSkipped(summary.Skipped)
	runMetrics.ObserveStage("ingest", time.Since(start))
	if err != nil {
		return nil, summary, err
	}
	logger.Debug("records loaded", "path", path, "read", summary.Read, "skipped", summary.Skipped)
	return cards, summary, nil
}

// writeJSON encodes v as indented JSON to stdout.
func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
