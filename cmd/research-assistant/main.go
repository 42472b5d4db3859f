// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-assistant CLI.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is built in PersistentPreRunE and never nil once a command runs.
var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "research-assistant",
	Short: "Turn a research question into a cited literature report",
	Long: `research-assistant plans a search for a free-text research question,
queries academic databases (arXiv, Semantic Scholar, OpenAlex, PubMed),
ranks the papers against the question, groups them into themes and writes
a Markdown report with numbered citations.

Run the whole pipeline with "research". The plan and fetch subcommands run
the first stages on their own, which helps when tuning sources or keywords.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		lc := zap.NewProductionConfig()
		lc.Encoding = "console"
		lc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		lc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			lc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := lc.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: "+strings.Join(configSearchPaths(), " or ")+")")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of API key files")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging on stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
