// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-assistant/pkg/types"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List academic sources and whether they are enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, viper.GetViper())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%-18s  %-18s  %s\n", "Source", "Name", "Enabled")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 46))
		for _, s := range types.KnownSources {
			fmt.Fprintf(os.Stdout, "%-18s  %-18s  %t\n", s, s.DisplayName(), cfg.Sources.IsEnabled(s))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
