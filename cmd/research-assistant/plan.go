// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

var planCmd = &cobra.Command{
	Use:   "plan [query]",
	Short: "Show the search plan for a query",
	Long: `Plan asks the language model for keywords, sources and a paper budget
for the query and prints the resulting plan as YAML. Without a usable
model the deterministic fallback plan is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().Bool("json", false, "output the plan as JSON")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, viper.GetViper())
	if err != nil {
		return err
	}
	st, err := newStages(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	plan, err := st.planner().Plan(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}
