// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fetchpkg "github.com/pdiddy/research-assistant/internal/fetch"
	"github.com/pdiddy/research-assistant/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [query]",
	Short: "Plan a query and fetch deduplicated papers without ranking",
	Long: `Fetch runs the planning and fetching stages for the query and prints the
deduplicated papers. With --sources the model is not consulted: the whole
query is sent as one keyword to the listed databases.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Int("max-papers", 0, "override the planned paper budget (0 = use the plan)")
	fetchCmd.Flags().StringSlice("sources", nil, "sources to query, skipping planning (e.g. arxiv,pubmed)")
	fetchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, viper.GetViper())
	if err != nil {
		return err
	}
	st, err := newStages(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	query := strings.Join(args, " ")
	pl := st.planner()
	var plan types.SearchPlan
	if ids, _ := cmd.Flags().GetStringSlice("sources"); len(ids) > 0 {
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("%w: query is empty", types.ErrInvalidInput)
		}
		plan = pl.Fallback(query)
		plan.Sources = nil
		for _, id := range ids {
			src := types.SourceID(strings.TrimSpace(id))
			if !src.IsKnown() {
				return fmt.Errorf("unknown source %q (valid: %s)", id, knownSourceList())
			}
			plan.Sources = append(plan.Sources, src)
		}
	} else if plan, err = pl.Plan(cmd.Context(), query); err != nil {
		return err
	}
	maxPapers, _ := cmd.Flags().GetInt("max-papers")
	plan = plan.WithMaxPapers(maxPapers)

	res, err := st.fetcher().Fetch(cmd.Context(), plan)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return fetchpkg.FormatJSON(res, os.Stdout)
	}
	fetchpkg.FormatTable(res, os.Stdout)
	return nil
}

func knownSourceList() string {
	names := make([]string, len(types.KnownSources))
	for i, s := range types.KnownSources {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
