// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-assistant/internal/pipeline"
	"github.com/pdiddy/research-assistant/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run the full research pipeline and print a Markdown report",
	Long: `Research plans a search for the query, fetches papers from the enabled
sources, ranks and clusters them, and writes a report with numbered
citations. Progress goes to stderr and the report to stdout.

Interrupting the command stops the run after the stage in flight.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().Int("max-papers", 0, "override the planned paper budget (0 = use the plan)")
	researchCmd.Flags().Bool("json", false, "print the report as JSON instead of Markdown")
	researchCmd.Flags().Bool("events", false, "print progress events as JSON lines on stdout")
	researchCmd.Flags().String("out", "", "directory to save the report as YAML and Markdown")

	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, viper.GetViper())
	if err != nil {
		return err
	}
	st, err := newStages(cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []pipeline.Option
	if dir, _ := cmd.Flags().GetString("out"); dir != "" {
		opts = append(opts, pipeline.WithSink(pipeline.DirSink{Dir: dir}))
	}
	p, err := st.pipeline(ctx, opts...)
	if err != nil {
		return err
	}

	maxPapers, _ := cmd.Flags().GetInt("max-papers")
	asJSON, _ := cmd.Flags().GetBool("json")
	eventsOnly, _ := cmd.Flags().GetBool("events")

	req := pipeline.Request{Query: strings.Join(args, " "), MaxPapers: maxPapers}
	last, err := consume(p.Run(ctx, req), os.Stdout, os.Stderr, eventsOnly)
	if err != nil {
		return err
	}

	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("research interrupted: %w", context.Cause(ctx))
	case last.Status == types.StatusError:
		return fmt.Errorf("%s", last.Message)
	case last.Report == nil:
		return fmt.Errorf("run ended without a report")
	case eventsOnly:
		return nil
	case asJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(last.Report)
	}
	_, err = io.WriteString(os.Stdout, last.Report.MarkdownBody)
	return err
}

// consume drains events, printing progress lines to progress or JSON lines
// to out when asJSON is set, and returns the last event seen.
func consume(events <-chan types.ProgressEvent, out, progress io.Writer, asJSON bool) (types.ProgressEvent, error) {
	var last types.ProgressEvent
	enc := json.NewEncoder(out)
	for ev := range events {
		last = ev
		if asJSON {
			if err := enc.Encode(ev); err != nil {
				return last, err
			}
			continue
		}
		fmt.Fprintln(progress, progressLine(ev))
	}
	return last, nil
}

func progressLine(ev types.ProgressEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%-9s] %s", ev.Status, ev.Message)
	if ev.Warning != "" {
		fmt.Fprintf(&b, " (warning: %s)", ev.Warning)
	}
	return b.String()
}
