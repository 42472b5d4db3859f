// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// FormatTable writes the fetched papers as a human-readable table to w.
func FormatTable(res Result, w io.Writer) {
	papers := res.Papers.Papers()
	if len(papers) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %-5s  %s\n",
		"#", "Title", "Authors", "Year", "Rank", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, p := range papers {
		year := ""
		if y := p.Year(); y > 0 {
			year = fmt.Sprintf("%d", y)
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4s  %-5.2f  %s\n",
			i+1, truncateText(p.Title, 60), formatAuthors(p.Authors), year, p.SourceRank, p.Source)
	}

	fmt.Fprintf(w, "\n%d papers", len(papers))
	if res.DuplicatesRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", res.DuplicatesRemoved)
	}
	if res.Truncated > 0 {
		fmt.Fprintf(w, " (%d over budget dropped)", res.Truncated)
	}
	fmt.Fprintln(w)
	for _, f := range res.Failed {
		fmt.Fprintf(w, "warning: source %s failed: %v\n", f.Source, f.Err)
	}
}

// FormatJSON writes the fetched papers as indented JSON to w.
func FormatJSON(res Result, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	papers := res.Papers.Papers()
	if papers == nil {
		papers = []types.Paper{}
	}
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncateText(authors[0], 20)
	default:
		return truncateText(authors[0], 14) + " et al."
	}
}

func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
