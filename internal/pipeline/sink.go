// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// DirSink writes each report to Dir as <id>.yaml, holding the full report,
// and <id>.md, holding the Markdown body alone.
type DirSink struct {
	Dir string
}

// Save implements ReportSink.
func (s DirSink) Save(_ context.Context, report types.Report) error {
	if report.ID == "" {
		return fmt.Errorf("report has no id")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, report.ID+".yaml"), data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, report.ID+".md"), []byte(report.MarkdownBody), 0o644)
}

// LoadReport reads a report written by DirSink.
func LoadReport(path string) (types.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Report{}, err
	}
	var report types.Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return types.Report{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return report, nil
}
