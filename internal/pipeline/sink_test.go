// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-assistant/pkg/types"
)

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	report := types.Report{
		ID:             "run-1",
		Query:          "graph neural networks",
		PapersAnalyzed: 2,
		Themes:         []types.Theme{{Name: "Molecules", RelevanceScore: 0.8, MemberPaperIDs: []string{"arxiv:1"}}},
		Citations:      []string{`[1] A (2020). "T". arXiv.`},
		MarkdownBody:   "# Report\n",
		Backend:        "cosine",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed:        1500 * time.Millisecond,
	}
	require.NoError(t, DirSink{Dir: dir}.Save(context.Background(), report))

	md, err := os.ReadFile(filepath.Join(dir, "run-1.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Report\n", string(md))

	loaded, err := LoadReport(filepath.Join(dir, "run-1.yaml"))
	require.NoError(t, err)
	assert.Equal(t, report, loaded)
}

func TestDirSinkRequiresID(t *testing.T) {
	assert.Error(t, DirSink{Dir: t.TempDir()}.Save(context.Background(), types.Report{}))
}

func TestLoadReportMissingFile(t *testing.T) {
	_, err := LoadReport(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
