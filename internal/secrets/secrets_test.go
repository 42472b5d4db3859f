// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Secrets
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, AnthropicAPIKey, "  ak_abc123  \n")
				writeFile(t, dir, SemanticScholarAPIKey, "sk_xyz789")
				writeFile(t, dir, OpenAlexEmail, "user@example.com\n")
				return dir
			},
			want: Secrets{
				AnthropicAPIKey:       "ak_abc123",
				SemanticScholarAPIKey: "sk_xyz789",
				OpenAlexEmail:         "user@example.com",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Secrets{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, OpenAIAPIKey, "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: Secrets{OpenAIAPIKey: "valid-key"},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, PubMedAPIKey, "pm_real")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: Secrets{PubMedAPIKey: "pm_real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	dir := t.TempDir()
	writeFile(t, dir, "good-key", "value123")

	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "value123", got["good-key"])
	_, hasBad := got["bad-key"]
	assert.False(t, hasBad, "unreadable file should not appear in result")
}

func TestApply(t *testing.T) {
	s := Secrets{
		AnthropicAPIKey:       "ak",
		OpenAIAPIKey:          "ok",
		SemanticScholarAPIKey: "s2",
		OpenAlexEmail:         "me@example.com",
		PgvectorDSN:           "postgres://localhost/research",
	}

	cfg := types.DefaultConfig()
	cfg.Sources.SemanticScholarAPIKey = "from-config"
	s.Apply(&cfg)

	assert.Equal(t, "ak", cfg.Generation.APIKey)
	assert.Empty(t, cfg.Embedding.APIKey, "ollama embeddings need no key")
	assert.Equal(t, "from-config", cfg.Sources.SemanticScholarAPIKey, "explicit config wins")
	assert.Equal(t, "me@example.com", cfg.Sources.OpenAlexEmail)
	assert.Equal(t, "postgres://localhost/research", cfg.Rank.PgvectorDSN)

	cfg = types.DefaultConfig()
	cfg.Embedding.Provider = "openai"
	s.Apply(&cfg)
	assert.Equal(t, "ok", cfg.Embedding.APIKey)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
