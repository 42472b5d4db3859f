// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Recognized key files.
const (
	AnthropicAPIKey       = "anthropic-api-key"
	OpenAIAPIKey          = "openai-api-key"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	OpenAlexEmail         = "openalex-email"
	PubMedAPIKey          = "pubmed-api-key"
	PgvectorDSN           = "pgvector-dsn"
)

// Secrets maps key file names to their values.
type Secrets map[string]string

// Load reads all files in dir and returns their trimmed contents by filename.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (Secrets, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Secrets)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			s[name] = value
		}
	}

	return s, nil
}

// Apply copies secrets into cfg wherever the corresponding field is still
// empty, so explicit configuration always wins over the secrets directory.
func (s Secrets) Apply(cfg *types.Config) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s[key]
		}
	}

	switch cfg.Generation.Provider {
	case "claude", "":
		fill(&cfg.Generation.APIKey, AnthropicAPIKey)
	}
	if cfg.Embedding.Provider == "openai" {
		fill(&cfg.Embedding.APIKey, OpenAIAPIKey)
	}
	fill(&cfg.Sources.SemanticScholarAPIKey, SemanticScholarAPIKey)
	fill(&cfg.Sources.OpenAlexEmail, OpenAlexEmail)
	fill(&cfg.Sources.PubMedAPIKey, PubMedAPIKey)
	fill(&cfg.Rank.PgvectorDSN, PgvectorDSN)
}
