// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides the language-generation collaborator used by the
// planner, theme naming, and the report writer.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Generator completes a prompt. Every error wraps types.ErrGeneration.
type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Complete calls f.
func (f GeneratorFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// New builds the Generator selected by cfg.Provider.
func New(cfg types.GenerationConfig) (Generator, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "claude", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("claude generation requires an API key (set generation.api_key or .secrets/anthropic-api-key)")
		}
		return &Claude{APIKey: cfg.APIKey, Model: cfg.Model, Client: client}, nil
	case "ollama":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("ollama generation requires generation.base_url")
		}
		return &Ollama{BaseURL: strings.TrimRight(cfg.BaseURL, "/"), Model: cfg.Model, Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q (valid: claude, ollama)", cfg.Provider)
	}
}

// generationError wraps a failure in types.ErrGeneration.
func generationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrGeneration, fmt.Sprintf(format, args...))
}

// DecodeJSON parses the first JSON object in text into v. Models often wrap
// JSON in Markdown code fences or surround it with prose; both are tolerated.
func DecodeJSON(text string, v any) error {
	obj := ExtractJSON(text)
	if obj == "" {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("parsing JSON response: %w", err)
	}
	return nil
}

// ExtractJSON returns the outermost {...} span of text after stripping code
// fences, or "" when there is none.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
