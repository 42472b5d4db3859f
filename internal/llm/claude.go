// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/research-assistant/internal/httputil"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const defaultMaxTokens = 1024

// Claude calls the Anthropic Messages API.
type Claude struct {
	APIKey string
	Model  string
	Client *http.Client
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends prompt as a single user message and returns the
// concatenated text blocks of the reply.
func (c *Claude) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", generationError("marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", generationError("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, 0)
	if err != nil {
		return "", generationError("calling Claude API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", generationError("Claude API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", generationError("decoding Claude response: %v", err)
	}

	var b strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", generationError("no text content in Claude API response")
	}
	return b.String(), nil
}
