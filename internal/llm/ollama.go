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

// Ollama calls a local Ollama server's chat endpoint.
type Ollama struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Complete sends prompt to /api/chat without streaming.
func (o *Ollama) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := chatRequest{
		Model:    o.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Options:  map[string]any{"temperature": 0.2},
	}
	if maxTokens > 0 {
		body.Options["num_predict"] = maxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", generationError("marshaling chat request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", generationError("creating chat request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, o.Client, req, 0)
	if err != nil {
		return "", generationError("calling Ollama: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", generationError("Ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", generationError("decoding chat response: %v", err)
	}
	if strings.TrimSpace(cr.Message.Content) == "" {
		return "", generationError("Ollama returned an empty message")
	}
	return cr.Message.Content, nil
}
