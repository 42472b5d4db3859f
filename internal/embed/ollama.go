// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pdiddy/research-assistant/internal/httputil"
)

// Ollama embeds text with a local Ollama server's /api/embed endpoint, which
// accepts a batch of inputs per call.
type Ollama struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends texts in one request.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(ollamaEmbedRequest{Model: o.Model, Input: texts})
	if err != nil {
		return nil, providerError("marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, providerError("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, o.Client, req, 0)
	if err != nil {
		return nil, providerError("calling ollama: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providerError("ollama returned status %d", resp.StatusCode)
	}

	var body ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, providerError("decoding response: %v", err)
	}
	if err := checkCount(len(body.Embeddings), len(texts)); err != nil {
		return nil, err
	}
	return body.Embeddings, nil
}
