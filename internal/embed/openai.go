// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/research-assistant/internal/httputil"
)

// openAIBaseURL is used when OpenAI.BaseURL is empty.
var openAIBaseURL = "https://api.openai.com"

// OpenAI embeds text with the OpenAI embeddings API.
type OpenAI struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed sends texts in one request and orders the reply by index.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(openAIRequest{Model: o.Model, Input: texts})
	if err != nil {
		return nil, providerError("marshaling request: %v", err)
	}

	base := o.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, providerError("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := httputil.DoWithRetry(ctx, o.Client, req, 0)
	if err != nil {
		return nil, providerError("calling OpenAI: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, providerError("OpenAI returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var body openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, providerError("decoding response: %v", err)
	}
	if err := checkCount(len(body.Data), len(texts)); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range body.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, providerError("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
