package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EmbeddingConfig holds API settings for text embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Embed returns the embedding vector for the given text.
// Newlines are collapsed to spaces first; embedding models are sensitive to
// raw line breaks.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	input := normalizeEmbeddingInput(text)
	if input == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	raw, err := c.postEmbeddings(ctx, cfg, input)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return parsed.Data[0].Embedding, nil
}

// EmbedBatch returns one embedding per input text, in input order.
// Any empty input is an error: dropping it would desync the caller's
// text-to-vector pairing.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = normalizeEmbeddingInput(t)
		if inputs[i] == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	raw, err := c.postEmbeddings(ctx, cfg, inputs)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding batch json failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}

	result := make([][]float32, len(texts))
	for i, item := range parsed.Data {
		idx := item.Index
		if idx < 0 || idx >= len(result) {
			idx = i
		}
		result[idx] = item.Embedding
	}
	return result, nil
}

func (c *OpenAICompatibleClient) postEmbeddings(ctx context.Context, cfg EmbeddingConfig, input interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(map[string]interface{}{
		"model": cfg.Model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func normalizeEmbeddingInput(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
