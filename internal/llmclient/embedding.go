package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// EmbeddingClient calls the sentence-embedding sidecar's REST API.
// Implements semcache.Embedder.
type EmbeddingClient struct {
	base  string
	model string
	dim   int
	http  *http.Client
}

// NewEmbeddingClient creates a client for the embedding service at base.
// dim is the expected vector dimensionality (384 for MiniLM-class models).
func NewEmbeddingClient(base, model string, dim int) *EmbeddingClient {
	return &EmbeddingClient{
		base:  base,
		model: model,
		dim:   dim,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type embeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one unit-normalized vector per input text.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("llmclient.Embed: no texts provided")
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("llmclient.Embed marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llmclient.Embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llmclient.Embed call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("llmclient.Embed: status %d: %s", resp.StatusCode, raw)
	}

	var payload embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("llmclient.Embed decode: %w", err)
	}
	if len(payload.Embeddings) != len(texts) {
		return nil, fmt.Errorf("llmclient.Embed: got %d vectors for %d texts", len(payload.Embeddings), len(texts))
	}

	for i, vec := range payload.Embeddings {
		if c.dim > 0 && len(vec) != c.dim {
			return nil, fmt.Errorf("llmclient.Embed: vector %d has %d dimensions, want %d", i, len(vec), c.dim)
		}
		payload.Embeddings[i] = l2Normalize(vec)
	}
	return payload.Embeddings, nil
}

// l2Normalize scales a vector to unit length.
func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
