package llmclient

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbed_NormalizesVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "all-MiniLM-L6-v2" {
			t.Fatalf("model not forwarded: %q", req.Model)
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embeddings: [][]float32{{3, 4, 0}}})
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "all-MiniLM-L6-v2", 3)
	vecs, err := c.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-6 {
		t.Fatalf("vector not unit-normalized: %v", vecs[0])
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Embeddings: [][]float32{{1, 2}}})
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "all-MiniLM-L6-v2", 384)
	if _, err := c.Embed(context.Background(), []string{"hello"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Embeddings: [][]float32{}})
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "m", 0)
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}
