// Package semcache is the persistent semantic response cache: answered
// questions are stored with a sentence embedding and reused for later
// questions that land above a cosine-similarity threshold.
package semcache

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kdt-ai/neo-backend/internal/model"
)

const (
	maxEntries     = 500
	maxAnswerChars = 10000
	maxToolCalls   = 20
	maxInsights    = 10
	lookupWindow   = 100
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Entry is one cached question-answer record.
type Entry struct {
	ID               string           `json:"id"`
	Question         string           `json:"question"`
	Answer           string           `json:"answer"`
	ToolCalls        []model.ToolCall `json:"tool_calls"`
	Insights         []string         `json:"insights"`
	Entities         []model.Entity   `json:"entities"`
	CachedAt         time.Time        `json:"cached_at"`
	Similarity       float64          `json:"similarity"`
	OriginalQuestion string           `json:"original_question"`
}

// Stats describes cache occupancy for the stats endpoints.
type Stats struct {
	Entries             int     `json:"entries"`
	MaxEntries          int     `json:"max_entries"`
	TTLSeconds          int     `json:"ttl_seconds"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	Path                string  `json:"db_path"`
}

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	id         TEXT PRIMARY KEY,
	question   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	answer     TEXT NOT NULL,
	tool_calls TEXT,
	insights   TEXT,
	entities   TEXT,
	cached_at  REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cached_at ON cache(cached_at);
`

// Store is the on-disk semantic cache. Cache failures never fail the main
// request: lookups degrade to misses and writes to no-ops.
type Store struct {
	db        *sqlx.DB
	embedder  Embedder
	ttl       time.Duration
	threshold float64
	path      string
}

// New opens (or creates) the cache database at path.
func New(path string, embedder Embedder, ttl time.Duration, threshold float64) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("semcache.New: %w", err)
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("semcache.New: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("semcache.New: schema: %w", err)
	}

	return &Store{
		db:        db,
		embedder:  embedder,
		ttl:       ttl,
		threshold: threshold,
		path:      path,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// questionID is the stable key for a question: md5 of its normalized text.
func questionID(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	return fmt.Sprintf("%x", md5.Sum([]byte(normalized)))
}

type cacheRow struct {
	ID        string  `db:"id"`
	Question  string  `db:"question"`
	Embedding []byte  `db:"embedding"`
	Answer    string  `db:"answer"`
	ToolCalls string  `db:"tool_calls"`
	Insights  string  `db:"insights"`
	Entities  string  `db:"entities"`
	CachedAt  float64 `db:"cached_at"`
}

// Lookup finds the most similar cached answer above the threshold. Any
// failure is logged and reported as a miss.
func (s *Store) Lookup(ctx context.Context, question string) (*Entry, bool) {
	vecs, err := s.embedder.Embed(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		slog.Warn("[SEM-CACHE] embedding failed, treating as miss", "error", err)
		return nil, false
	}
	queryVec := vecs[0]

	cutoff := float64(time.Now().Add(-s.ttl).UnixNano()) / 1e9
	var rows []cacheRow
	err = s.db.SelectContext(ctx, &rows,
		"SELECT id, question, embedding, answer, tool_calls, insights, entities, cached_at FROM cache WHERE cached_at > ? ORDER BY cached_at DESC LIMIT ?",
		cutoff, lookupWindow,
	)
	if err != nil {
		slog.Warn("[SEM-CACHE] lookup failed, treating as miss", "error", err)
		return nil, false
	}
	if len(rows) == 0 {
		return nil, false
	}

	bestSim := 0.0
	var best *cacheRow
	for i := range rows {
		cached := unpackVector(rows[i].Embedding)
		sim := cosineSimilarity(queryVec, cached)
		if sim > bestSim {
			bestSim = sim
			best = &rows[i]
		}
	}
	if best == nil || bestSim < s.threshold {
		return nil, false
	}

	entry := &Entry{
		ID:               best.ID,
		Question:         best.Question,
		Answer:           best.Answer,
		CachedAt:         time.Unix(0, int64(best.CachedAt*1e9)),
		Similarity:       math.Round(bestSim*1000) / 1000,
		OriginalQuestion: best.Question,
	}
	// Stored list fields are best-effort JSON; a corrupt field empties
	// just that field.
	json.Unmarshal([]byte(best.ToolCalls), &entry.ToolCalls)
	json.Unmarshal([]byte(best.Insights), &entry.Insights)
	json.Unmarshal([]byte(best.Entities), &entry.Entities)

	slog.Info("[SEM-CACHE] hit",
		"similarity", entry.Similarity,
		"original_question", truncateForLog(best.Question),
	)
	return entry, true
}

// Search ranks recent non-expired entries by similarity to the query and
// returns the top n regardless of threshold. Used by the legacy rag-search
// surface; failures degrade to an empty result.
func (s *Store) Search(ctx context.Context, query string, n int) []Entry {
	if n <= 0 {
		n = 10
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		slog.Warn("[SEM-CACHE] search embedding failed", "error", err)
		return nil
	}
	queryVec := vecs[0]

	cutoff := float64(time.Now().Add(-s.ttl).UnixNano()) / 1e9
	var rows []cacheRow
	err = s.db.SelectContext(ctx, &rows,
		"SELECT id, question, embedding, answer, tool_calls, insights, entities, cached_at FROM cache WHERE cached_at > ? ORDER BY cached_at DESC LIMIT ?",
		cutoff, lookupWindow,
	)
	if err != nil {
		slog.Warn("[SEM-CACHE] search failed", "error", err)
		return nil
	}

	entries := make([]Entry, 0, len(rows))
	for i := range rows {
		sim := cosineSimilarity(queryVec, unpackVector(rows[i].Embedding))
		entry := Entry{
			ID:               rows[i].ID,
			Question:         rows[i].Question,
			Answer:           rows[i].Answer,
			CachedAt:         time.Unix(0, int64(rows[i].CachedAt*1e9)),
			Similarity:       math.Round(sim*1000) / 1000,
			OriginalQuestion: rows[i].Question,
		}
		json.Unmarshal([]byte(rows[i].Entities), &entry.Entities)
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Similarity > entries[j].Similarity })
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Save upserts a question-answer pair. Failures are logged, never returned.
func (s *Store) Save(ctx context.Context, question, answer string, toolCalls []model.ToolCall, insights []string, entities []model.Entity) {
	vecs, err := s.embedder.Embed(ctx, []string{question})
	if err != nil || len(vecs) == 0 {
		slog.Warn("[SEM-CACHE] embedding failed, skipping write", "error", err)
		return
	}

	count := 0
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM cache"); err == nil && count >= maxEntries {
		s.evictOldestHalf(ctx)
	}

	if len(toolCalls) > maxToolCalls {
		toolCalls = toolCalls[:maxToolCalls]
	}
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}

	toolCallsJSON, _ := json.Marshal(toolCalls)
	insightsJSON, _ := json.Marshal(insights)
	entitiesJSON, _ := json.Marshal(entities)

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (id, question, embedding, answer, tool_calls, insights, entities, cached_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		questionID(question),
		question,
		packVector(vecs[0]),
		truncateRunes(answer, maxAnswerChars),
		string(toolCallsJSON),
		string(insightsJSON),
		string(entitiesJSON),
		float64(time.Now().UnixNano())/1e9,
	)
	if err != nil {
		slog.Warn("[SEM-CACHE] write failed", "error", err)
		return
	}
	slog.Info("[SEM-CACHE] stored", "question", truncateForLog(question))
}

// evictOldestHalf deletes the oldest half of the cache by cached_at.
func (s *Store) evictOldestHalf(ctx context.Context) {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cache WHERE id IN (SELECT id FROM cache ORDER BY cached_at ASC LIMIT ?)",
		maxEntries/2,
	)
	if err != nil {
		slog.Warn("[SEM-CACHE] eviction failed", "error", err)
		return
	}
	slog.Info("[SEM-CACHE] evicted oldest half")
}

// Clear deletes every cached entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache")
	if err != nil {
		return fmt.Errorf("semcache.Clear: %w", err)
	}
	return nil
}

// Stats reports cache occupancy and configuration.
func (s *Store) Stats(ctx context.Context) Stats {
	count := 0
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM cache"); err != nil {
		slog.Warn("[SEM-CACHE] stats failed", "error", err)
	}
	return Stats{
		Entries:             count,
		MaxEntries:          maxEntries,
		TTLSeconds:          int(s.ttl.Seconds()),
		SimilarityThreshold: s.threshold,
		Path:                s.path,
	}
}

// packVector encodes a vector as packed little-endian float32.
func packVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func unpackVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func truncateForLog(s string) string {
	return truncateRunes(s, 80)
}
