// Package retriever embeds a knowledge base once, caches the vectors on
// disk keyed by embedding model, and serves cosine-similarity top-K search
// with ranking-quality metrics.
package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/evalwatch/internal/dataset"
)

// normEpsilon guards L2 normalization against zero vectors.
const normEpsilon = 1e-10

// Retrieved is one ranked search hit. Rank is 1-based.
type Retrieved struct {
	Document dataset.Document
	Score    float64
	Rank     int
}

// Retriever performs vector search over a fixed corpus. The embedding index
// is built once by Build before any concurrent queries run and is read-only
// afterwards.
type Retriever struct {
	embedder Embedder
	cacheDir string
	docs     []dataset.Document
	vectors  [][]float32 // L2-normalized, parallel to docs
}

// New creates a retriever over the given corpus. Call Build before Retrieve.
func New(embedder Embedder, docs []dataset.Document, cacheDir string) *Retriever {
	return &Retriever{embedder: embedder, cacheDir: cacheDir, docs: docs}
}

// Build loads cached corpus embeddings or computes and caches them. A cache
// whose length does not match the live corpus is discarded and recomputed.
func (r *Retriever) Build(ctx context.Context) error {
	if len(r.docs) == 0 {
		return fmt.Errorf("retriever corpus is empty")
	}
	if cached, ok := r.loadCache(); ok {
		r.vectors = normalizeAll(cached)
		return nil
	}

	texts := make([]string, len(r.docs))
	for i, doc := range r.docs {
		texts[i] = doc.Content
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}
	if len(vectors) != len(r.docs) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d documents", len(vectors), len(r.docs))
	}
	if err := r.saveCache(vectors); err != nil {
		return err
	}
	r.vectors = normalizeAll(vectors)
	return nil
}

// Retrieve returns the topK highest-similarity documents for the query,
// ranked descending with ties broken by corpus order.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Retrieved, error) {
	if len(r.vectors) == 0 {
		return nil, fmt.Errorf("retriever index not built")
	}
	if topK <= 0 {
		topK = 5
	}
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	normalize(queryVec)

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(r.vectors))
	for i, vec := range r.vectors {
		scores[i] = scored{idx: i, score: dot(queryVec, vec)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	if topK > len(scores) {
		topK = len(scores)
	}
	results := make([]Retrieved, 0, topK)
	for i := 0; i < topK; i++ {
		results = append(results, Retrieved{
			Document: r.docs[scores[i].idx],
			Score:    scores[i].score,
			Rank:     i + 1,
		})
	}
	return results, nil
}

// EvaluateRetrieval runs a query and scores the ranking against the
// ground-truth relevant chunk IDs.
func (r *Retriever) EvaluateRetrieval(ctx context.Context, query string, relevantIDs []int, topK int) (Metrics, []Retrieved, error) {
	results, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return Metrics{}, nil, err
	}
	return ComputeMetrics(results, relevantIDs, topK), results, nil
}

// FormatContext renders retrieved documents as the context block handed to
// the generation model.
func FormatContext(results []Retrieved) string {
	var sb strings.Builder
	for i, res := range results {
		doc := res.Document
		fmt.Fprintf(&sb, "[Document %d]\nTopic: %s (%s)\n%s\n", i+1, doc.Topic, doc.Domain, doc.Content)
		if i < len(results)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (r *Retriever) cachePath() string {
	safeModel := strings.ReplaceAll(r.embedder.Model(), "/", "_")
	return filepath.Join(r.cacheDir, fmt.Sprintf("embeddings_%s.json", safeModel))
}

func (r *Retriever) loadCache() ([][]float32, bool) {
	if r.cacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(r.cachePath())
	if err != nil {
		return nil, false
	}
	var vectors [][]float32
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, false
	}
	if len(vectors) != len(r.docs) {
		// Corpus changed since the cache was written; force recomputation.
		return nil, false
	}
	return vectors, true
}

func (r *Retriever) saveCache(vectors [][]float32) error {
	if r.cacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.Marshal(vectors)
	if err != nil {
		return fmt.Errorf("encode embedding cache: %w", err)
	}
	if err := os.WriteFile(r.cachePath(), data, 0o644); err != nil {
		return fmt.Errorf("write embedding cache: %w", err)
	}
	return nil
}

func normalizeAll(vectors [][]float32) [][]float32 {
	for _, vec := range vectors {
		normalize(vec)
	}
	return vectors
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum) + normEpsilon
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
