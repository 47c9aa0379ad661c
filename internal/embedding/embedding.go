// Package embedding turns text into fixed-dimension vectors for semantic
// search, with a bounded FIFO cache keyed by normalized text.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/BabyNest/assistant/internal/models"
)

// DefaultDimension is the vector size used when no encoder override applies.
// It matches the sentence-transformer models the mobile app shipped with.
const DefaultDimension = 384

// DefaultCacheSize bounds the number of cached embeddings.
const DefaultCacheSize = 1000

// Encoder computes raw embedding vectors for a batch of texts. Implementations
// are selected at construction time; the mock and real encoders satisfy the
// same contract.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
	Dimension() int
}

// Stats describes the current state of the embedding service.
type Stats struct {
	Initialized  bool   `json:"initialized"`
	Mode         string `json:"mode"`
	Dimension    int    `json:"dimension"`
	CacheSize    int    `json:"cache_size"`
	MaxCacheSize int    `json:"max_cache_size"`
}

// Service provides cached, L2-normalized embeddings over a pluggable Encoder.
//
// The cache is FIFO by insertion: when full, the oldest-inserted entry is
// evicted first. A cache hit does not refresh an entry's position; this is
// deliberately not LRU.
type Service struct {
	mu          sync.Mutex
	enc         Encoder
	cache       map[string][]float64
	order       []string
	maxCache    int
	initialized bool
}

// Option customizes Service construction.
type Option func(*Service)

// WithCacheSize overrides the maximum number of cached embeddings.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCache = n
		}
	}
}

// NewService creates an embedding service over the given encoder.
func NewService(enc Encoder, opts ...Option) *Service {
	s := &Service{
		enc:      enc,
		cache:    make(map[string][]float64),
		maxCache: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize prepares the service for use. Embed fails fast until this has
// been called.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return fmt.Errorf("embedding service: no encoder configured")
	}
	s.initialized = true
	slog.Info("Embedding service initialized", "mode", s.enc.Name(), "dimension", s.enc.Dimension(), "maxCache", s.maxCache)
	return nil
}

// Ready reports whether Initialize has completed.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int {
	return s.enc.Dimension()
}

// Embed returns one unit-length vector per input text, preserving input
// order. Cache lookups use the lowercased, trimmed text as key; hits return
// the stored vector without recomputation.
func (s *Service) Embed(ctx context.Context, texts ...string) ([][]float64, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, fmt.Errorf("embedding service: %w", models.ErrNotInitialized)
	}

	results := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		key := cacheKey(text)
		if vec, ok := s.cache[key]; ok {
			results[i] = copyVector(vec)
		} else {
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
		}
	}
	s.mu.Unlock()

	if len(missTexts) == 0 {
		return results, nil
	}

	encoded, err := s.enc.Encode(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embedding service: encode failed: %w", err)
	}
	if len(encoded) != len(missTexts) {
		return nil, fmt.Errorf("embedding service: encoder returned %d vectors for %d texts", len(encoded), len(missTexts))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, vec := range encoded {
		normalized := normalize(vec)
		s.insert(cacheKey(missTexts[i]), normalized)
		results[missIdx[i]] = copyVector(normalized)
	}
	slog.Debug("Embedding service encoded texts", "misses", len(missTexts), "cacheSize", len(s.cache))
	return results, nil
}

// EmbedOne is a convenience wrapper for a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vecs, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// insert adds a vector to the cache, evicting oldest-inserted entries while
// over capacity. Caller holds the lock.
func (s *Service) insert(key string, vec []float64) {
	if _, exists := s.cache[key]; !exists {
		s.order = append(s.order, key)
	}
	s.cache[key] = vec
	for len(s.cache) > s.maxCache && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
}

// Stats returns service statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Initialized:  s.initialized,
		Mode:         s.enc.Name(),
		Dimension:    s.enc.Dimension(),
		CacheSize:    len(s.cache),
		MaxCacheSize: s.maxCache,
	}
}

// ClearCache drops all cached embeddings.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]float64)
	s.order = nil
	slog.Debug("Embedding cache cleared")
}

// Destroy resets the service; Embed fails until Initialize is called again.
func (s *Service) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]float64)
	s.order = nil
	s.initialized = false
	slog.Info("Embedding service destroyed")
}

// CosineSimilarity computes the cosine similarity of two vectors.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", models.ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0, nil
	}
	return dot / denom, nil
}

func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func copyVector(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return copyVector(v)
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / mag
	}
	return out
}
