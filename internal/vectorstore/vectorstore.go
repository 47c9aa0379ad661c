// Package vectorstore provides a bounded in-memory vector store with
// brute-force cosine similarity search and metadata filtering.
//
// Capacity is enforced by evicting the document with the oldest addedAt
// timestamp, one document per insert. Equal similarity scores resolve by
// ascending insertion sequence, so search results are deterministic.
package vectorstore

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BabyNest/assistant/internal/embedding"
	"github.com/BabyNest/assistant/internal/models"
)

// Defaults for store construction.
const (
	DefaultMaxElements = 10000
	DefaultDimension   = 384
	DefaultTopK        = 5
)

// Document is the metadata stored alongside an embedding vector.
type Document struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
	AddedAt  time.Time      `json:"added_at"`
}

// SearchResult pairs a matched document with its similarity to the query.
type SearchResult struct {
	ID         string   `json:"id"`
	Document   Document `json:"document"`
	Similarity float64  `json:"similarity"`
	Distance   float64  `json:"distance"`
}

// Stats describes the current state of the store.
type Stats struct {
	Initialized   bool `json:"initialized"`
	DocumentCount int  `json:"document_count"`
	MaxElements   int  `json:"max_elements"`
	Dimension     int  `json:"dimension"`
}

// ExportedDocument is one entry of an export snapshot.
type ExportedDocument struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
	AddedAt  time.Time      `json:"added_at"`
	Vector   []float64      `json:"vector"`
}

// Export is a serializable snapshot of the full store, ordered by insertion.
type Export struct {
	Documents  []ExportedDocument `json:"documents"`
	ExportedAt time.Time          `json:"exported_at"`
	Version    string             `json:"version"`
	Dimension  int                `json:"dimension"`
}

type entry struct {
	doc Document
	vec []float64
	seq uint64
}

// Store holds (id, metadata, vector) triples with a capacity bound.
type Store struct {
	mu          sync.RWMutex
	dimension   int
	maxElements int
	entries     map[string]*entry
	nextSeq     uint64
	initialized bool
}

// Option customizes Store construction.
type Option func(*Store)

// WithDimension overrides the expected vector dimension.
func WithDimension(d int) Option {
	return func(s *Store) {
		if d > 0 {
			s.dimension = d
		}
	}
}

// WithMaxElements overrides the capacity bound.
func WithMaxElements(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxElements = n
		}
	}
}

// New creates a vector store. Initialize must be called before use.
func New(opts ...Option) *Store {
	s := &Store{
		dimension:   DefaultDimension,
		maxElements: DefaultMaxElements,
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize prepares the store for use.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	slog.Info("Vector store initialized", "dimension", s.dimension, "maxElements", s.maxElements)
	return nil
}

// Ready reports whether Initialize has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Dimension returns the configured vector dimension.
func (s *Store) Dimension() int { return s.dimension }

// AddDocument stores a document with its embedding. A vector of the wrong
// dimension is rejected. When the store is at capacity, the single document
// with the oldest addedAt timestamp is evicted before inserting.
func (s *Store) AddDocument(id string, metadata map[string]any, vector []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fmt.Errorf("vector store: %w", models.ErrNotInitialized)
	}
	if len(vector) != s.dimension {
		return fmt.Errorf("vector store: %w: expected %d, got %d", models.ErrDimensionMismatch, s.dimension, len(vector))
	}

	if _, exists := s.entries[id]; !exists && len(s.entries) >= s.maxElements {
		evicted := s.evictOldestLocked()
		slog.Warn("Vector store at capacity, evicted oldest document", "evicted", evicted, "maxElements", s.maxElements)
	}

	vec := make([]float64, len(vector))
	copy(vec, vector)
	s.entries[id] = &entry{
		doc: Document{
			ID:       id,
			Metadata: metadata,
			AddedAt:  time.Now(),
		},
		vec: vec,
		seq: s.nextSeq,
	}
	s.nextSeq++
	slog.Debug("Vector store added document", "id", id, "count", len(s.entries))
	return nil
}

// AddDocuments adds a batch, returning the first error but continuing past
// individual failures is the caller's job; each document is independent.
func (s *Store) AddDocuments(docs []ExportedDocument) error {
	for _, d := range docs {
		if err := s.addWithTimestamp(d.ID, d.Metadata, d.Vector, d.AddedAt); err != nil {
			return err
		}
	}
	return nil
}

// addWithTimestamp inserts a document preserving a prior addedAt, used by
// batch add and import so eviction order survives a round trip.
func (s *Store) addWithTimestamp(id string, metadata map[string]any, vector []float64, addedAt time.Time) error {
	if err := s.AddDocument(id, metadata, vector); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok && !addedAt.IsZero() {
		e.doc.AddedAt = addedAt
	}
	return nil
}

// Search returns the topK stored documents by descending cosine similarity to
// the query vector, optionally restricted to documents whose metadata fields
// equal every entry in filter.
func (s *Store) Search(query []float64, topK int, filter map[string]any) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, fmt.Errorf("vector store: %w", models.ErrNotInitialized)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("vector store: %w: expected %d, got %d", models.ErrDimensionMismatch, s.dimension, len(query))
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	type scored struct {
		res SearchResult
		seq uint64
	}
	var results []scored
	for _, e := range s.entries {
		if filter != nil && !matchesFilter(e.doc.Metadata, filter) {
			continue
		}
		sim, err := embedding.CosineSimilarity(query, e.vec)
		if err != nil {
			return nil, err
		}
		results = append(results, scored{
			res: SearchResult{
				ID:         e.doc.ID,
				Document:   e.doc,
				Similarity: sim,
				Distance:   1 - sim,
			},
			seq: e.seq,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].res.Similarity != results[j].res.Similarity {
			return results[i].res.Similarity > results[j].res.Similarity
		}
		return results[i].seq < results[j].seq
	})

	if topK > len(results) {
		topK = len(results)
	}
	out := make([]SearchResult, 0, topK)
	for _, r := range results[:topK] {
		out = append(out, r.res)
	}
	return out, nil
}

// RemoveDocument deletes a document. Returns false if the id is not present;
// missing ids are not an error.
func (s *Store) RemoveDocument(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	slog.Debug("Vector store removed document", "id", id)
	return true
}

// UpdateDocument replaces a document's metadata and vector, implemented as
// remove plus re-add. Returns false if the id is not present.
func (s *Store) UpdateDocument(id string, metadata map[string]any, vector []float64) (bool, error) {
	if !s.RemoveDocument(id) {
		return false, nil
	}
	if err := s.AddDocument(id, metadata, vector); err != nil {
		return false, err
	}
	return true, nil
}

// Document returns a stored document by id, or false if absent.
func (s *Store) Document(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Document{}, false
	}
	return e.doc, true
}

// AllDocuments returns every stored document in insertion order.
func (s *Store) AllDocuments() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.entries))
	for _, e := range s.sortedEntriesLocked() {
		out = append(out, e.doc)
	}
	return out
}

// Size returns the number of stored documents.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes every document.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	slog.Debug("Vector store cleared")
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Initialized:   s.initialized,
		DocumentCount: len(s.entries),
		MaxElements:   s.maxElements,
		Dimension:     s.dimension,
	}
}

// ExportData snapshots the full store for backup, ordered by insertion.
func (s *Store) ExportData() *Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]ExportedDocument, 0, len(s.entries))
	for _, e := range s.sortedEntriesLocked() {
		vec := make([]float64, len(e.vec))
		copy(vec, e.vec)
		docs = append(docs, ExportedDocument{
			ID:       e.doc.ID,
			Metadata: e.doc.Metadata,
			AddedAt:  e.doc.AddedAt,
			Vector:   vec,
		})
	}
	return &Export{
		Documents:  docs,
		ExportedAt: time.Now(),
		Version:    "1.0",
		Dimension:  s.dimension,
	}
}

// ImportData clears the store and restores a previously exported snapshot.
func (s *Store) ImportData(data *Export) error {
	if data == nil || data.Documents == nil {
		return fmt.Errorf("vector store: %w", models.ErrInvalidImport)
	}
	if data.Dimension != 0 && data.Dimension != s.dimension {
		return fmt.Errorf("vector store: %w: export dimension %d, store dimension %d", models.ErrDimensionMismatch, data.Dimension, s.dimension)
	}
	s.Clear()
	if err := s.AddDocuments(data.Documents); err != nil {
		return err
	}
	slog.Info("Vector store imported snapshot", "documents", len(data.Documents))
	return nil
}

// Destroy drops all data and deinitializes the store.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.initialized = false
	slog.Info("Vector store destroyed")
}

// evictOldestLocked removes the entry with the smallest addedAt (ties broken
// by insertion sequence) and returns its id. Caller holds the lock.
func (s *Store) evictOldestLocked() string {
	var oldest *entry
	for _, e := range s.entries {
		if oldest == nil ||
			e.doc.AddedAt.Before(oldest.doc.AddedAt) ||
			(e.doc.AddedAt.Equal(oldest.doc.AddedAt) && e.seq < oldest.seq) {
			oldest = e
		}
	}
	if oldest == nil {
		return ""
	}
	delete(s.entries, oldest.doc.ID)
	return oldest.doc.ID
}

// sortedEntriesLocked returns entries ordered by insertion sequence. Caller
// holds at least a read lock.
func (s *Store) sortedEntriesLocked() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func matchesFilter(metadata, filter map[string]any) bool {
	for k, v := range filter {
		if metadata == nil || metadata[k] != v {
			return false
		}
	}
	return true
}
