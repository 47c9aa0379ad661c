package vectorstore

import (
	"errors"
	"testing"
	"time"

	"github.com/BabyNest/assistant/internal/models"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(opts...)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s
}

func TestAddDocumentRequiresInitialize(t *testing.T) {
	s := New(WithDimension(2))
	err := s.AddDocument("doc", nil, []float64{1, 0})
	if !errors.Is(err, models.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestAddDocumentRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t, WithDimension(3))
	err := s.AddDocument("doc", nil, []float64{1, 0})
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("rejected document was stored, size %d", s.Size())
	}
}

func TestCapacityEvictsExactlyOldest(t *testing.T) {
	s := newTestStore(t, WithDimension(2), WithMaxElements(3))

	for _, id := range []string{"first", "second", "third"} {
		if err := s.AddDocument(id, nil, []float64{1, 0}); err != nil {
			t.Fatalf("AddDocument(%s) failed: %v", id, err)
		}
	}
	if err := s.AddDocument("fourth", nil, []float64{0, 1}); err != nil {
		t.Fatalf("AddDocument(fourth) failed: %v", err)
	}

	if s.Size() != 3 {
		t.Errorf("size %d, want 3", s.Size())
	}
	if _, ok := s.Document("first"); ok {
		t.Error("oldest document survived eviction")
	}
	for _, id := range []string{"second", "third", "fourth"} {
		if _, ok := s.Document(id); !ok {
			t.Errorf("document %s missing after eviction", id)
		}
	}
}

func TestUpdateExistingDoesNotEvict(t *testing.T) {
	s := newTestStore(t, WithDimension(2), WithMaxElements(2))
	for _, id := range []string{"a", "b"} {
		if err := s.AddDocument(id, nil, []float64{1, 0}); err != nil {
			t.Fatalf("AddDocument failed: %v", err)
		}
	}
	// Re-adding an existing id replaces it in place; the store is not over
	// capacity, so nothing is evicted.
	if err := s.AddDocument("a", map[string]any{"v": 2}, []float64{0, 1}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if s.Size() != 2 {
		t.Errorf("size %d, want 2", s.Size())
	}
	if _, ok := s.Document("b"); !ok {
		t.Error("untouched document evicted by in-place update")
	}
}

func TestSearchOrderAndFilter(t *testing.T) {
	s := newTestStore(t, WithDimension(2))

	docs := []struct {
		id   string
		kind string
		vec  []float64
	}{
		{"exact", "intent", []float64{1, 0}},
		{"close", "intent", []float64{0.9, 0.1}},
		{"far", "intent", []float64{0, 1}},
		{"other", "note", []float64{1, 0}},
	}
	for _, d := range docs {
		if err := s.AddDocument(d.id, map[string]any{"kind": d.kind}, d.vec); err != nil {
			t.Fatalf("AddDocument(%s) failed: %v", d.id, err)
		}
	}

	results, err := s.Search([]float64{1, 0}, 2, map[string]any{"kind": "intent"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "exact" || results[1].ID != "close" {
		t.Errorf("wrong order: %s, %s", results[0].ID, results[1].ID)
	}
	for _, r := range results {
		if r.Document.Metadata["kind"] != "intent" {
			t.Errorf("filter leaked document %s", r.ID)
		}
	}
}

func TestSearchTieBreaksByInsertion(t *testing.T) {
	s := newTestStore(t, WithDimension(2))
	if err := s.AddDocument("earlier", nil, []float64{1, 0}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if err := s.AddDocument("later", nil, []float64{1, 0}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	results, err := s.Search([]float64{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].ID != "earlier" {
		t.Errorf("equal similarity should resolve by insertion order, got %s first", results[0].ID)
	}
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t, WithDimension(2))
	if _, err := s.Search([]float64{1, 0, 0}, 1, nil); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRemoveDocumentIdempotent(t *testing.T) {
	s := newTestStore(t, WithDimension(2))
	if err := s.AddDocument("doc", nil, []float64{1, 0}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if !s.RemoveDocument("doc") {
		t.Error("first remove returned false")
	}
	if s.RemoveDocument("doc") {
		t.Error("second remove returned true")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t, WithDimension(2))
	if err := s.AddDocument("one", map[string]any{"kind": "intent"}, []float64{1, 0}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := s.AddDocument("two", nil, []float64{0, 1}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	export := s.ExportData()
	if len(export.Documents) != 2 || export.Version != "1.0" {
		t.Fatalf("unexpected export: %d documents, version %s", len(export.Documents), export.Version)
	}

	s.Clear()
	if s.Size() != 0 {
		t.Fatalf("clear left %d documents", s.Size())
	}
	if err := s.ImportData(export); err != nil {
		t.Fatalf("ImportData failed: %v", err)
	}
	if s.Size() != 2 {
		t.Fatalf("import restored %d documents, want 2", s.Size())
	}

	restored := s.ExportData()
	for i, doc := range restored.Documents {
		if doc.ID != export.Documents[i].ID {
			t.Errorf("document order changed: %s vs %s", doc.ID, export.Documents[i].ID)
		}
		if !doc.AddedAt.Equal(export.Documents[i].AddedAt) {
			t.Errorf("document %s lost its addedAt across the round trip", doc.ID)
		}
	}

	results, err := s.Search([]float64{1, 0}, 1, nil)
	if err != nil {
		t.Fatalf("Search after import failed: %v", err)
	}
	if results[0].ID != "one" {
		t.Errorf("search after import returned %s, want one", results[0].ID)
	}
}

func TestImportRejectsInvalidData(t *testing.T) {
	s := newTestStore(t, WithDimension(2))
	if err := s.ImportData(nil); !errors.Is(err, models.ErrInvalidImport) {
		t.Errorf("expected ErrInvalidImport for nil, got %v", err)
	}
	if err := s.ImportData(&Export{}); !errors.Is(err, models.ErrInvalidImport) {
		t.Errorf("expected ErrInvalidImport for missing documents, got %v", err)
	}
	if err := s.ImportData(&Export{Documents: []ExportedDocument{}, Dimension: 5}); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for wrong dimension, got %v", err)
	}
}
