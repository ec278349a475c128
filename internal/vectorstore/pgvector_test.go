package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestVectorConversion(t *testing.T) {
	in := []float64{0.5, -1, 0.25}
	out := fromVector(toVector(in))
	if len(out) != len(in) {
		t.Fatalf("Expected %d dims, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("dim %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestIndexType(t *testing.T) {
	tests := []struct {
		def  string
		want string
	}{
		{"CREATE INDEX x ON article_embeddings USING hnsw (embedding vector_cosine_ops)", "hnsw"},
		{"CREATE INDEX x ON article_embeddings USING ivfflat (embedding)", "ivfflat"},
		{"CREATE INDEX x ON article_embeddings USING btree (article_id)", "unknown"},
	}
	for _, tt := range tests {
		if got := indexType(tt.def); got != tt.want {
			t.Errorf("indexType(%q) = %q, want %q", tt.def, got, tt.want)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Put(ctx, "a", "m", nil); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("Expected ErrEmptyEmbedding, got %v", err)
	}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(s.Put(ctx, "a", "m", []float64{1, 0}))
	must(s.Put(ctx, "b", "m", []float64{0.9, 0.1}))
	must(s.Put(ctx, "c", "m", []float64{0, 1}))

	got, err := s.Get(ctx, "m", []string{"a", "missing"})
	must(err)
	if len(got) != 1 || got["a"][0] != 1 {
		t.Errorf("Get() = %v", got)
	}

	results, err := s.Search(ctx, SearchQuery{Embedding: []float64{1, 0}, SimilarityThreshold: 0.5})
	must(err)
	if len(results) != 2 || results[0].ArticleID != "a" || results[1].ArticleID != "b" {
		t.Errorf("Search() = %+v", results)
	}

	results, err = s.Search(ctx, SearchQuery{Embedding: []float64{1, 0}, SimilarityThreshold: 0.5, ExcludeIDs: []string{"a"}, Limit: 1})
	must(err)
	if len(results) != 1 || results[0].ArticleID != "b" {
		t.Errorf("Search() with exclusion = %+v", results)
	}

	must(s.Delete(ctx, "c"))
	stats, err := s.GetStats(ctx)
	must(err)
	if stats.TotalEmbeddings != 2 || stats.EmbeddingDimensions != 2 {
		t.Errorf("GetStats() = %+v", stats)
	}
}

func TestMemoryStoreFiltersByModel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Put(ctx, "a", "gemini/text-embedding-004", []float64{1, 0, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "b", "openai/text-embedding-3-small", []float64{1, 0, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "gemini/text-embedding-004", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := got["b"]; ok || len(got) != 1 {
		t.Errorf("Expected only a for the gemini model, got %v", got)
	}

	results, err := s.Search(ctx, SearchQuery{Embedding: []float64{1, 0, 0}, Model: "openai/text-embedding-3-small"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ArticleID != "b" {
		t.Errorf("Expected only b for the openai model, got %+v", results)
	}

	// Re-embedding under a new model replaces the old vector.
	if err := s.Put(ctx, "a", "openai/text-embedding-3-small", []float64{0, 1, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got, _ := s.Get(ctx, "gemini/text-embedding-004", []string{"a"}); len(got) != 0 {
		t.Errorf("Expected stale model to miss, got %v", got)
	}
}

func TestMemoryStoreCopiesVectors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	v := []float64{1, 2}
	_ = s.Put(ctx, "a", "m", v)
	v[0] = 99

	got, _ := s.Get(ctx, "m", []string{"a"})
	if got["a"][0] != 1 {
		t.Errorf("Stored vector was mutated through caller slice: %v", got["a"])
	}
}

// TestPgVectorIntegration exercises the Postgres adapter end to end.
// Run with: DATABASE_URL=... go test -v ./internal/vectorstore -run TestPgVectorIntegration
func TestPgVectorIntegration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := Open(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx, 3); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	prefix := fmt.Sprintf("test-%d-", time.Now().UnixNano())
	ids := []string{prefix + "a", prefix + "b"}
	defer func() {
		for _, id := range ids {
			_ = store.Delete(ctx, id)
		}
	}()

	if err := store.Put(ctx, ids[0], "test", []float64{1, 0, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, ids[1], "test", []float64{0, 1, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "test", ids)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 embeddings, got %d", len(got))
	}
	if other, err := store.Get(ctx, "other", ids); err != nil || len(other) != 0 {
		t.Errorf("Expected no embeddings for another model, got %v (err %v)", other, err)
	}

	results, err := store.Search(ctx, SearchQuery{Embedding: []float64{1, 0, 0}, SimilarityThreshold: 0.99, Limit: 5, Model: "test"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	found := false
	for _, r := range results {
		if r.ArticleID == ids[1] {
			t.Errorf("Orthogonal vector should not match: %+v", r)
		}
		if r.ArticleID == ids[0] {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected %s in results, got %+v", ids[0], results)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	t.Logf("Store stats: %+v", stats)
}
