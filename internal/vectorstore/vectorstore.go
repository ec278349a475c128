package vectorstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"topicwire/internal/similarity"
)

// ErrEmptyEmbedding is returned when storing a zero-length vector.
var ErrEmptyEmbedding = errors.New("embedding is empty")

// EmbeddingStore keeps article embeddings between runs so repeated batches
// do not pay for the embedding model twice.
type EmbeddingStore interface {
	// Put saves or replaces the embedding for an article
	Put(ctx context.Context, articleID, model string, embedding []float64) error

	// Get returns the embeddings stored for the given IDs by model. IDs that
	// are missing, or were embedded by another model, are absent from the map.
	Get(ctx context.Context, model string, articleIDs []string) (map[string][]float64, error)

	// Search finds stored articles similar to the query embedding, ordered
	// by cosine similarity (highest first). A non-empty query Model limits
	// the candidates to vectors from that model.
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)

	// Delete removes an embedding
	Delete(ctx context.Context, articleID string) error

	// GetStats returns statistics about the store
	GetStats(ctx context.Context) (*Stats, error)
}

// SearchQuery configures semantic search parameters
type SearchQuery struct {
	Embedding []float64

	// Limit is the maximum number of results to return (default: 10)
	Limit int

	// SimilarityThreshold is the minimum cosine similarity (default: 0.7)
	SimilarityThreshold float64

	ExcludeIDs []string

	// Model restricts results to embeddings from one model when set
	Model string
}

// SearchResult is a stored article and its similarity to the query
type SearchResult struct {
	ArticleID  string  `json:"article_id"`
	Similarity float64 `json:"similarity"`
	// Distance is the raw cosine distance, 1 - Similarity
	Distance float64 `json:"distance"`
}

// Stats describes the store contents
type Stats struct {
	TotalEmbeddings     int64  `json:"total_embeddings"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	IndexType           string `json:"index_type,omitempty"`
}

// DefaultSearchQuery returns sensible defaults
func DefaultSearchQuery(embedding []float64) SearchQuery {
	return SearchQuery{
		Embedding:           embedding,
		Limit:               10,
		SimilarityThreshold: 0.7,
	}
}

func (q SearchQuery) withDefaults() SearchQuery {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.SimilarityThreshold == 0 {
		q.SimilarityThreshold = 0.7
	}
	return q
}

// MemoryStore is an in-process EmbeddingStore, used when Postgres is not
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string][]float64
	models  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[string][]float64),
		models:  make(map[string]string),
	}
}

func (m *MemoryStore) Put(ctx context.Context, articleID, model string, embedding []float64) error {
	if len(embedding) == 0 {
		return ErrEmptyEmbedding
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[articleID] = append([]float64(nil), embedding...)
	m.models[articleID] = model
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, model string, articleIDs []string) (map[string][]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float64, len(articleIDs))
	for _, id := range articleIDs {
		if m.models[id] != model {
			continue
		}
		if v, ok := m.vectors[id]; ok {
			out[id] = append([]float64(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryStore) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	query = query.withDefaults()
	excluded := make(map[string]bool, len(query.ExcludeIDs))
	for _, id := range query.ExcludeIDs {
		excluded[id] = true
	}

	m.mu.RLock()
	var results []SearchResult
	for id, v := range m.vectors {
		if excluded[id] || len(v) != len(query.Embedding) {
			continue
		}
		if query.Model != "" && m.models[id] != query.Model {
			continue
		}
		sim := similarity.Cosine(query.Embedding, v)
		if sim >= query.SimilarityThreshold {
			results = append(results, SearchResult{ArticleID: id, Similarity: sim, Distance: 1 - sim})
		}
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ArticleID < results[j].ArticleID
	})
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func (m *MemoryStore) Delete(ctx context.Context, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, articleID)
	delete(m.models, articleID)
	return nil
}

func (m *MemoryStore) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &Stats{TotalEmbeddings: int64(len(m.vectors)), IndexType: "memory"}
	for _, v := range m.vectors {
		stats.EmbeddingDimensions = len(v)
		break
	}
	return stats, nil
}
