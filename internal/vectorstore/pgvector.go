package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const tableName = "article_embeddings"

// PgVectorAdapter implements EmbeddingStore using PostgreSQL with the
// pgvector extension
type PgVectorAdapter struct {
	db *sql.DB
}

// NewPgVectorAdapter creates a new pgvector-based store
func NewPgVectorAdapter(db *sql.DB) *PgVectorAdapter {
	return &PgVectorAdapter{db: db}
}

// Open connects to Postgres with lib/pq and verifies the connection
func Open(ctx context.Context, databaseURL string) (*PgVectorAdapter, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPgVectorAdapter(db), nil
}

// Close closes the underlying connection pool
func (p *PgVectorAdapter) Close() error {
	return p.db.Close()
}

// EnsureSchema creates the extension and embeddings table. With dimensions
// > 0 the column is sized, which also allows an HNSW index.
func (p *PgVectorAdapter) EnsureSchema(ctx context.Context, dimensions int) error {
	column := "vector"
	if dimensions > 0 {
		column = fmt.Sprintf("vector(%d)", dimensions)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			article_id TEXT PRIMARY KEY,
			model      TEXT NOT NULL DEFAULT '',
			embedding  %s NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, tableName, column),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	if dimensions > 0 {
		return p.CreateIndex(ctx)
	}
	return nil
}

// CreateIndex creates an HNSW cosine index if it does not exist yet
func (p *PgVectorAdapter) CreateIndex(ctx context.Context) error {
	// m=16 connections per layer, ef_construction=64 candidate list size
	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_hnsw
		ON %s
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64)
	`, tableName, tableName)

	if _, err := p.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Put saves or updates an embedding for an article
func (p *PgVectorAdapter) Put(ctx context.Context, articleID, model string, embedding []float64) error {
	if len(embedding) == 0 {
		return ErrEmptyEmbedding
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (article_id, model, embedding, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (article_id) DO UPDATE
		SET model = EXCLUDED.model,
		    embedding = EXCLUDED.embedding,
		    updated_at = NOW()
	`, tableName)

	if _, err := p.db.ExecContext(ctx, query, articleID, model, toVector(embedding)); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// Get loads the embeddings stored by model for the given article IDs
func (p *PgVectorAdapter) Get(ctx context.Context, model string, articleIDs []string) (map[string][]float64, error) {
	out := make(map[string][]float64, len(articleIDs))
	if len(articleIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
		SELECT article_id, embedding
		FROM %s
		WHERE article_id = ANY($1) AND model = $2
	`, tableName)

	rows, err := p.db.QueryContext(ctx, query, pq.Array(articleIDs), model)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var v pgvector.Vector
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		out[id] = fromVector(v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Search finds stored articles similar to the query embedding using the
// cosine distance operator (<=>)
func (p *PgVectorAdapter) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	query = query.withDefaults()

	var filters []string
	args := []interface{}{toVector(query.Embedding), query.SimilarityThreshold, query.Limit}
	if len(query.ExcludeIDs) > 0 {
		args = append(args, pq.Array(query.ExcludeIDs))
		filters = append(filters, fmt.Sprintf("AND article_id <> ALL($%d)", len(args)))
	}
	if query.Model != "" {
		args = append(args, query.Model)
		filters = append(filters, fmt.Sprintf("AND model = $%d", len(args)))
	}

	sqlQuery := fmt.Sprintf(`
		SELECT
			article_id,
			1 - (embedding <=> $1) AS similarity,
			embedding <=> $1 AS distance
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		  %s
		ORDER BY embedding <=> $1
		LIMIT $3
	`, tableName, strings.Join(filters, "\n\t\t  "))

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var result SearchResult
		if err := rows.Scan(&result.ArticleID, &result.Similarity, &result.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

// Delete removes an embedding
func (p *PgVectorAdapter) Delete(ctx context.Context, articleID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE article_id = $1`, tableName)
	if _, err := p.db.ExecContext(ctx, query, articleID); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

// GetStats returns statistics about the store
func (p *PgVectorAdapter) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	countQuery := fmt.Sprintf(`SELECT COUNT(*), COALESCE(MAX(vector_dims(embedding)), 0) FROM %s`, tableName)
	if err := p.db.QueryRowContext(ctx, countQuery).Scan(&stats.TotalEmbeddings, &stats.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	var indexDef string
	err := p.db.QueryRowContext(ctx, `
		SELECT indexdef
		FROM pg_indexes
		WHERE tablename = $1
		AND indexname LIKE '%hnsw%'
		LIMIT 1
	`, tableName).Scan(&indexDef)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		stats.IndexType = "none"
	case err != nil:
		return nil, fmt.Errorf("failed to get index info: %w", err)
	default:
		stats.IndexType = indexType(indexDef)
	}

	return &stats, nil
}

func indexType(indexDef string) string {
	def := strings.ToLower(indexDef)
	switch {
	case strings.Contains(def, "hnsw"):
		return "hnsw"
	case strings.Contains(def, "ivfflat"):
		return "ivfflat"
	default:
		return "unknown"
	}
}

func toVector(embedding []float64) pgvector.Vector {
	v := make([]float32, len(embedding))
	for i, x := range embedding {
		v[i] = float32(x)
	}
	return pgvector.NewVector(v)
}

func fromVector(v pgvector.Vector) []float64 {
	s := v.Slice()
	out := make([]float64, len(s))
	for i, x := range s {
		out[i] = float64(x)
	}
	return out
}
