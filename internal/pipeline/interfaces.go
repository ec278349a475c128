package pipeline

import (
	"topicwire/internal/clustering"
	"topicwire/internal/core"
	"topicwire/internal/embed"
	"topicwire/internal/sink"
	"topicwire/internal/vectorstore"
)

// Deduplicator collapses near-duplicate articles
type Deduplicator interface {
	// Deduplicate returns survivors (viral score attached) and removed articles
	Deduplicate(articles []core.Article, embeddings [][]float64) ([]core.Article, []core.Article, error)
}

// TopicClusterer assigns a topic label (or noise) to each embedding
type TopicClusterer interface {
	ClusterArticles(embeddings [][]float64, opts ...clustering.Option) ([]int, clustering.Stats, error)
}

// EmbeddingGenerator creates vector embeddings for text
type EmbeddingGenerator = embed.Provider

// EmbeddingStore persists embeddings between runs
type EmbeddingStore = vectorstore.EmbeddingStore

// Publisher emits finished topic groups
type Publisher = sink.Publisher
