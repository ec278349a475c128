package pipeline

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"topicwire/internal/quality"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	dedup     Deduplicator
	clusterer TopicClusterer
	embedder  EmbeddingGenerator
	store     EmbeddingStore
	publisher Publisher
	evaluator *quality.ClusterCoherenceEvaluator
	config    *Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
		now:    time.Now,
	}
}

// WithDeduplicator sets the dedup engine (required)
func (b *Builder) WithDeduplicator(d Deduplicator) *Builder {
	b.dedup = d
	return b
}

// WithClusterer sets the clustering engine (required)
func (b *Builder) WithClusterer(c TopicClusterer) *Builder {
	b.clusterer = c
	return b
}

// WithEmbedder sets the embedding provider used for articles that arrive
// without vectors
func (b *Builder) WithEmbedder(e EmbeddingGenerator) *Builder {
	b.embedder = e
	return b
}

// WithStore sets the embedding store
func (b *Builder) WithStore(s EmbeddingStore) *Builder {
	b.store = s
	return b
}

// WithPublisher sets where topic groups are sent
func (b *Builder) WithPublisher(p Publisher) *Builder {
	b.publisher = p
	return b
}

// WithEvaluator sets the quality evaluator
func (b *Builder) WithEvaluator(e *quality.ClusterCoherenceEvaluator) *Builder {
	b.evaluator = e
	return b
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithLogger sets the logger
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithClock overrides time.Now, for tests
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.dedup == nil {
		return nil, fmt.Errorf("deduplicator is required")
	}
	if b.clusterer == nil {
		return nil, fmt.Errorf("clusterer is required")
	}

	config := b.config
	if config == nil {
		config = DefaultConfig()
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultConfig().StoreTimeout
	}
	evaluator := b.evaluator
	if evaluator == nil {
		evaluator = quality.NewClusterCoherenceEvaluator()
	}

	return &Pipeline{
		dedup:     b.dedup,
		clusterer: b.clusterer,
		embedder:  b.embedder,
		store:     b.store,
		publisher: b.publisher,
		evaluator: evaluator,
		config:    config,
		log:       b.log.With().Str("component", "pipeline").Logger(),
		now:       b.now,
	}, nil
}
