// Package pipeline runs a batch of articles through embedding resolution,
// deduplication, clustering and grouping, then hands the topic groups to
// the configured publisher.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"topicwire/internal/clustering"
	"topicwire/internal/core"
	"topicwire/internal/embed"
	"topicwire/internal/ingest"
	"topicwire/internal/quality"
	"topicwire/internal/sink"
)

// ErrMissingEmbeddings is returned when some articles have no embedding and
// no provider is configured to compute them.
var ErrMissingEmbeddings = errors.New("articles without embeddings and no embedding provider")

// Pipeline orchestrates one or more batch runs
type Pipeline struct {
	dedup     Deduplicator
	clusterer TopicClusterer
	embedder  EmbeddingGenerator // optional
	store     EmbeddingStore     // optional
	publisher Publisher          // optional
	evaluator *quality.ClusterCoherenceEvaluator

	config *Config
	log    zerolog.Logger
	now    func() time.Time
}

// Config holds pipeline configuration
type Config struct {
	EmbeddingBatchSize int
	EmbeddingMaxChars  int
	StoreTimeout       time.Duration
	MaxParallelBatches int
	QualityGates       QualityGateConfig
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		EmbeddingBatchSize: 64,
		EmbeddingMaxChars:  embed.DefaultMaxChars,
		StoreTimeout:       10 * time.Second,
		MaxParallelBatches: 2,
		QualityGates:       DefaultQualityGateConfig(),
	}
}

// Result is the outcome of one batch run
type Result struct {
	RunID   string
	BatchID string

	Unique  []core.Article // Dedup survivors in viral order
	Removed []core.Article
	Labels  []int // One per Unique article
	Noise   []core.Article
	Groups  []core.TopicGroup

	ClusterStats clustering.Stats
	Quality      *quality.ClusterCoherenceMetrics
	Stats        ProcessingStats
}

// ProcessingStats tracks pipeline execution metrics
type ProcessingStats struct {
	TotalArticles       int
	EmbeddingsFromBatch int
	EmbeddingsFromStore int
	EmbeddingsComputed  int
	DuplicatesRemoved   int
	TopicGroups         int
	NoiseArticles       int
	StartTime           time.Time
	EndTime             time.Time
	ProcessingTime      time.Duration
}

// Run processes a single batch
func (p *Pipeline) Run(ctx context.Context, batch *ingest.Batch) (*Result, error) {
	start := p.now()
	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Str("batch_id", batch.ID).Logger()

	result := &Result{RunID: runID, BatchID: batch.ID}
	result.Stats.StartTime = start
	result.Stats.TotalArticles = len(batch.Articles)
	log.Info().Int("articles", len(batch.Articles)).Msg("Starting run")

	// Step 1: resolve an embedding for every article
	articles, err := p.resolveEmbeddings(ctx, batch.Articles, &result.Stats, log)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve embeddings: %w", err)
	}

	// Step 2: collapse near-duplicates
	embeddings := make([][]float64, len(articles))
	for i, a := range articles {
		embeddings[i] = a.Embedding
	}
	unique, removed, err := p.dedup.Deduplicate(articles, embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to deduplicate: %w", err)
	}
	result.Unique, result.Removed = unique, removed
	result.Stats.DuplicatesRemoved = len(removed)

	// Step 3: cluster the survivors
	vectors := make([][]float64, len(unique))
	for i, a := range unique {
		vectors[i] = a.Embedding
	}
	labels, stats, err := p.clusterer.ClusterArticles(vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster articles: %w", err)
	}
	result.Labels, result.ClusterStats = labels, stats

	// Step 4: build topic groups
	groups, err := clustering.GroupByClusters(unique, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to group articles: %w", err)
	}
	clustering.AnnotateGroups(groups)
	result.Groups = groups
	for i, l := range labels {
		if l == core.NoiseLabel {
			result.Noise = append(result.Noise, unique[i])
		}
	}
	result.Stats.TopicGroups = len(groups)
	result.Stats.NoiseArticles = len(result.Noise)

	// Step 5: quality gates
	gate := NewClusteringQualityGate(p.config.QualityGates, p.evaluator, vectors, labels, log)
	gates := NewQualityGateRunner(log)
	gates.AddGate(gate)
	if err := gates.RunGates(ctx); err != nil {
		return nil, err
	}
	result.Quality = gate.Metrics()

	// Step 6: publish
	if p.publisher != nil {
		run := sink.Run{RunID: runID, BatchID: batch.ID, CreatedAt: start.UTC()}
		if err := p.publisher.Publish(ctx, run, groups); err != nil {
			return result, fmt.Errorf("failed to publish topic groups: %w", err)
		}
	}

	result.Stats.EndTime = p.now()
	result.Stats.ProcessingTime = result.Stats.EndTime.Sub(start)
	log.Info().
		Int("unique", len(unique)).
		Int("removed", len(removed)).
		Int("groups", len(groups)).
		Int("noise", len(result.Noise)).
		Dur("elapsed", result.Stats.ProcessingTime).
		Msg("Run complete")

	return result, nil
}

// RunBatches processes batches concurrently, at most MaxParallelBatches at
// a time. Results keep the input order. The first failure cancels the rest.
func (p *Pipeline) RunBatches(ctx context.Context, batches []*ingest.Batch) ([]*Result, error) {
	results := make([]*Result, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	if p.config.MaxParallelBatches > 0 {
		g.SetLimit(p.config.MaxParallelBatches)
	}
	for i, b := range batches {
		g.Go(func() error {
			r, err := p.Run(gctx, b)
			if err != nil {
				return fmt.Errorf("batch %s: %w", b.ID, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ResolveEmbeddings fills in embeddings without running the rest of the
// pipeline. The input slice is not modified.
func (p *Pipeline) ResolveEmbeddings(ctx context.Context, articles []core.Article) ([]core.Article, ProcessingStats, error) {
	var stats ProcessingStats
	stats.TotalArticles = len(articles)
	out, err := p.resolveEmbeddings(ctx, articles, &stats, p.log)
	return out, stats, err
}

// resolveEmbeddings returns copies of the articles with Embedding set. Batch
// vectors win, then ones stored for the current provider, then the provider
// itself. Computed vectors are written back to the store.
func (p *Pipeline) resolveEmbeddings(ctx context.Context, in []core.Article, stats *ProcessingStats, log zerolog.Logger) ([]core.Article, error) {
	articles := make([]core.Article, len(in))
	copy(articles, in)

	var missing []int
	for i, a := range articles {
		if len(a.Embedding) > 0 {
			stats.EmbeddingsFromBatch++
			continue
		}
		missing = append(missing, i)
	}

	// Stored vectors are only comparable with the provider's own output, so
	// the lookup is keyed by its name and skipped when there is no provider.
	if len(missing) > 0 && p.store != nil && p.embedder != nil {
		ids := make([]string, len(missing))
		for j, idx := range missing {
			ids[j] = articles[idx].ID
		}

		sctx, cancel := context.WithTimeout(ctx, p.config.StoreTimeout)
		stored, err := p.store.Get(sctx, p.embedder.Name(), ids)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Embedding store lookup failed, falling back to provider")
		}

		still := missing[:0]
		for _, idx := range missing {
			if v, ok := stored[articles[idx].ID]; ok && len(v) > 0 {
				articles[idx].Embedding = v
				stats.EmbeddingsFromStore++
				continue
			}
			still = append(still, idx)
		}
		missing = still
	}

	if len(missing) == 0 {
		return articles, nil
	}
	if p.embedder == nil {
		return nil, fmt.Errorf("%d of %d: %w", len(missing), len(articles), ErrMissingEmbeddings)
	}

	pending := make([]core.Article, len(missing))
	for j, idx := range missing {
		pending[j] = articles[idx]
	}
	vectors, err := embed.EmbedArticles(ctx, p.embedder, pending, p.config.EmbeddingBatchSize, p.config.EmbeddingMaxChars)
	if err != nil {
		return nil, err
	}
	for j, idx := range missing {
		articles[idx].Embedding = vectors[j]
	}
	stats.EmbeddingsComputed = len(missing)
	log.Debug().Int("computed", len(missing)).Str("provider", p.embedder.Name()).Msg("Embeddings generated")

	if p.store != nil {
		sctx, cancel := context.WithTimeout(ctx, p.config.StoreTimeout)
		defer cancel()
		for j, idx := range missing {
			if err := p.store.Put(sctx, articles[idx].ID, p.embedder.Name(), vectors[j]); err != nil {
				log.Warn().Err(err).Str("article_id", articles[idx].ID).Msg("Failed to store embedding")
				break
			}
		}
	}
	return articles, nil
}
