package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"topicwire/internal/clustering"
	"topicwire/internal/config"
	"topicwire/internal/dedup"
	"topicwire/internal/embed"
	"topicwire/internal/pipeline"
	"topicwire/internal/quality"
	"topicwire/internal/sink"
	"topicwire/internal/vectorstore"
)

// wireOptions are per-command overrides layered on top of the config.
type wireOptions struct {
	jsonPath   string // file sink target, overrides sink.file.path
	publish    bool   // force the Kafka sink on
	noPublish  bool   // build without any sink
	blockGates bool
}

// app is the set of components one command invocation works with.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	dedup     *dedup.Engine
	clusterer *clustering.Engine
	pipeline  *pipeline.Pipeline

	closers []func() error
}

// newApp builds every component from configuration. Optional backing
// services that cannot be reached are logged and skipped.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts wireOptions) (*app, error) {
	a := &app{cfg: cfg, log: log}

	d, err := dedup.NewEngine(cfg.DedupConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup engine: %w", err)
	}
	a.dedup = d

	c, err := clustering.NewEngine(cfg.ClusteringConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create clustering engine: %w", err)
	}
	a.clusterer = c

	b := pipeline.NewBuilder().
		WithDeduplicator(d).
		WithClusterer(c).
		WithEvaluator(quality.NewClusterCoherenceEvaluatorWithThresholds(cfg.QualityThresholds())).
		WithConfig(pipelineConfig(cfg, opts)).
		WithLogger(log)

	provider, closeProvider, err := embed.FromConfig(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	a.closers = append(a.closers, closeProvider)
	if provider != nil {
		b = b.WithEmbedder(provider)
	}

	if cfg.Store.Enabled {
		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Embedding store unavailable, continuing without it")
		} else {
			a.closers = append(a.closers, closeStore)
			b = b.WithStore(store)
		}
	}

	if !opts.noPublish {
		pub, err := buildPublisher(cfg, log, opts)
		if err != nil {
			a.Close()
			return nil, err
		}
		if pub != nil {
			a.closers = append(a.closers, pub.Close)
			b = b.WithPublisher(pub)
		}
	}

	p, err := b.Build()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

// openStore connects to the configured embedding store and prepares its
// schema. Tests replace it with an in-memory store.
var openStore = func(ctx context.Context, cfg *config.Config) (vectorstore.EmbeddingStore, func() error, error) {
	if !cfg.Store.Enabled {
		return nil, nil, errors.New("embedding store is disabled, set store.enabled and store.database_url")
	}
	store, err := vectorstore.Open(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx, 0); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to prepare embedding store: %w", err)
	}
	return store, store.Close, nil
}

func pipelineConfig(cfg *config.Config, opts wireOptions) *pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.EmbeddingBatchSize = cfg.Embedding.BatchSize
	if cfg.Embedding.MaxChars > 0 {
		pc.EmbeddingMaxChars = cfg.Embedding.MaxChars
	}
	pc.StoreTimeout = config.Duration(cfg.Store.Timeout, pc.StoreTimeout)
	pc.MaxParallelBatches = cfg.Pipeline.MaxParallelBatches
	pc.QualityGates.BlockOnFailure = opts.blockGates
	return pc
}

// buildPublisher returns nil when no sink is configured.
func buildPublisher(cfg *config.Config, log zerolog.Logger, opts wireOptions) (pipeline.Publisher, error) {
	var pubs sink.MultiPublisher

	path := cfg.Sink.File.Path
	if opts.jsonPath != "" {
		path = opts.jsonPath
	}
	if path != "" {
		pubs = append(pubs, sink.NewFilePublisher(path))
	}

	if cfg.Sink.Kafka.Enabled || opts.publish {
		k, err := sink.NewKafkaPublisher(sink.KafkaConfig{
			Brokers:  cfg.Sink.Kafka.Brokers,
			Topic:    cfg.Sink.Kafka.Topic,
			ClientID: cfg.Sink.Kafka.ClientID,
		}, log)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, k)
	}

	switch len(pubs) {
	case 0:
		return nil, nil
	case 1:
		return pubs[0], nil
	default:
		return pubs, nil
	}
}

// Close releases clients in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
