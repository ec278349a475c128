package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"topicwire/internal/quality"
)

// QualityGate represents a validation checkpoint in the pipeline
type QualityGate interface {
	// Validate checks if the stage output meets quality requirements
	Validate(ctx context.Context) error

	// Name returns the gate name for logging
	Name() string

	// IsBlocking returns whether failure should stop the pipeline
	IsBlocking() bool
}

// QualityGateConfig holds configuration for quality gates
type QualityGateConfig struct {
	EnableClusteringGate bool
	BlockOnFailure       bool // Stop the run on gate failure
}

// DefaultQualityGateConfig returns default configuration
func DefaultQualityGateConfig() QualityGateConfig {
	return QualityGateConfig{
		EnableClusteringGate: true,
		BlockOnFailure:       false, // warn only
	}
}

// ClusteringQualityGate scores a clustering run and reports problems
type ClusteringQualityGate struct {
	config      QualityGateConfig
	embeddings  [][]float64
	labels      []int
	evaluator   *quality.ClusterCoherenceEvaluator
	log         zerolog.Logger
	lastMetrics *quality.ClusterCoherenceMetrics
}

// NewClusteringQualityGate creates a new clustering quality gate
func NewClusteringQualityGate(
	config QualityGateConfig,
	evaluator *quality.ClusterCoherenceEvaluator,
	embeddings [][]float64,
	labels []int,
	log zerolog.Logger,
) *ClusteringQualityGate {
	if evaluator == nil {
		evaluator = quality.NewClusterCoherenceEvaluator()
	}
	return &ClusteringQualityGate{
		config:     config,
		embeddings: embeddings,
		labels:     labels,
		evaluator:  evaluator,
		log:        log,
	}
}

// Name returns the gate name
func (g *ClusteringQualityGate) Name() string {
	return "clustering_quality"
}

// IsBlocking returns whether this gate blocks the pipeline
func (g *ClusteringQualityGate) IsBlocking() bool {
	return g.config.BlockOnFailure
}

// Metrics returns the last evaluated metrics, nil before Validate
func (g *ClusteringQualityGate) Metrics() *quality.ClusterCoherenceMetrics {
	return g.lastMetrics
}

// Validate checks clustering quality
func (g *ClusteringQualityGate) Validate(ctx context.Context) error {
	if !g.config.EnableClusteringGate {
		return nil
	}

	metrics := g.evaluator.EvaluateClusterCoherence(g.embeddings, g.labels)
	g.lastMetrics = metrics
	g.logReport(metrics)

	if metrics.NumClusters == 0 || metrics.Passed {
		return nil
	}

	minSilhouette := g.evaluator.Thresholds().MinSilhouetteScore
	err := fmt.Errorf("clustering quality below threshold: grade=%s silhouette=%.3f (min: %.3f), %d issues",
		metrics.CoherenceGrade, metrics.AvgSilhouette, minSilhouette, len(metrics.Issues))
	if g.IsBlocking() {
		g.log.Error().Err(err).Str("gate", g.Name()).Msg("Quality gate failed")
	} else {
		g.log.Warn().Err(err).Str("gate", g.Name()).Msg("Quality gate warning")
	}
	return err
}

func (g *ClusteringQualityGate) logReport(metrics *quality.ClusterCoherenceMetrics) {
	g.log.Info().
		Str("grade", metrics.CoherenceGrade).
		Int("clusters", metrics.NumClusters).
		Int("noise", metrics.NumNoise).
		Float64("avg_silhouette", metrics.AvgSilhouette).
		Float64("avg_intra_similarity", metrics.AvgIntraClusterSimilarity).
		Float64("avg_inter_distance", metrics.AvgInterClusterDistance).
		Msg("Cluster cohesion metrics")

	ids := make([]int, 0, len(metrics.IntraClusterSimilarities))
	for id := range metrics.IntraClusterSimilarities {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		g.log.Debug().
			Int("cluster", id).
			Float64("cohesion", metrics.IntraClusterSimilarities[id]).
			Float64("silhouette", metrics.ClusterSilhouettes[id]).
			Msg("Cluster breakdown")
	}
	for _, issue := range metrics.Issues {
		g.log.Debug().Str("issue", issue).Msg("Clustering issue")
	}
}

// QualityGateRunner executes a series of quality gates
type QualityGateRunner struct {
	gates []QualityGate
	log   zerolog.Logger
}

// NewQualityGateRunner creates a new gate runner
func NewQualityGateRunner(log zerolog.Logger) *QualityGateRunner {
	return &QualityGateRunner{log: log}
}

// AddGate adds a quality gate to the runner
func (r *QualityGateRunner) AddGate(gate QualityGate) {
	r.gates = append(r.gates, gate)
}

// RunGates executes all gates in sequence. Only blocking failures are returned.
func (r *QualityGateRunner) RunGates(ctx context.Context) error {
	passed, warnings := 0, 0
	for _, gate := range r.gates {
		if err := gate.Validate(ctx); err != nil {
			if gate.IsBlocking() {
				return fmt.Errorf("%s: %w", gate.Name(), err)
			}
			warnings++
			continue
		}
		passed++
	}

	if len(r.gates) > 0 {
		r.log.Debug().Int("passed", passed).Int("warnings", warnings).Msg("Quality gates complete")
	}
	return nil
}
