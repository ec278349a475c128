// Package clustering groups deduplicated articles into coherent topics.
//
// The base density clustering proposes clusters, which are then validated:
// oversized clusters are split with stricter parameters, and clusters whose
// mean pairwise similarity falls below a floor are discarded as noise.
package clustering

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"topicwire/internal/core"
	"topicwire/internal/hdbscan"
	"topicwire/internal/similarity"
)

// ErrInvalidConfig is returned by NewEngine for unusable settings.
var ErrInvalidConfig = errors.New("invalid clustering config")

// minArticles is the smallest batch worth clustering.
const minArticles = 3

// Config holds clustering settings
type Config struct {
	MinClusterSize            int     // Smallest group the base algorithm accepts
	MinSamples                int     // Density parameter for core distances
	ClusterSelectionEpsilon   float64 // Merge threshold for the base algorithm
	MinClusterSimilarity      float64 // Coherence floor for accepted clusters
	MaxClusterSize            int     // Larger clusters are split
	SubClusterEpsilon         float64 // Merge threshold when splitting
	SubClusterSimilarityRelax float64 // Sub-clusters need MinClusterSimilarity minus this
	MaxSplitDepth             int     // Nested splits allowed for still-oversized pieces
	ValidateCoherence         bool
	Backend                   string // "native" or "humility"
}

// DefaultConfig returns the standard clustering settings.
func DefaultConfig() Config {
	return Config{
		MinClusterSize:            3,
		MinSamples:                2,
		ClusterSelectionEpsilon:   0.08,
		MinClusterSimilarity:      0.65,
		MaxClusterSize:            15,
		SubClusterEpsilon:         0.03,
		SubClusterSimilarityRelax: 0.1,
		MaxSplitDepth:             3,
		ValidateCoherence:         true,
		Backend:                   BackendNative,
	}
}

func validateConfig(cfg Config) error {
	var problems []string
	if cfg.MinClusterSize < 1 {
		problems = append(problems, fmt.Sprintf("min_cluster_size must be >= 1, got %d", cfg.MinClusterSize))
	}
	if cfg.MinSamples < 1 {
		problems = append(problems, fmt.Sprintf("min_samples must be >= 1, got %d", cfg.MinSamples))
	}
	if cfg.ClusterSelectionEpsilon < 0 {
		problems = append(problems, "cluster_selection_epsilon must not be negative")
	}
	if cfg.MinClusterSimilarity < -1 || cfg.MinClusterSimilarity > 1 {
		problems = append(problems, fmt.Sprintf("min_cluster_similarity %.3f outside [-1, 1]", cfg.MinClusterSimilarity))
	}
	if cfg.MaxClusterSize < 2 {
		problems = append(problems, fmt.Sprintf("max_cluster_size must be >= 2, got %d", cfg.MaxClusterSize))
	}
	if cfg.SubClusterEpsilon < 0 {
		problems = append(problems, "sub_cluster_epsilon must not be negative")
	}
	if cfg.SubClusterSimilarityRelax < 0 {
		problems = append(problems, "sub_cluster_similarity_relax must not be negative")
	}
	if cfg.MaxSplitDepth < 1 {
		problems = append(problems, fmt.Sprintf("max_split_depth must be >= 1, got %d", cfg.MaxSplitDepth))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
	}
	return nil
}

// Verdict is the validation outcome of one proposed cluster.
type Verdict string

const (
	VerdictAccepted    Verdict = "accepted"
	VerdictRejected    Verdict = "rejected"
	VerdictSplit       Verdict = "split"
	VerdictSplitFailed Verdict = "split_failed"
)

// Stats summarises a clustering run.
type Stats struct {
	NumClusters          int             `json:"num_clusters"`
	NumNoise             int             `json:"num_noise"`
	ClusterSizes         map[int]int     `json:"cluster_sizes"`
	ClusterCoherences    map[int]float64 `json:"cluster_coherences"`
	ClusterProbabilities []float64       `json:"cluster_probabilities"`
	Verdicts             map[int]Verdict `json:"verdicts,omitempty"` // Keyed by proposed label
}

func emptyStats(n int) Stats {
	return Stats{
		NumNoise:             n,
		ClusterSizes:         map[int]int{},
		ClusterCoherences:    map[int]float64{},
		ClusterProbabilities: []float64{},
	}
}

// Engine clusters article embeddings. It holds only immutable settings and
// is safe for concurrent use.
type Engine struct {
	cfg     Config
	backend Backend
	log     zerolog.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithBackend overrides the backend named in the config.
func WithBackend(b Backend) EngineOption {
	return func(e *Engine) {
		e.backend = b
	}
}

// NewEngine validates cfg and returns a ready Engine.
func NewEngine(cfg Config, log zerolog.Logger, opts ...EngineOption) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	backend, err := NewBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		backend: backend,
		log:     log.With().Str("component", "clustering").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's settings.
func (e *Engine) Config() Config {
	return e.cfg
}

type runOptions struct {
	minClusterSize int
	minSamples     int
	validate       bool
}

// Option adjusts a single ClusterArticles call.
type Option func(*runOptions)

// WithMinClusterSize overrides the minimum cluster size for one call.
func WithMinClusterSize(n int) Option {
	return func(o *runOptions) {
		if n > 0 {
			o.minClusterSize = n
		}
	}
}

// WithMinSamples overrides min samples for one call.
func WithMinSamples(n int) Option {
	return func(o *runOptions) {
		if n > 0 {
			o.minSamples = n
		}
	}
}

// WithoutCoherenceValidation skips the split/reject pass.
func WithoutCoherenceValidation() Option {
	return func(o *runOptions) {
		o.validate = false
	}
}

// ClusterArticles assigns a cluster label to every embedding, -1 for noise.
// Batches under three articles are returned as all noise.
func (e *Engine) ClusterArticles(embeddings [][]float64, opts ...Option) ([]int, Stats, error) {
	ro := runOptions{
		minClusterSize: e.cfg.MinClusterSize,
		minSamples:     e.cfg.MinSamples,
		validate:       e.cfg.ValidateCoherence,
	}
	for _, opt := range opts {
		opt(&ro)
	}

	if err := similarity.CheckDimensions(embeddings); err != nil {
		return nil, Stats{}, fmt.Errorf("cluster articles: %w", err)
	}

	n := len(embeddings)
	if n < minArticles {
		e.log.Debug().Int("articles", n).Msg("too few articles to cluster")
		return noiseLabels(n), emptyStats(n), nil
	}

	vectors := similarity.NormalizeAll(embeddings)
	res, err := e.backend.Cluster(vectors, hdbscan.Params{
		MinClusterSize:          ro.minClusterSize,
		MinSamples:              ro.minSamples,
		ClusterSelectionEpsilon: e.cfg.ClusterSelectionEpsilon,
		Method:                  hdbscan.Leaf,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("backend", e.backend.Name()).Msg("base clustering failed, treating batch as noise")
		return noiseLabels(n), emptyStats(n), nil
	}

	labels := append([]int(nil), res.Labels...)
	var verdicts map[int]Verdict
	if ro.validate && res.NumClusters > 0 {
		labels, verdicts = e.validateAndFilter(vectors, labels)
	}

	stats := computeStats(vectors, labels, res.Probabilities)
	stats.Verdicts = verdicts

	e.log.Info().
		Int("articles", n).
		Int("proposed", res.NumClusters).
		Int("clusters", stats.NumClusters).
		Int("noise", stats.NumNoise).
		Msg("clustering complete")

	return labels, stats, nil
}

// validateAndFilter checks every proposed cluster: oversized ones are split,
// incoherent ones become noise, the rest are kept.
func (e *Engine) validateAndFilter(vectors [][]float64, labels []int) ([]int, map[int]Verdict) {
	out := append([]int(nil), labels...)
	groups := membersByLabel(labels)

	proposed := make([]int, 0, len(groups))
	for l := range groups {
		proposed = append(proposed, l)
	}
	sort.Ints(proposed)

	verdicts := make(map[int]Verdict, len(proposed))
	if len(proposed) == 0 {
		return out, verdicts
	}
	alloc := NewLabelAllocator(proposed[len(proposed)-1] + 1)

	for _, label := range proposed {
		members := groups[label]

		if len(members) > e.cfg.MaxClusterSize {
			if accepted := e.subCluster(vectors, members, out, alloc, 0); accepted > 0 {
				verdicts[label] = VerdictSplit
				e.log.Debug().Int("label", label).Int("size", len(members)).Int("subclusters", accepted).Msg("split oversized cluster")
			} else {
				setLabel(out, members, core.NoiseLabel)
				verdicts[label] = VerdictSplitFailed
				e.log.Debug().Int("label", label).Int("size", len(members)).Msg("could not split oversized cluster")
			}
			continue
		}

		coherence := clusterCoherence(vectors, members)
		if coherence < e.cfg.MinClusterSimilarity {
			setLabel(out, members, core.NoiseLabel)
			verdicts[label] = VerdictRejected
			e.log.Debug().Int("label", label).Float64("coherence", coherence).Msg("rejected incoherent cluster")
			continue
		}
		verdicts[label] = VerdictAccepted
	}
	return out, verdicts
}

// subCluster re-clusters members with stricter parameters and writes fresh
// labels into out for every accepted piece. Members not claimed by an
// accepted piece become noise. It returns the number of accepted pieces.
func (e *Engine) subCluster(vectors [][]float64, members []int, out []int, alloc *LabelAllocator, depth int) int {
	size := len(members)
	mcs := size / 5
	if mcs < 2 {
		mcs = 2
	}

	res, err := e.backend.Cluster(gather(vectors, members), hdbscan.Params{
		MinClusterSize:          mcs,
		MinSamples:              2,
		ClusterSelectionEpsilon: e.cfg.SubClusterEpsilon,
		Method:                  hdbscan.Leaf,
	})
	setLabel(out, members, core.NoiseLabel)
	if err != nil {
		e.log.Warn().Err(err).Int("size", size).Msg("sub-clustering failed")
		return 0
	}

	local := membersByLabel(res.Labels)
	subLabels := make([]int, 0, len(local))
	for l := range local {
		subLabels = append(subLabels, l)
	}
	sort.Ints(subLabels)

	floor := e.cfg.MinClusterSimilarity - e.cfg.SubClusterSimilarityRelax
	accepted := 0
	for _, sl := range subLabels {
		piece := make([]int, len(local[sl]))
		for i, li := range local[sl] {
			piece[i] = members[li]
		}

		if len(piece) > e.cfg.MaxClusterSize {
			if len(piece) == size || depth+1 >= e.cfg.MaxSplitDepth {
				continue
			}
			accepted += e.subCluster(vectors, piece, out, alloc, depth+1)
			continue
		}

		if clusterCoherence(vectors, piece) < floor {
			continue
		}
		setLabel(out, piece, alloc.Next())
		accepted++
	}
	return accepted
}

// Coherence returns the mean pairwise cosine similarity among the members
// of label, or 1.0 when it has fewer than two members.
func Coherence(embeddings [][]float64, labels []int, label int) float64 {
	var members []int
	for i, l := range labels {
		if i >= len(embeddings) {
			break
		}
		if l == label {
			members = append(members, i)
		}
	}
	return clusterCoherence(embeddings, members)
}

// clusterCoherence is the mean pairwise cosine similarity of the vectors at idx.
func clusterCoherence(vectors [][]float64, idx []int) float64 {
	return similarity.MeanPairwise(gather(vectors, idx))
}

func computeStats(vectors [][]float64, labels []int, probabilities []float64) Stats {
	stats := emptyStats(0)
	groups := membersByLabel(labels)

	for i, l := range labels {
		if l == core.NoiseLabel {
			stats.NumNoise++
		}
		p := 0.0
		if l != core.NoiseLabel && i < len(probabilities) {
			p = probabilities[i]
		}
		stats.ClusterProbabilities = append(stats.ClusterProbabilities, p)
	}

	for label, members := range groups {
		stats.ClusterSizes[label] = len(members)
		stats.ClusterCoherences[label] = round3(clusterCoherence(vectors, members))
	}
	stats.NumClusters = len(groups)
	return stats
}

func membersByLabel(labels []int) map[int][]int {
	groups := make(map[int][]int)
	for i, l := range labels {
		if l == core.NoiseLabel {
			continue
		}
		groups[l] = append(groups[l], i)
	}
	return groups
}

func noiseLabels(n int) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = core.NoiseLabel
	}
	return labels
}

func setLabel(labels []int, idx []int, label int) {
	for _, i := range idx {
		labels[i] = label
	}
}

func gather(vectors [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = vectors[j]
	}
	return out
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
