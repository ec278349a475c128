// Package dedup collapses near-duplicate articles into a single survivor and
// scores each survivor by how many distinct sources carried the story.
package dedup

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"topicwire/internal/core"
	"topicwire/internal/similarity"
)

// Grouping modes
const (
	GroupingGreedy     = "greedy"
	GroupingComponents = "components"
)

var (
	// ErrLengthMismatch is returned when articles and embeddings differ in count.
	ErrLengthMismatch = errors.New("articles and embeddings length mismatch")
	// ErrInvalidConfig is returned by NewEngine for unusable settings.
	ErrInvalidConfig = errors.New("invalid dedup config")
)

// ScoreWeights controls survivor selection within a duplicate group.
type ScoreWeights struct {
	CharsPerPoint float64 // Characters of body text worth one point
	MaxTextPoints float64 // Cap on the text length contribution
	ImagePoints   float64 // Flat bonus when an image is present
	PremiumPoints float64 // Flat bonus for allow-listed sources
	FreshnessDays float64 // Points for a same-day article, minus one per day of age
}

// DefaultScoreWeights returns the standard survivor scoring weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		CharsPerPoint: 1000,
		MaxTextPoints: 40,
		ImagePoints:   20,
		PremiumPoints: 30,
		FreshnessDays: 10,
	}
}

// Config holds deduplication settings
type Config struct {
	SimilarityThreshold float64      // Pairs strictly above this are duplicates
	PremiumSources      []string     // Exact-match source names that earn the premium bonus
	Grouping            string       // "greedy" (default) or "components"
	Weights             ScoreWeights // Survivor scoring
}

// DefaultConfig returns the standard deduplication settings.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		PremiumSources:      DefaultPremiumSources(),
		Grouping:            GroupingGreedy,
		Weights:             DefaultScoreWeights(),
	}
}

// DefaultPremiumSources is the built-in allow-list of reputable outlets.
func DefaultPremiumSources() []string {
	return []string{
		"Reuters",
		"Associated Press",
		"AP",
		"BBC",
		"BBC News",
		"The New York Times",
		"The Washington Post",
		"The Guardian",
		"Financial Times",
		"The Wall Street Journal",
		"Bloomberg",
		"NPR",
	}
}

// Engine deduplicates a batch of articles. It holds only immutable settings
// and is safe for concurrent use.
type Engine struct {
	cfg     Config
	premium map[string]struct{}
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the clock used for freshness scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates cfg and returns a ready Engine.
func NewEngine(cfg Config, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg.Grouping == "" {
		cfg.Grouping = GroupingGreedy
	}
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights()
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	premium := make(map[string]struct{}, len(cfg.PremiumSources))
	for _, s := range cfg.PremiumSources {
		premium[s] = struct{}{}
	}

	e := &Engine{
		cfg:     cfg,
		premium: premium,
		now:     time.Now,
		log:     log.With().Str("component", "dedup").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.SimilarityThreshold < -1 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold %.3f outside [-1, 1]", ErrInvalidConfig, cfg.SimilarityThreshold)
	}
	switch cfg.Grouping {
	case GroupingGreedy, GroupingComponents:
	default:
		return fmt.Errorf("%w: unknown grouping %q", ErrInvalidConfig, cfg.Grouping)
	}
	if cfg.Weights.CharsPerPoint <= 0 {
		return fmt.Errorf("%w: chars per point must be positive", ErrInvalidConfig)
	}
	return nil
}

// Config returns the engine's settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// ComputeSimilarityMatrix returns the cosine similarity matrix of embeddings.
func (e *Engine) ComputeSimilarityMatrix(embeddings [][]float64) ([][]float64, error) {
	return similarity.Matrix(embeddings)
}

// FindDuplicateGroups walks the matrix in index order and, for each unvisited
// i, claims every unvisited j with sim[i][j] > threshold. Groups are seeded
// greedily, so A~B and B~C with A≁C yields {A,B} and leaves C alone.
func (e *Engine) FindDuplicateGroups(sim [][]float64, threshold float64) [][]int {
	n := len(sim)
	visited := make([]bool, n)
	groups := [][]int{}

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		group := []int{i}
		for j := 0; j < n; j++ {
			if j == i || visited[j] {
				continue
			}
			if sim[i][j] > threshold {
				group = append(group, j)
			}
		}
		if len(group) < 2 {
			continue
		}
		for _, idx := range group {
			visited[idx] = true
		}
		groups = append(groups, group)
	}
	return groups
}

// FindDuplicateComponents groups articles by connected components of the
// above-threshold graph, so duplicate chains collapse fully. Members are
// listed in ascending index order.
func (e *Engine) FindDuplicateComponents(sim [][]float64, threshold float64) [][]int {
	n := len(sim)
	visited := make([]bool, n)
	groups := [][]int{}

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		component := []int{i}
		queue := []int{i}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for j := 0; j < n; j++ {
				if visited[j] || j == cur {
					continue
				}
				if sim[cur][j] > threshold {
					visited[j] = true
					component = append(component, j)
					queue = append(queue, j)
				}
			}
		}
		if len(component) >= 2 {
			sort.Ints(component)
			groups = append(groups, component)
		}
	}
	return groups
}

// SelectBestArticle returns the index (into articles) of the group member
// with the highest quality score. Ties go to the earliest group member.
func (e *Engine) SelectBestArticle(articles []core.Article, group []int) int {
	best := -1
	bestScore := 0.0
	now := e.now()
	for _, idx := range group {
		score := e.qualityScore(articles[idx], now)
		if best == -1 || score > bestScore {
			best = idx
			bestScore = score
		}
	}
	return best
}

func (e *Engine) qualityScore(a core.Article, now time.Time) float64 {
	w := e.cfg.Weights

	textPoints := float64(len([]rune(a.RawText))) / w.CharsPerPoint
	if textPoints > w.MaxTextPoints {
		textPoints = w.MaxTextPoints
	}
	score := textPoints

	if a.ImageURL != "" {
		score += w.ImagePoints
	}
	if _, ok := e.premium[a.SourceName]; ok {
		score += w.PremiumPoints
	}
	if !a.PublishedAt.IsZero() {
		days := int(now.Sub(a.PublishedAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		if fresh := w.FreshnessDays - float64(days); fresh > 0 {
			score += fresh
		}
	}
	return score
}

// Deduplicate collapses near-duplicates and returns the survivors sorted by
// viral score (descending, stable on batch order) along with the removed
// articles. Inputs are not modified.
func (e *Engine) Deduplicate(articles []core.Article, embeddings [][]float64) ([]core.Article, []core.Article, error) {
	if len(articles) != len(embeddings) {
		return nil, nil, fmt.Errorf("%d articles, %d embeddings: %w", len(articles), len(embeddings), ErrLengthMismatch)
	}
	if len(articles) == 0 {
		return []core.Article{}, []core.Article{}, nil
	}

	sim, err := e.ComputeSimilarityMatrix(embeddings)
	if err != nil {
		return nil, nil, fmt.Errorf("compute similarity matrix: %w", err)
	}

	var groups [][]int
	if e.cfg.Grouping == GroupingComponents {
		groups = e.FindDuplicateComponents(sim, e.cfg.SimilarityThreshold)
	} else {
		groups = e.FindDuplicateGroups(sim, e.cfg.SimilarityThreshold)
	}

	survivorOf := make(map[int]core.Article, len(groups))
	grouped := make(map[int]bool)
	var removed []core.Article

	for _, group := range groups {
		bestIdx := e.SelectBestArticle(articles, group)

		sources := make([]string, 0, len(group))
		for _, idx := range group {
			grouped[idx] = true
			sources = append(sources, articles[idx].Source())
		}
		covered := core.SortedSet(sources)

		best := articles[bestIdx]
		best.CoveredBySources = covered
		best.ViralScore = len(covered)
		if best.ViralScore < 1 {
			best.ViralScore = 1
		}
		best.DuplicateCount = len(group)
		survivorOf[bestIdx] = best

		for _, idx := range group {
			if idx != bestIdx {
				removed = append(removed, articles[idx])
			}
		}
	}

	unique := make([]core.Article, 0, len(articles)-len(removed))
	for i, a := range articles {
		if best, ok := survivorOf[i]; ok {
			unique = append(unique, best)
			continue
		}
		if grouped[i] {
			continue
		}
		a.ViralScore = 1
		a.CoveredBySources = core.SortedSet([]string{a.Source()})
		a.DuplicateCount = 1
		unique = append(unique, a)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].ViralScore > unique[j].ViralScore
	})

	if removed == nil {
		removed = []core.Article{}
	}

	e.log.Info().
		Int("articles", len(articles)).
		Int("groups", len(groups)).
		Int("removed", len(removed)).
		Int("unique", len(unique)).
		Msg("deduplication complete")

	return unique, removed, nil
}
