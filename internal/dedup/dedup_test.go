package dedup

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"topicwire/internal/core"
)

var fixedNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"threshold too high", Config{SimilarityThreshold: 1.5}},
		{"threshold too low", Config{SimilarityThreshold: -2}},
		{"unknown grouping", Config{SimilarityThreshold: 0.85, Grouping: "transitive"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg, zerolog.Nop())
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDeduplicateExactDuplicates(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	articles := []core.Article{
		{ID: "a", SourceName: "Reuters"},
		{ID: "b", SourceName: "BBC"},
		{ID: "c", SourceName: "CNN"},
		{ID: "d", SourceName: "Wired"},
		{ID: "e", SourceName: "Verge"},
	}
	embeddings := [][]float64{
		{1, 0, 0},
		{1, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}

	unique, removed, err := e.Deduplicate(articles, embeddings)
	if err != nil {
		t.Fatalf("Deduplicate() error = %v", err)
	}

	if len(unique) != 3 {
		t.Fatalf("Expected 3 unique articles, got %d", len(unique))
	}
	if len(removed) != 2 {
		t.Fatalf("Expected 2 removed articles, got %d", len(removed))
	}

	wantScores := []int{3, 1, 1}
	for i, a := range unique {
		if a.ViralScore != wantScores[i] {
			t.Errorf("unique[%d].ViralScore = %d, want %d", i, a.ViralScore, wantScores[i])
		}
	}

	top := unique[0]
	// Reuters is premium and wins the group
	if top.ID != "a" {
		t.Errorf("Expected survivor 'a', got %q", top.ID)
	}
	if !reflect.DeepEqual(top.CoveredBySources, []string{"BBC", "CNN", "Reuters"}) {
		t.Errorf("Unexpected covered sources: %v", top.CoveredBySources)
	}
	if top.DuplicateCount != 3 {
		t.Errorf("Expected duplicate count 3, got %d", top.DuplicateCount)
	}
	if unique[1].ID != "d" || unique[2].ID != "e" {
		t.Errorf("Expected singletons in batch order, got %q, %q", unique[1].ID, unique[2].ID)
	}
}

func TestDeduplicateConservation(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	articles := make([]core.Article, 0, 8)
	embeddings := [][]float64{
		{1, 0.01, 0}, {1, 0, 0}, {0, 1, 0}, {0, 1, 0.02},
		{0, 0, 1}, {0.5, 0.5, 0}, {1, 0.02, 0}, {0, 0.01, 1},
	}
	for i := range embeddings {
		articles = append(articles, core.Article{ID: string(rune('a' + i)), SourceDomain: "s" + string(rune('a'+i)) + ".com"})
	}

	unique, removed, err := e.Deduplicate(articles, embeddings)
	if err != nil {
		t.Fatalf("Deduplicate() error = %v", err)
	}

	if len(unique)+len(removed) != len(articles) {
		t.Errorf("unique(%d) + removed(%d) != input(%d)", len(unique), len(removed), len(articles))
	}

	seen := map[string]bool{}
	for _, a := range append(append([]core.Article{}, unique...), removed...) {
		if seen[a.ID] {
			t.Errorf("Article %q appears twice in output", a.ID)
		}
		seen[a.ID] = true
	}

	for i := 1; i < len(unique); i++ {
		if unique[i-1].ViralScore < unique[i].ViralScore {
			t.Errorf("unique not sorted by viral score at %d", i)
		}
	}
	for _, a := range unique {
		if a.ViralScore < 1 {
			t.Errorf("Article %q has viral score %d < 1", a.ID, a.ViralScore)
		}
	}
}

func TestDeduplicateDistinctInputs(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	articles := []core.Article{{ID: "1", SourceName: "A"}, {ID: "2"}, {ID: "3", SourceName: "C"}}
	embeddings := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	unique, removed, err := e.Deduplicate(articles, embeddings)
	if err != nil {
		t.Fatalf("Deduplicate() error = %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("Expected nothing removed, got %d", len(removed))
	}
	for i, a := range unique {
		if a.ID != articles[i].ID {
			t.Errorf("unique[%d] = %q, want %q", i, a.ID, articles[i].ID)
		}
		if a.ViralScore != 1 || a.DuplicateCount != 1 {
			t.Errorf("Expected viral 1 / dup 1, got %d / %d", a.ViralScore, a.DuplicateCount)
		}
	}
	if len(unique[1].CoveredBySources) != 0 {
		t.Errorf("Expected empty sources for sourceless article, got %v", unique[1].CoveredBySources)
	}
	if articles[0].ViralScore != 0 {
		t.Error("Input article was mutated")
	}
}

func TestDeduplicateEmptyAndMismatch(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	unique, removed, err := e.Deduplicate(nil, nil)
	if err != nil {
		t.Fatalf("Deduplicate(nil) error = %v", err)
	}
	if len(unique) != 0 || len(removed) != 0 {
		t.Errorf("Expected empty results, got %d/%d", len(unique), len(removed))
	}

	_, _, err = e.Deduplicate([]core.Article{{ID: "x"}}, nil)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
}

func TestFindDuplicateGroupsIsGreedy(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	// 0~1, 1~2, 0≁2
	sim := [][]float64{
		{1, 0.9, 0.5},
		{0.9, 1, 0.9},
		{0.5, 0.9, 1},
	}

	groups := e.FindDuplicateGroups(sim, 0.85)
	want := [][]int{{0, 1}}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("FindDuplicateGroups() = %v, want %v", groups, want)
	}

	components := e.FindDuplicateComponents(sim, 0.85)
	wantComponents := [][]int{{0, 1, 2}}
	if !reflect.DeepEqual(components, wantComponents) {
		t.Errorf("FindDuplicateComponents() = %v, want %v", components, wantComponents)
	}
}

func TestFindDuplicateGroupsThresholdIsStrict(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	sim := [][]float64{{1, 0.85}, {0.85, 1}}
	if groups := e.FindDuplicateGroups(sim, 0.85); len(groups) != 0 {
		t.Errorf("Expected no groups at exactly the threshold, got %v", groups)
	}
}

func TestComponentsGroupingMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grouping = GroupingComponents
	e := newTestEngine(t, cfg)

	// chain: a~b (cos≈0.95), b~c (cos≈0.95), a·c ≈ 0.81
	articles := []core.Article{{ID: "a", SourceName: "A"}, {ID: "b", SourceName: "B"}, {ID: "c", SourceName: "C"}}
	embeddings := [][]float64{{1, 0}, {0.95, 0.3122499}, {0.805, 0.5932}}

	unique, removed, err := e.Deduplicate(articles, embeddings)
	if err != nil {
		t.Fatalf("Deduplicate() error = %v", err)
	}
	if len(unique) != 1 || len(removed) != 2 {
		t.Fatalf("Expected chain to collapse to 1 survivor, got %d unique, %d removed", len(unique), len(removed))
	}
	if unique[0].ViralScore != 3 {
		t.Errorf("Expected viral score 3, got %d", unique[0].ViralScore)
	}
}

func TestSelectBestArticle(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	tests := []struct {
		name     string
		articles []core.Article
		want     int
	}{
		{
			name:     "tie goes to first",
			articles: []core.Article{{ID: "a"}, {ID: "b"}},
			want:     0,
		},
		{
			name:     "image beats nothing",
			articles: []core.Article{{ID: "a"}, {ID: "b", ImageURL: "https://img"}},
			want:     1,
		},
		{
			name: "premium beats image",
			articles: []core.Article{
				{ID: "a", ImageURL: "https://img"},
				{ID: "b", SourceName: "Reuters"},
			},
			want: 1,
		},
		{
			name: "text length capped at 40",
			articles: []core.Article{
				{ID: "a", RawText: strings.Repeat("x", 100000)},
				{ID: "b", SourceName: "Reuters", RawText: strings.Repeat("x", 11000)},
			},
			want: 1,
		},
		{
			name: "fresher wins",
			articles: []core.Article{
				{ID: "a", PublishedAt: fixedNow.Add(-9 * 24 * time.Hour)},
				{ID: "b", PublishedAt: fixedNow.Add(-2 * time.Hour)},
			},
			want: 1,
		},
		{
			name: "missing date scores no freshness",
			articles: []core.Article{
				{ID: "a"},
				{ID: "b", PublishedAt: fixedNow.Add(-30 * 24 * time.Hour)},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group := make([]int, len(tt.articles))
			for i := range group {
				group[i] = i
			}
			if got := e.SelectBestArticle(tt.articles, group); got != tt.want {
				t.Errorf("SelectBestArticle() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPremiumSourcesAreConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PremiumSources = []string{"Local Gazette"}
	e := newTestEngine(t, cfg)

	articles := []core.Article{{ID: "a", SourceName: "Reuters"}, {ID: "b", SourceName: "Local Gazette"}}
	if got := e.SelectBestArticle(articles, []int{0, 1}); got != 1 {
		t.Errorf("Expected configured premium source to win, got %d", got)
	}
}
