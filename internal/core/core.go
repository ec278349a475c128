package core

import (
	"sort"
	"time"
)

// NoiseLabel marks an article that belongs to no topic group.
const NoiseLabel = -1

// Article is a single news item as it flows through dedup and clustering.
type Article struct {
	ID           string    `json:"id"`            // Unique identifier within a batch
	Title        string    `json:"title"`         // Headline
	URL          string    `json:"url"`           // Canonical link
	SourceName   string    `json:"source_name"`   // Publisher name (e.g. "Reuters")
	SourceDomain string    `json:"source_domain"` // Publisher domain, fallback identity
	RawText      string    `json:"raw_text"`      // Full body text
	ImageURL     string    `json:"image_url"`     // Lead image, empty if none
	PublishedAt  time.Time `json:"published_at"`  // Zero when missing or unparseable
	Embedding    []float64 `json:"embedding,omitempty"`

	// Derived during deduplication
	ViralScore       int      `json:"viral_score,omitempty"`        // Distinct sources covering the story
	CoveredBySources []string `json:"covered_by_sources,omitempty"` // Sorted distinct source identities
	DuplicateCount   int      `json:"duplicate_count,omitempty"`    // Articles collapsed into this one
}

// Source returns the article's source identity: SourceName, else SourceDomain, else "".
func (a Article) Source() string {
	if a.SourceName != "" {
		return a.SourceName
	}
	return a.SourceDomain
}

// EffectiveViralScore treats an absent score as 1.
func (a Article) EffectiveViralScore() int {
	if a.ViralScore <= 0 {
		return 1
	}
	return a.ViralScore
}

// Sources returns the set of sources this article represents. Deduplicated
// articles report CoveredBySources; raw ones report their own source.
func (a Article) Sources() []string {
	if len(a.CoveredBySources) > 0 {
		return a.CoveredBySources
	}
	if s := a.Source(); s != "" {
		return []string{s}
	}
	return nil
}

// TopicGroup is a cluster of articles about the same story, ready for synthesis.
type TopicGroup struct {
	ClusterID          int       `json:"cluster_id"`
	Articles           []Article `json:"articles"`
	Size               int       `json:"size"`
	TotalViralScore    int       `json:"total_viral_score"`
	AllSources         []string  `json:"all_sources"`
	UniqueSourcesCount int       `json:"unique_sources_count"`
	RepresentativeID   string    `json:"representative_id,omitempty"`
	Coherence          float64   `json:"coherence,omitempty"`
}

// SortedSet returns the distinct non-empty values of in, sorted.
func SortedSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
