package clustering

import (
	"errors"
	"fmt"
	"sort"

	"topicwire/internal/core"
	"topicwire/internal/similarity"
)

// ErrLengthMismatch is returned when articles and labels differ in count.
var ErrLengthMismatch = errors.New("articles and labels length mismatch")

// GroupByClusters builds one topic group per non-noise label, ordered by
// total viral score then size, both descending. Articles keep batch order
// within a group and ties keep the order labels were first seen.
func GroupByClusters(articles []core.Article, labels []int) ([]core.TopicGroup, error) {
	if len(articles) != len(labels) {
		return nil, fmt.Errorf("%d articles, %d labels: %w", len(articles), len(labels), ErrLengthMismatch)
	}

	index := make(map[int]int)
	groups := []core.TopicGroup{}
	sources := [][]string{}

	for i, label := range labels {
		if label == core.NoiseLabel {
			continue
		}
		gi, ok := index[label]
		if !ok {
			gi = len(groups)
			index[label] = gi
			groups = append(groups, core.TopicGroup{ClusterID: label})
			sources = append(sources, nil)
		}

		a := articles[i]
		groups[gi].Articles = append(groups[gi].Articles, a)
		groups[gi].TotalViralScore += a.EffectiveViralScore()
		sources[gi] = append(sources[gi], a.Sources()...)
	}

	for i := range groups {
		groups[i].Size = len(groups[i].Articles)
		groups[i].AllSources = core.SortedSet(sources[i])
		groups[i].UniqueSourcesCount = len(groups[i].AllSources)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].TotalViralScore != groups[j].TotalViralScore {
			return groups[i].TotalViralScore > groups[j].TotalViralScore
		}
		return groups[i].Size > groups[j].Size
	})
	return groups, nil
}

// FindClusterRepresentative returns the index of the embedding closest to
// the centroid, the first one on ties, or -1 if there are none.
func FindClusterRepresentative(embeddings [][]float64) int {
	if len(embeddings) == 0 {
		return -1
	}
	centroid := similarity.Centroid(embeddings)

	best := 0
	bestDist := similarity.Euclidean(embeddings[0], centroid)
	for i := 1; i < len(embeddings); i++ {
		if d := similarity.Euclidean(embeddings[i], centroid); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// AnnotateGroups fills in each group's representative article and coherence
// from the articles' embeddings. Groups whose articles lack embeddings are
// left unchanged.
func AnnotateGroups(groups []core.TopicGroup) {
	for i := range groups {
		var vectors [][]float64
		for _, a := range groups[i].Articles {
			if len(a.Embedding) == 0 {
				vectors = nil
				break
			}
			vectors = append(vectors, a.Embedding)
		}
		if len(vectors) == 0 || similarity.CheckDimensions(vectors) != nil {
			continue
		}
		if rep := FindClusterRepresentative(vectors); rep >= 0 {
			groups[i].RepresentativeID = groups[i].Articles[rep].ID
		}
		groups[i].Coherence = round3(similarity.MeanPairwise(vectors))
	}
}
