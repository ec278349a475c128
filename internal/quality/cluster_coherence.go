// Package quality scores a finished clustering run so operators can tell a
// tight set of topics from a noisy one.
package quality

import (
	"fmt"
	"math"
	"sort"

	"topicwire/internal/core"
	"topicwire/internal/similarity"
)

// ClusterCoherenceEvaluator evaluates the quality of topic clustering
type ClusterCoherenceEvaluator struct {
	thresholds QualityThresholds
}

// NewClusterCoherenceEvaluator creates a new cluster coherence evaluator
func NewClusterCoherenceEvaluator() *ClusterCoherenceEvaluator {
	return &ClusterCoherenceEvaluator{
		thresholds: DefaultThresholds(),
	}
}

// NewClusterCoherenceEvaluatorWithThresholds creates an evaluator with custom thresholds
func NewClusterCoherenceEvaluatorWithThresholds(thresholds QualityThresholds) *ClusterCoherenceEvaluator {
	return &ClusterCoherenceEvaluator{
		thresholds: thresholds,
	}
}

// Thresholds returns the evaluator's thresholds.
func (e *ClusterCoherenceEvaluator) Thresholds() QualityThresholds {
	return e.thresholds
}

// EvaluateClusterCoherence scores the label assignment over embeddings.
// Noise points are excluded from every per-cluster metric.
func (e *ClusterCoherenceEvaluator) EvaluateClusterCoherence(embeddings [][]float64, labels []int) *ClusterCoherenceMetrics {
	metrics := &ClusterCoherenceMetrics{
		ClusterSilhouettes:       make(map[int]float64),
		IntraClusterSimilarities: make(map[int]float64),
		Issues:                   []string{},
	}

	members := make(map[int][]int)
	for i, l := range labels {
		if l == core.NoiseLabel {
			metrics.NumNoise++
			continue
		}
		members[l] = append(members[l], i)
		metrics.NumArticles++
	}

	clusterIDs := make([]int, 0, len(members))
	for id := range members {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)
	metrics.NumClusters = len(clusterIDs)

	if len(labels) > 0 {
		noiseRatio := float64(metrics.NumNoise) / float64(len(labels))
		if noiseRatio > e.thresholds.MaxNoiseRatio {
			metrics.Issues = append(metrics.Issues,
				fmt.Sprintf("High noise ratio: %.2f (max: %.2f)", noiseRatio, e.thresholds.MaxNoiseRatio))
		}
	}

	if metrics.NumClusters == 0 {
		metrics.CoherenceGrade = GradeClusterCoherence(metrics, e.thresholds)
		return metrics
	}
	metrics.AvgClusterSize = float64(metrics.NumArticles) / float64(metrics.NumClusters)

	centroids := make(map[int][]float64, len(clusterIDs))
	for _, id := range clusterIDs {
		vectors := gather(embeddings, members[id])
		centroids[id] = similarity.Centroid(vectors)

		intra := similarity.MeanPairwise(vectors)
		metrics.IntraClusterSimilarities[id] = intra
		metrics.AvgIntraClusterSimilarity += intra
		if intra < e.thresholds.MinIntraClusterSim {
			metrics.Issues = append(metrics.Issues,
				fmt.Sprintf("Cluster %d has low cohesion: %.2f (min: %.2f)", id, intra, e.thresholds.MinIntraClusterSim))
		}

		silhouette := e.clusterSilhouette(embeddings, members, id)
		metrics.ClusterSilhouettes[id] = silhouette
		metrics.AvgSilhouette += silhouette
		if silhouette < e.thresholds.MinSilhouetteScore {
			metrics.Issues = append(metrics.Issues,
				fmt.Sprintf("Cluster %d has low silhouette score: %.2f (min: %.2f)", id, silhouette, e.thresholds.MinSilhouetteScore))
		}
	}

	metrics.AvgIntraClusterSimilarity /= float64(metrics.NumClusters)
	metrics.AvgSilhouette /= float64(metrics.NumClusters)
	metrics.AvgInterClusterDistance = interClusterDistance(clusterIDs, centroids)

	if metrics.NumClusters > 1 && metrics.AvgInterClusterDistance < e.thresholds.MinInterClusterDist {
		metrics.Issues = append(metrics.Issues,
			fmt.Sprintf("Low cluster separation: %.2f (min: %.2f)", metrics.AvgInterClusterDistance, e.thresholds.MinInterClusterDist))
	}

	metrics.CoherenceGrade = GradeClusterCoherence(metrics, e.thresholds)
	metrics.Passed = metrics.AvgSilhouette >= e.thresholds.MinSilhouetteScore &&
		metrics.AvgIntraClusterSimilarity >= e.thresholds.MinIntraClusterSim &&
		len(metrics.Issues) == 0

	return metrics
}

// clusterSilhouette averages the per-point silhouette over one cluster, using
// cosine distance. A lone cluster has nothing to be separated from and scores 0.
func (e *ClusterCoherenceEvaluator) clusterSilhouette(embeddings [][]float64, members map[int][]int, id int) float64 {
	if len(members) < 2 {
		return 0
	}

	var total float64
	for _, i := range members[id] {
		a := meanDistance(embeddings, i, members[id])
		b := math.MaxFloat64
		for other, idx := range members {
			if other == id {
				continue
			}
			if d := meanDistance(embeddings, i, idx); d < b {
				b = d
			}
		}

		switch {
		case a < b:
			total += 1 - a/b
		case a > b:
			total += b/a - 1
		}
	}
	return total / float64(len(members[id]))
}

func meanDistance(embeddings [][]float64, i int, to []int) float64 {
	var sum float64
	var count int
	for _, j := range to {
		if j == i {
			continue
		}
		sum += 1 - similarity.Cosine(embeddings[i], embeddings[j])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func interClusterDistance(ids []int, centroids map[int][]float64) float64 {
	if len(ids) <= 1 {
		return 1.0
	}
	var total float64
	var count int
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			total += 1 - similarity.Cosine(centroids[ids[i]], centroids[ids[j]])
			count++
		}
	}
	return total / float64(count)
}

func gather(embeddings [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = embeddings[j]
	}
	return out
}
