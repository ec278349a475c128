package quality

import (
	"math"
	"testing"
)

func TestEvaluateWellSeparatedClusters(t *testing.T) {
	embeddings := [][]float64{
		{1, 0, 0}, {0.99, 0.05, 0}, {0.98, 0, 0.05},
		{0, 1, 0}, {0.05, 0.99, 0}, {0, 0.98, 0.05},
		{0, 0, 1},
	}
	labels := []int{0, 0, 0, 1, 1, 1, -1}

	metrics := NewClusterCoherenceEvaluator().EvaluateClusterCoherence(embeddings, labels)

	if metrics.NumClusters != 2 {
		t.Errorf("Expected 2 clusters, got %d", metrics.NumClusters)
	}
	if metrics.NumNoise != 1 {
		t.Errorf("Expected 1 noise point, got %d", metrics.NumNoise)
	}
	if metrics.NumArticles != 6 {
		t.Errorf("Expected 6 clustered articles, got %d", metrics.NumArticles)
	}
	if metrics.AvgIntraClusterSimilarity < 0.9 {
		t.Errorf("Expected high cohesion, got %.3f", metrics.AvgIntraClusterSimilarity)
	}
	if metrics.AvgSilhouette < 0.8 {
		t.Errorf("Expected high silhouette, got %.3f", metrics.AvgSilhouette)
	}
	if metrics.CoherenceGrade != "A - EXCELLENT" {
		t.Errorf("Expected grade A, got %q", metrics.CoherenceGrade)
	}
	if !metrics.Passed {
		t.Errorf("Expected evaluation to pass, issues: %v", metrics.Issues)
	}
}

func TestEvaluateFlagsLooseCluster(t *testing.T) {
	embeddings := [][]float64{{1, 0}, {0, 1}, {-1, 0}}
	labels := []int{0, 0, 0}

	metrics := NewClusterCoherenceEvaluator().EvaluateClusterCoherence(embeddings, labels)
	if metrics.Passed {
		t.Error("Expected loose cluster to fail")
	}
	if len(metrics.Issues) == 0 {
		t.Error("Expected a cohesion issue")
	}
	if math.IsNaN(metrics.AvgSilhouette) {
		t.Error("Silhouette is NaN")
	}
}

func TestEvaluateAllNoise(t *testing.T) {
	metrics := NewClusterCoherenceEvaluator().EvaluateClusterCoherence([][]float64{{1}, {2}}, []int{-1, -1})
	if metrics.NumClusters != 0 {
		t.Errorf("Expected 0 clusters, got %d", metrics.NumClusters)
	}
	if metrics.CoherenceGrade != "N/A" {
		t.Errorf("Expected N/A grade, got %q", metrics.CoherenceGrade)
	}
	if len(metrics.Issues) != 1 {
		t.Errorf("Expected one noise-ratio issue, got %v", metrics.Issues)
	}
}
