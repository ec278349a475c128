package quality

// ClusterCoherenceMetrics contains quality metrics for one clustering run
type ClusterCoherenceMetrics struct {
	// Cluster count
	NumClusters    int     `json:"num_clusters"`
	NumArticles    int     `json:"num_articles"` // Clustered articles, noise excluded
	NumNoise       int     `json:"num_noise"`
	AvgClusterSize float64 `json:"avg_cluster_size"`

	// Silhouette scores (range: -1 to 1, higher is better)
	AvgSilhouette      float64         `json:"avg_silhouette"`
	ClusterSilhouettes map[int]float64 `json:"cluster_silhouettes"`

	// Cohesion metrics (higher is better)
	AvgIntraClusterSimilarity float64         `json:"avg_intra_cluster_similarity"`
	IntraClusterSimilarities  map[int]float64 `json:"intra_cluster_similarities"`

	// Separation metrics (0 to 2, higher is better)
	AvgInterClusterDistance float64 `json:"avg_inter_cluster_distance"` // Cosine distance between centroids

	// Quality assessment
	CoherenceGrade string   `json:"coherence_grade"` // A/B/C/D
	Issues         []string `json:"issues,omitempty"`
	Passed         bool     `json:"passed"`
}

// QualityThresholds defines minimum acceptable clustering quality
type QualityThresholds struct {
	MinSilhouetteScore  float64 `mapstructure:"min_silhouette_score"`   // Default: 0.3
	MinIntraClusterSim  float64 `mapstructure:"min_intra_cluster_sim"`  // Default: 0.5
	MinInterClusterDist float64 `mapstructure:"min_inter_cluster_dist"` // Default: 0.3
	MaxNoiseRatio       float64 `mapstructure:"max_noise_ratio"`        // Default: 0.6

	GradeASilhouette float64 `mapstructure:"grade_a_silhouette"`
	GradeBSilhouette float64 `mapstructure:"grade_b_silhouette"`
	GradeCSilhouette float64 `mapstructure:"grade_c_silhouette"`
}

// DefaultThresholds returns the standard quality thresholds
func DefaultThresholds() QualityThresholds {
	return QualityThresholds{
		MinSilhouetteScore:  0.3,
		MinIntraClusterSim:  0.5,
		MinInterClusterDist: 0.3,
		MaxNoiseRatio:       0.6,
		GradeASilhouette:    0.5,
		GradeBSilhouette:    0.4,
		GradeCSilhouette:    0.2,
	}
}

// GradeClusterCoherence assigns a letter grade based on coherence metrics
func GradeClusterCoherence(metrics *ClusterCoherenceMetrics, thresholds QualityThresholds) string {
	if metrics.NumClusters == 0 {
		return "N/A"
	}

	if metrics.AvgSilhouette >= thresholds.GradeASilhouette &&
		metrics.AvgIntraClusterSimilarity >= thresholds.MinIntraClusterSim+0.1 {
		return "A - EXCELLENT"
	}

	if metrics.AvgSilhouette >= thresholds.GradeBSilhouette &&
		metrics.AvgIntraClusterSimilarity >= thresholds.MinIntraClusterSim {
		return "B - GOOD"
	}

	if metrics.AvgSilhouette >= thresholds.GradeCSilhouette {
		return "C - FAIR"
	}

	return "D - POOR"
}
