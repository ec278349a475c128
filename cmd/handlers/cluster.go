package handlers

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"topicwire/internal/clustering"
	"topicwire/internal/config"
	"topicwire/internal/ingest"
	"topicwire/internal/logger"
)

type clusterOutput struct {
	BatchID string           `json:"batch_id"`
	IDs     []string         `json:"ids"`
	Labels  []int            `json:"labels"`
	Stats   clustering.Stats `json:"stats"`
}

// NewClusterCmd creates the cluster command
func NewClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster [batch.json]",
		Short: "Cluster a batch without deduplication and print labels and stats as JSON",
		Long: `Cluster every article in the batch with HDBSCAN, skipping deduplication.
Useful for tuning clustering parameters against a known batch.`,
		Args: cobra.ExactArgs(1),
		RunE: runCluster,
	}

	cmd.Flags().Int("min-cluster-size", 0, "Override clustering.min_cluster_size")
	cmd.Flags().Int("min-samples", 0, "Override clustering.min_samples")
	cmd.Flags().Bool("no-validate", false, "Skip coherence validation and splitting")

	return cmd
}

func runCluster(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Get()
	log := logger.Get()

	var opts []clustering.Option
	if cmd.Flags().Changed("min-cluster-size") {
		n, _ := cmd.Flags().GetInt("min-cluster-size")
		opts = append(opts, clustering.WithMinClusterSize(n))
	}
	if cmd.Flags().Changed("min-samples") {
		n, _ := cmd.Flags().GetInt("min-samples")
		opts = append(opts, clustering.WithMinSamples(n))
	}
	if noValidate, _ := cmd.Flags().GetBool("no-validate"); noValidate {
		opts = append(opts, clustering.WithoutCoherenceValidation())
	}

	batch, err := ingest.NewLoader(log).LoadFile(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log, wireOptions{noPublish: true})
	if err != nil {
		return err
	}
	defer a.Close()

	articles, _, err := a.pipeline.ResolveEmbeddings(ctx, batch.Articles)
	if err != nil {
		return err
	}
	ids := make([]string, len(articles))
	vectors := make([][]float64, len(articles))
	for i, art := range articles {
		ids[i] = art.ID
		vectors[i] = art.Embedding
	}

	labels, stats, err := a.clusterer.ClusterArticles(vectors, opts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(clusterOutput{BatchID: batch.ID, IDs: ids, Labels: labels, Stats: stats})
}
