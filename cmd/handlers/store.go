package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"topicwire/internal/config"
	"topicwire/internal/embed"
	"topicwire/internal/vectorstore"
)

// NewStoreCmd creates the store command for inspecting persisted embeddings
func NewStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and maintain the embedding store",
		Long: `Work with the embeddings persisted between runs.

Examples:
  topicwire store stats
  topicwire store similar --limit 5 article-123
  topicwire store delete article-123 article-456`,
	}

	cmd.AddCommand(newStoreStatsCmd())
	cmd.AddCommand(newStoreSimilarCmd())
	cmd.AddCommand(newStoreDeleteCmd())
	return cmd
}

func newStoreStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number and size of stored embeddings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, config.Get())
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := store.GetStats(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func newStoreSimilarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar [article-id]",
		Short: "List stored articles whose embeddings are close to a stored article",
		Args:  cobra.ExactArgs(1),
		RunE:  runStoreSimilar,
	}

	cmd.Flags().String("model", "", "Embedding model key (default: the configured provider's)")
	cmd.Flags().Int("limit", 10, "Maximum number of results")
	cmd.Flags().Float64("threshold", 0.7, "Minimum cosine similarity")
	return cmd
}

func runStoreSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Get()

	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = embed.ModelName(cfg)
	}
	if model == "" {
		return fmt.Errorf("no embedding model configured, pass --model")
	}
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat64("threshold")

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	id := args[0]
	found, err := store.Get(ctx, model, []string{id})
	if err != nil {
		return err
	}
	vec, ok := found[id]
	if !ok {
		return fmt.Errorf("no %s embedding stored for %s", model, id)
	}

	results, err := store.Search(ctx, vectorstore.SearchQuery{
		Embedding:           vec,
		Limit:               limit,
		SimilarityThreshold: threshold,
		ExcludeIDs:          []string{id},
		Model:               model,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No similar articles found")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%.3f  %s\n", r.Similarity, r.ArticleID)
	}
	return nil
}

func newStoreDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [article-id...]",
		Short: "Remove stored embeddings so they are recomputed on the next run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, config.Get())
			if err != nil {
				return err
			}
			defer closeStore()

			for _, id := range args {
				if err := store.Delete(ctx, id); err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d embeddings\n", len(args))
			return nil
		},
	}
}
