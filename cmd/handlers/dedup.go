package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"topicwire/internal/config"
	"topicwire/internal/core"
	"topicwire/internal/ingest"
	"topicwire/internal/logger"
)

// dedupOutput is the --format json shape of the dedup command.
type dedupOutput struct {
	BatchID string         `json:"batch_id"`
	Unique  []dedupSummary `json:"unique"`
	Removed []string       `json:"removed"`
}

type dedupSummary struct {
	ID             string   `json:"id"`
	Title          string   `json:"title,omitempty"`
	Source         string   `json:"source"`
	ViralScore     int      `json:"viral_score"`
	CoveredSources []string `json:"covered_sources,omitempty"`
}

// NewDedupCmd creates the dedup command
func NewDedupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup [batch.json]",
		Short: "Collapse duplicate coverage in a batch and show viral scores",
		Args:  cobra.ExactArgs(1),
		RunE:  runDedup,
	}

	cmd.Flags().Float64("threshold", 0, "Override dedup.similarity_threshold")
	cmd.Flags().String("format", "text", "Output format: text or json")

	return cmd
}

func runDedup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := *config.Get()
	log := logger.Get()

	if cmd.Flags().Changed("threshold") {
		cfg.Dedup.SimilarityThreshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	format, _ := cmd.Flags().GetString("format")

	batch, err := ingest.NewLoader(log).LoadFile(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, &cfg, log, wireOptions{noPublish: true})
	if err != nil {
		return err
	}
	defer a.Close()

	articles, _, err := a.pipeline.ResolveEmbeddings(ctx, batch.Articles)
	if err != nil {
		return err
	}
	embeddings := make([][]float64, len(articles))
	for i, art := range articles {
		embeddings[i] = art.Embedding
	}

	unique, removed, err := a.dedup.Deduplicate(articles, embeddings)
	if err != nil {
		return err
	}

	result := dedupOutput{BatchID: batch.ID, Unique: make([]dedupSummary, 0, len(unique)), Removed: make([]string, 0, len(removed))}
	for _, u := range unique {
		result.Unique = append(result.Unique, summarize(u))
	}
	for _, r := range removed {
		result.Removed = append(result.Removed, r.ID)
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "%d articles, %d unique, %d duplicates removed\n\n", len(articles), len(unique), len(removed))
	for i, s := range result.Unique {
		title := s.Title
		if title == "" {
			title = s.ID
		}
		fmt.Fprintf(out, "%3d. [%d] %s (%s)\n", i+1, s.ViralScore, title, s.Source)
		if len(s.CoveredSources) > 1 {
			fmt.Fprintf(out, "     covered by: %s\n", strings.Join(s.CoveredSources, ", "))
		}
	}
	return nil
}

func summarize(a core.Article) dedupSummary {
	return dedupSummary{
		ID:             a.ID,
		Title:          a.Title,
		Source:         a.Source(),
		ViralScore:     a.EffectiveViralScore(),
		CoveredSources: a.CoveredBySources,
	}
}
