package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"topicwire/internal/config"
	"topicwire/internal/ingest"
	"topicwire/internal/logger"
	"topicwire/internal/pipeline"
	"topicwire/internal/render"
)

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [batch.json...]",
		Short: "Deduplicate, cluster and group one or more article batches",
		Long: `Run the full pipeline on each batch file: resolve embeddings, collapse
duplicate coverage, cluster the survivors and rank the resulting topic groups.

Batches are processed concurrently up to pipeline.max_parallel_batches. A
markdown report per batch is written to --output, topic groups are written as
JSON to --json (a file, or a directory for one file per run), and --publish
sends them to the configured Kafka topic.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().StringP("output", "o", "", "Directory for markdown reports (default app.output_dir)")
	cmd.Flags().String("json", "", "Write topic groups as JSON to this file or directory")
	cmd.Flags().Bool("publish", false, "Publish topic groups to Kafka")
	cmd.Flags().Bool("no-report", false, "Skip the markdown report")
	cmd.Flags().Bool("strict", false, "Fail the run when clustering quality checks fail")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Get()
	log := logger.Get()

	outputDir, _ := cmd.Flags().GetString("output")
	jsonPath, _ := cmd.Flags().GetString("json")
	publish, _ := cmd.Flags().GetBool("publish")
	noReport, _ := cmd.Flags().GetBool("no-report")
	strict, _ := cmd.Flags().GetBool("strict")
	if outputDir == "" {
		outputDir = cfg.App.OutputDir
	}

	loader := ingest.NewLoader(log)
	batches := make([]*ingest.Batch, 0, len(args))
	for _, path := range args {
		b, err := loader.LoadFile(path)
		if err != nil {
			return err
		}
		batches = append(batches, b)
	}

	a, err := newApp(ctx, cfg, log, wireOptions{jsonPath: jsonPath, publish: publish, blockGates: strict})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close clients")
		}
	}()

	results, err := a.pipeline.RunBatches(ctx, batches)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range results {
		report := buildReport(res)
		fmt.Fprintln(out, render.TerminalSummary(report, 80))

		if noReport {
			continue
		}
		path, err := render.WriteReportToFile(render.RenderMarkdown(report), outputDir, render.ReportFilename(report))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", path)
	}
	return nil
}

// buildReport flattens a pipeline result into what the renderers need.
func buildReport(res *pipeline.Result) render.Report {
	r := render.Report{
		RunID:             res.RunID,
		BatchID:           res.BatchID,
		CreatedAt:         res.Stats.StartTime,
		TotalArticles:     res.Stats.TotalArticles,
		DuplicatesRemoved: res.Stats.DuplicatesRemoved,
		Groups:            res.Groups,
		Noise:             res.Noise,
	}
	if res.Quality != nil && res.Quality.NumClusters > 0 {
		r.QualityGrade = res.Quality.CoherenceGrade
	}
	return r
}
