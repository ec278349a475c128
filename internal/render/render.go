package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"topicwire/internal/core"
)

// Report is everything needed to render one run.
type Report struct {
	RunID     string
	BatchID   string
	CreatedAt time.Time

	TotalArticles     int
	DuplicatesRemoved int
	Groups            []core.TopicGroup
	Noise             []core.Article

	QualityGrade string // Empty when not evaluated
}

// RenderMarkdown builds the hand-off document for the synthesis stage: one
// section per topic group in rank order, then the unclustered articles.
func RenderMarkdown(r Report) string {
	var b strings.Builder

	dateStr := r.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")
	b.WriteString(fmt.Sprintf("# Topic Groups - %s\n\n", dateStr))
	b.WriteString(fmt.Sprintf("*Run %s, batch %s. %d articles in, %d duplicates removed, %d topic groups.*\n\n",
		r.RunID, r.BatchID, r.TotalArticles, r.DuplicatesRemoved, len(r.Groups)))

	if len(r.Groups) == 0 {
		b.WriteString("No topic groups found in this batch.\n\n")
	}

	for i, g := range r.Groups {
		b.WriteString(fmt.Sprintf("## %d. %s\n\n", i+1, headline(g)))
		b.WriteString(fmt.Sprintf("**Viral score:** %d | **Articles:** %d | **Coherence:** %.3f\n\n",
			g.TotalViralScore, g.Size, g.Coherence))
		b.WriteString(fmt.Sprintf("**Sources (%d):** %s\n\n", g.UniqueSourcesCount, strings.Join(g.AllSources, ", ")))

		for _, a := range g.Articles {
			b.WriteString("- ")
			b.WriteString(articleLine(a))
			if a.ID == g.RepresentativeID {
				b.WriteString(" *(representative)*")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n---\n\n")
	}

	if len(r.Noise) > 0 {
		b.WriteString("## Unclustered\n\n")
		for _, a := range r.Noise {
			b.WriteString("- ")
			b.WriteString(articleLine(a))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// headline is the representative's title, else the first titled article.
func headline(g core.TopicGroup) string {
	for _, a := range g.Articles {
		if a.ID == g.RepresentativeID && a.Title != "" {
			return a.Title
		}
	}
	for _, a := range g.Articles {
		if a.Title != "" {
			return a.Title
		}
	}
	return fmt.Sprintf("Topic %d", g.ClusterID)
}

func articleLine(a core.Article) string {
	title := a.Title
	if title == "" {
		title = a.ID
	}
	link := title
	if a.URL != "" {
		link = fmt.Sprintf("[%s](%s)", title, a.URL)
	}
	return fmt.Sprintf("%s (%s, covered by %d)", link, a.Source(), a.EffectiveViralScore())
}

// WriteReportToFile writes the provided content to a file in the specified directory
func WriteReportToFile(content, outputDir, filename string) (string, error) {
	if outputDir == "" {
		outputDir = "out"
	}

	err := os.MkdirAll(outputDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	filePath := filepath.Join(outputDir, filename)

	err = os.WriteFile(filePath, []byte(content), 0644)
	if err != nil {
		return "", fmt.Errorf("failed to write report file %s: %w", filePath, err)
	}

	return filePath, nil
}

// ReportFilename names the markdown file for a run.
func ReportFilename(r Report) string {
	return fmt.Sprintf("topics_%s_%s.md", r.CreatedAt.UTC().Format("2006-01-02"), shortID(r.RunID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
