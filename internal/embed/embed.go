// Package embed turns article text into vectors through an external
// embedding model, with optional Redis caching in front of it.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"topicwire/internal/core"
)

// DefaultMaxChars caps the text sent to the embedding model per article.
const DefaultMaxChars = 8000

// ErrCountMismatch is returned when a provider answers with the wrong number of vectors.
var ErrCountMismatch = errors.New("embedding count mismatch")

// Provider generates one embedding per input text, in input order.
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ArticleText builds the text embedded for an article: the title, a blank
// line, then the body, truncated to maxChars runes.
func ArticleText(a core.Article, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text := strings.TrimSpace(a.Title)
	if body := strings.TrimSpace(a.RawText); body != "" {
		if text != "" {
			text += "\n\n"
		}
		text += body
	}
	if r := []rune(text); len(r) > maxChars {
		text = string(r[:maxChars])
	}
	return text
}

// EmbedArticles embeds every article's text in batches of batchSize.
func EmbedArticles(ctx context.Context, p Provider, articles []core.Article, batchSize, maxChars int) ([][]float64, error) {
	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = ArticleText(a, maxChars)
	}
	return EmbedInBatches(ctx, p, texts, batchSize)
}

// EmbedInBatches splits texts into chunks of at most size and concatenates
// the results.
func EmbedInBatches(ctx context.Context, p Provider, texts []string, size int) ([][]float64, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%s: embed texts %d-%d: %w", p.Name(), start, end-1, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%s: got %d vectors for %d texts: %w", p.Name(), len(vectors), end-start, ErrCountMismatch)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
