package ingest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var contentSelectors = []string{"article", "main", ".post-content", ".entry-content", ".article-body"}

const blockElements = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre"

// PlainText flattens an HTML fragment or page into paragraphs of text.
// Navigation and other page chrome are dropped before extraction.
func PlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, .ad, .advertisement, .cookie-banner").Remove()

	root := doc.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			root = s
			break
		}
	}

	var paragraphs []string
	root.Find(blockElements).Each(func(_ int, item *goquery.Selection) {
		if text := collapseSpace(item.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return collapseSpace(root.Text()), nil
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
