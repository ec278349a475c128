// Package ingest reads article batches from JSON, validates them against
// an embedded schema and normalizes them into core.Article values.
package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"topicwire/internal/core"
)

//go:embed batch.schema.json
var batchSchemaJSON string

// ErrDuplicateID is returned when two articles in a batch share an ID.
var ErrDuplicateID = errors.New("duplicate article id")

// Batch is a validated set of articles processed together.
type Batch struct {
	ID       string
	Articles []core.Article
}

type record struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	SourceName   string    `json:"source_name"`
	SourceDomain string    `json:"source_domain"`
	RawText      string    `json:"raw_text"`
	HTML         string    `json:"html"`
	ImageURL     *string   `json:"image_url"`
	PublishedAt  any       `json:"published_at"`
	Embedding    []float64 `json:"embedding"`
}

type payload struct {
	BatchID  string   `json:"batch_id"`
	Articles []record `json:"articles"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// Loader turns batch files into articles.
type Loader struct {
	log zerolog.Logger
}

func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "ingest").Logger()}
}

// LoadFile reads and decodes a batch file. A missing batch_id defaults to
// the file name.
func (l *Loader) LoadFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()

	b, err := l.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if b.ID == "" {
		b.ID = path
	}
	return b, nil
}

// Decode validates and normalizes a batch from r.
func (l *Loader) Decode(r io.Reader) (*Batch, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}

	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode batch JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal batch: %w", err)
	}

	batch := &Batch{ID: p.BatchID, Articles: make([]core.Article, 0, len(p.Articles))}
	seen := make(map[string]bool, len(p.Articles))
	for i, rec := range p.Articles {
		if seen[rec.ID] {
			return nil, fmt.Errorf("articles[%d] %q: %w", i, rec.ID, ErrDuplicateID)
		}
		seen[rec.ID] = true
		batch.Articles = append(batch.Articles, l.normalize(rec))
	}

	l.log.Debug().Str("batch_id", batch.ID).Int("articles", len(batch.Articles)).Msg("Batch loaded")
	return batch, nil
}

func (l *Loader) normalize(rec record) core.Article {
	a := core.Article{
		ID:           rec.ID,
		Title:        strings.TrimSpace(rec.Title),
		URL:          strings.TrimSpace(rec.URL),
		SourceName:   strings.TrimSpace(rec.SourceName),
		SourceDomain: strings.TrimSpace(rec.SourceDomain),
		RawText:      rec.RawText,
		Embedding:    rec.Embedding,
	}
	if rec.ImageURL != nil {
		a.ImageURL = strings.TrimSpace(*rec.ImageURL)
	}
	if a.RawText == "" && rec.HTML != "" {
		text, err := PlainText(rec.HTML)
		if err != nil {
			l.log.Warn().Err(err).Str("article_id", rec.ID).Msg("Could not extract text from HTML")
		}
		a.RawText = text
	}
	if a.SourceDomain == "" {
		a.SourceDomain = DomainOf(a.URL)
	}

	t, ok := ParsePublishedAt(rec.PublishedAt)
	if !ok {
		l.log.Debug().Str("article_id", rec.ID).Interface("published_at", rec.PublishedAt).Msg("Unparseable publish date, treating as unknown")
	}
	a.PublishedAt = t
	return a
}

// ParsePublishedAt accepts any date layout dateparse understands, or a
// unix timestamp in seconds. Missing or unparseable values return the zero
// time and false; an absent value is reported as ok.
func ParsePublishedAt(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, true
		}
		t, err := dateparse.ParseAny(s)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case float64:
		return time.Unix(int64(x), 0).UTC(), true
	case json.Number:
		n, err := strconv.ParseInt(x.String(), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// DomainOf returns the host of rawURL without a leading "www.".
func DomainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("batch.schema.json", strings.NewReader(batchSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("batch.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("batch contains trailing content")
	}
	return value, nil
}
