package embed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"topicwire/internal/config"
	"topicwire/internal/core"
)

type fakeProvider struct {
	calls [][]string
	err   error
	short bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	if f.short {
		return out[:len(out)-1], nil
	}
	return out, nil
}

type memKV struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.failGet {
		return nil, false, errors.New("connection refused")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func TestArticleText(t *testing.T) {
	tests := []struct {
		name     string
		article  core.Article
		maxChars int
		want     string
	}{
		{"title and body", core.Article{Title: "Rates rise", RawText: "The bank moved."}, 100, "Rates rise\n\nThe bank moved."},
		{"title only", core.Article{Title: "  Rates rise "}, 100, "Rates rise"},
		{"body only", core.Article{RawText: "Body"}, 100, "Body"},
		{"truncated by runes", core.Article{Title: "héllo wörld"}, 4, "héll"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArticleText(tt.article, tt.maxChars); got != tt.want {
				t.Errorf("ArticleText() = %q, want %q", got, tt.want)
			}
		})
	}

	long := core.Article{RawText: strings.Repeat("x", DefaultMaxChars+50)}
	if got := ArticleText(long, 0); len([]rune(got)) != DefaultMaxChars {
		t.Errorf("Expected default truncation to %d runes, got %d", DefaultMaxChars, len([]rune(got)))
	}
}

func TestEmbedInBatches(t *testing.T) {
	p := &fakeProvider{}
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vectors, err := EmbedInBatches(context.Background(), p, texts, 2)
	if err != nil {
		t.Fatalf("EmbedInBatches() error = %v", err)
	}
	if len(p.calls) != 3 {
		t.Errorf("Expected 3 batches, got %d", len(p.calls))
	}
	if len(vectors) != len(texts) {
		t.Fatalf("Expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("Vector %d out of order: %v", i, v)
		}
	}
}

func TestEmbedInBatchesErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	if _, err := EmbedInBatches(context.Background(), &fakeProvider{err: boom}, []string{"a"}, 4); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped provider error, got %v", err)
	}
	if _, err := EmbedInBatches(context.Background(), &fakeProvider{short: true}, []string{"a", "b"}, 4); !errors.Is(err, ErrCountMismatch) {
		t.Errorf("Expected ErrCountMismatch, got %v", err)
	}
}

func TestEmbedArticles(t *testing.T) {
	p := &fakeProvider{}
	articles := []core.Article{{Title: "One"}, {Title: "Two", RawText: "body"}}

	if _, err := EmbedArticles(context.Background(), p, articles, 10, 100); err != nil {
		t.Fatalf("EmbedArticles() error = %v", err)
	}
	if len(p.calls) != 1 || p.calls[0][1] != "Two\n\nbody" {
		t.Errorf("Unexpected texts sent: %v", p.calls)
	}
}

func TestCachedProvider(t *testing.T) {
	inner := &fakeProvider{}
	kv := newMemKV()
	c := NewCachedProvider(inner, kv, time.Hour, "test:", zerolog.Nop())
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(kv.data) != 2 {
		t.Errorf("Expected 2 cached entries, got %d", len(kv.data))
	}
	for k, ttl := range kv.ttls {
		if !strings.HasPrefix(k, "test:fake:") {
			t.Errorf("Unexpected key %q", k)
		}
		if ttl != time.Hour {
			t.Errorf("Expected 1h TTL, got %v", ttl)
		}
	}

	second, err := c.Embed(ctx, []string{"gamma", "alpha"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(inner.calls) != 2 || len(inner.calls[1]) != 1 || inner.calls[1][0] != "gamma" {
		t.Errorf("Expected only the miss to reach the provider, got %v", inner.calls)
	}
	if second[1][0] != first[0][0] {
		t.Errorf("Expected cached vector for alpha, got %v", second[1])
	}
}

func TestCachedProviderTreatsLookupErrorsAsMisses(t *testing.T) {
	inner := &fakeProvider{}
	kv := newMemKV()
	kv.failGet = true
	c := NewCachedProvider(inner, kv, 0, "", zerolog.Nop())

	vectors, err := c.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || len(inner.calls) != 1 {
		t.Errorf("Expected fallthrough to provider, got %v calls", len(inner.calls))
	}
}

type fakeOpenAI struct {
	resp openai.EmbeddingResponse
	req  openai.EmbeddingRequest
}

func (f *fakeOpenAI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.req = conv.Convert()
	return f.resp, nil
}

func TestOpenAIProviderOrdersByIndex(t *testing.T) {
	fake := &fakeOpenAI{resp: openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{2, 2}},
		{Index: 0, Embedding: []float32{1, 1}},
	}}}
	p := &OpenAIProvider{client: fake, model: DefaultOpenAIModel}

	vectors, err := p.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Errorf("Vectors not ordered by index: %v", vectors)
	}
	if fake.req.Model != openai.EmbeddingModel(DefaultOpenAIModel) {
		t.Errorf("Unexpected model %q", fake.req.Model)
	}
}

func TestCohereProviderCountMismatch(t *testing.T) {
	p := &CohereProvider{model: DefaultCohereModel}
	p.embed = func(ctx context.Context, req *cohere.V2EmbedRequest) ([][]float64, error) {
		return [][]float64{{1}}, nil
	}

	if _, err := p.Embed(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrCountMismatch) {
		t.Errorf("Expected ErrCountMismatch, got %v", err)
	}
}

func TestProviderConstructorsRequireKeys(t *testing.T) {
	if _, err := NewOpenAIProvider("", "", ""); err == nil {
		t.Error("Expected error for missing OpenAI key")
	}
	if _, err := NewCohereProvider("", "", 0); err == nil {
		t.Error("Expected error for missing Cohere key")
	}
	if _, err := NewGeminiProvider(context.Background(), "", ""); err == nil {
		t.Error("Expected error for missing Gemini key")
	}
}

func TestModelNameMatchesProviderName(t *testing.T) {
	openaiCfg := &config.Config{}
	openaiCfg.Embedding.Provider = "openai"
	o, err := NewOpenAIProvider("key", "", "")
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	if got := ModelName(openaiCfg); got != o.Name() {
		t.Errorf("ModelName() = %q, provider reports %q", got, o.Name())
	}

	cohereCfg := &config.Config{}
	cohereCfg.Embedding.Provider = "cohere"
	cohereCfg.Embedding.Cohere.Model = "embed-multilingual-v3.0"
	c, err := NewCohereProvider("key", "embed-multilingual-v3.0", 0)
	if err != nil {
		t.Fatalf("NewCohereProvider() error = %v", err)
	}
	if got := ModelName(cohereCfg); got != c.Name() {
		t.Errorf("ModelName() = %q, provider reports %q", got, c.Name())
	}

	geminiCfg := &config.Config{}
	geminiCfg.Embedding.Provider = "gemini"
	if got := ModelName(geminiCfg); got != "gemini/"+DefaultGeminiModel {
		t.Errorf("ModelName() = %q, want default Gemini model", got)
	}

	if got := ModelName(&config.Config{}); got != "" {
		t.Errorf("Expected empty model name without a provider, got %q", got)
	}
}
