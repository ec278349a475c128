package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"topicwire/internal/clustering"
	"topicwire/internal/core"
	"topicwire/internal/dedup"
	"topicwire/internal/ingest"
	"topicwire/internal/sink"
	"topicwire/internal/vectorstore"
)

var fixedNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

// fakeClusterer labels survivors from a fixed script, padding with noise.
type fakeClusterer struct {
	mu     sync.Mutex
	labels []int
	calls  int
}

func (f *fakeClusterer) ClusterArticles(embeddings [][]float64, opts ...clustering.Option) ([]int, clustering.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	labels := make([]int, len(embeddings))
	for i := range labels {
		labels[i] = core.NoiseLabel
		if i < len(f.labels) {
			labels[i] = f.labels[i]
		}
	}
	return labels, clustering.Stats{NumClusters: 2}, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeEmbedder) Name() string { return "fake/model" }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, texts...)
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0, 0, 1}
	}
	return out, nil
}

type fakePublisher struct {
	runs   []sink.Run
	groups [][]core.TopicGroup
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, run sink.Run, groups []core.TopicGroup) error {
	f.runs = append(f.runs, run)
	f.groups = append(f.groups, groups)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

func testBatch() *ingest.Batch {
	return &ingest.Batch{ID: "morning", Articles: []core.Article{
		{ID: "a", SourceName: "Reuters", Embedding: []float64{1, 0, 0}},
		{ID: "b", SourceName: "BBC", Embedding: []float64{1, 0, 0}},
		{ID: "c", SourceName: "CNN"},
		{ID: "d", SourceName: "Wired", Title: "Quantum"},
		{ID: "e", SourceName: "Verge", Embedding: []float64{0.6, 0.8, 0}},
	}}
}

func newTestPipeline(t *testing.T, clusterer TopicClusterer, embedder EmbeddingGenerator, store EmbeddingStore, pub Publisher) *Pipeline {
	t.Helper()
	d, err := dedup.NewEngine(dedup.DefaultConfig(), zerolog.Nop(), dedup.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("dedup.NewEngine() error = %v", err)
	}

	b := NewBuilder().
		WithDeduplicator(d).
		WithClusterer(clusterer).
		WithClock(func() time.Time { return fixedNow })
	if embedder != nil {
		b = b.WithEmbedder(embedder)
	}
	if store != nil {
		b = b.WithStore(store)
	}
	if pub != nil {
		b = b.WithPublisher(pub)
	}

	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return p
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	if err := store.Put(ctx, "c", "fake/model", []float64{0, 1, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	embedder := &fakeEmbedder{}
	pub := &fakePublisher{}
	clusterer := &fakeClusterer{labels: []int{0, 1, 1, core.NoiseLabel}}

	p := newTestPipeline(t, clusterer, embedder, store, pub)
	res, err := p.Run(ctx, testBatch())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Stats.EmbeddingsFromBatch != 3 || res.Stats.EmbeddingsFromStore != 1 || res.Stats.EmbeddingsComputed != 1 {
		t.Errorf("Unexpected embedding stats: %+v", res.Stats)
	}
	if len(embedder.texts) != 1 || embedder.texts[0] != "Quantum" {
		t.Errorf("Expected only article d to be embedded, got %v", embedder.texts)
	}
	stored, _ := store.Get(ctx, "fake/model", []string{"d"})
	if len(stored["d"]) != 3 {
		t.Errorf("Expected computed embedding written back, got %v", stored)
	}

	// a and b collapse into a with viral score 2
	if len(res.Unique) != 4 || len(res.Removed) != 1 || res.Removed[0].ID != "b" {
		t.Fatalf("Unexpected dedup outcome: unique=%d removed=%v", len(res.Unique), res.Removed)
	}
	if res.Unique[0].ID != "a" || res.Unique[0].ViralScore != 2 {
		t.Errorf("Expected a first with viral score 2, got %+v", res.Unique[0])
	}

	if len(res.Groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(res.Groups))
	}
	if res.Groups[0].ClusterID != 1 || res.Groups[0].Size != 2 {
		t.Errorf("Expected the two-article group first, got %+v", res.Groups[0])
	}
	if res.Groups[1].TotalViralScore != 2 || res.Groups[1].UniqueSourcesCount != 2 {
		t.Errorf("Expected merged sources on the single-article group, got %+v", res.Groups[1])
	}
	if res.Groups[0].RepresentativeID == "" {
		t.Error("Expected representative to be set")
	}
	if len(res.Noise) != 1 || res.Noise[0].ID != "e" {
		t.Errorf("Expected e as noise, got %v", res.Noise)
	}
	if res.Quality == nil {
		t.Error("Expected quality metrics")
	}

	if len(pub.runs) != 1 || pub.runs[0].RunID != res.RunID || pub.runs[0].BatchID != "morning" {
		t.Errorf("Unexpected published runs: %+v", pub.runs)
	}
	if len(pub.groups[0]) != 2 {
		t.Errorf("Expected 2 published groups, got %d", len(pub.groups[0]))
	}
}

func TestRunIgnoresEmbeddingsFromOtherModels(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	if err := store.Put(ctx, "c", "other/model", []float64{0, 1, 0, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	embedder := &fakeEmbedder{}

	p := newTestPipeline(t, &fakeClusterer{}, embedder, store, nil)
	res, err := p.Run(ctx, testBatch())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Stats.EmbeddingsFromStore != 0 || res.Stats.EmbeddingsComputed != 2 {
		t.Errorf("Expected c and d computed by the provider, got %+v", res.Stats)
	}
	if len(embedder.texts) != 2 {
		t.Errorf("Expected 2 embedded texts, got %v", embedder.texts)
	}
	stored, _ := store.Get(ctx, "fake/model", []string{"c"})
	if len(stored["c"]) != 3 {
		t.Errorf("Expected c re-stored under the current model, got %v", stored)
	}
}

func TestResolveEmbeddingsSkipsStoreWithoutProvider(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	if err := store.Put(ctx, "c", "fake/model", []float64{0, 1, 0}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	p := newTestPipeline(t, &fakeClusterer{}, nil, store, nil)
	_, stats, err := p.ResolveEmbeddings(ctx, testBatch().Articles)
	if !errors.Is(err, ErrMissingEmbeddings) {
		t.Errorf("Expected ErrMissingEmbeddings, got %v", err)
	}
	if stats.EmbeddingsFromStore != 0 {
		t.Errorf("Expected no store hits without a provider, got %d", stats.EmbeddingsFromStore)
	}
}

func TestRunDoesNotMutateBatch(t *testing.T) {
	batch := testBatch()
	p := newTestPipeline(t, &fakeClusterer{}, &fakeEmbedder{}, nil, nil)

	if _, err := p.Run(context.Background(), batch); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if batch.Articles[2].Embedding != nil || batch.Articles[0].ViralScore != 0 {
		t.Error("Run() modified the input batch")
	}
}

func TestRunMissingEmbeddings(t *testing.T) {
	p := newTestPipeline(t, &fakeClusterer{}, nil, nil, nil)

	_, err := p.Run(context.Background(), testBatch())
	if !errors.Is(err, ErrMissingEmbeddings) {
		t.Errorf("Expected ErrMissingEmbeddings, got %v", err)
	}
}

func TestRunPublishFailureReturnsResult(t *testing.T) {
	boom := errors.New("broker down")
	p := newTestPipeline(t, &fakeClusterer{}, &fakeEmbedder{}, nil, &fakePublisher{err: boom})

	res, err := p.Run(context.Background(), testBatch())
	if !errors.Is(err, boom) {
		t.Errorf("Expected publish error, got %v", err)
	}
	if res == nil {
		t.Error("Expected partial result on publish failure")
	}
}

func TestRunBatches(t *testing.T) {
	clusterer := &fakeClusterer{}
	p := newTestPipeline(t, clusterer, &fakeEmbedder{}, nil, nil)

	second := testBatch()
	second.ID = "evening"
	results, err := p.RunBatches(context.Background(), []*ingest.Batch{testBatch(), second})
	if err != nil {
		t.Fatalf("RunBatches() error = %v", err)
	}
	if len(results) != 2 || results[0].BatchID != "morning" || results[1].BatchID != "evening" {
		t.Errorf("Results out of order: %+v", results)
	}
	if clusterer.calls != 2 {
		t.Errorf("Expected 2 clustering calls, got %d", clusterer.calls)
	}
	if results[0].RunID == results[1].RunID {
		t.Error("Expected distinct run IDs")
	}
}

func TestRunBatchesStopsOnError(t *testing.T) {
	p := newTestPipeline(t, &fakeClusterer{}, nil, nil, nil)

	_, err := p.RunBatches(context.Background(), []*ingest.Batch{testBatch()})
	if !errors.Is(err, ErrMissingEmbeddings) {
		t.Errorf("Expected ErrMissingEmbeddings, got %v", err)
	}
}

func TestBuilderRequiresEngines(t *testing.T) {
	if _, err := NewBuilder().WithClusterer(&fakeClusterer{}).Build(); err == nil {
		t.Error("Expected error without deduplicator")
	}
	d, _ := dedup.NewEngine(dedup.DefaultConfig(), zerolog.Nop())
	if _, err := NewBuilder().WithDeduplicator(d).Build(); err == nil {
		t.Error("Expected error without clusterer")
	}
}

func TestClusteringQualityGate(t *testing.T) {
	embeddings := [][]float64{{1, 0}, {0, 1}, {0.9, 0.1}, {0.1, 0.9}}
	labels := []int{0, 0, 1, 1}

	tests := []struct {
		name    string
		config  QualityGateConfig
		wantErr bool
		wantRun bool
	}{
		{"disabled", QualityGateConfig{}, false, false},
		{"warn only", QualityGateConfig{EnableClusteringGate: true}, false, true},
		{"blocking", QualityGateConfig{EnableClusteringGate: true, BlockOnFailure: true}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewClusteringQualityGate(tt.config, nil, embeddings, labels, zerolog.Nop())
			runner := NewQualityGateRunner(zerolog.Nop())
			runner.AddGate(gate)

			err := runner.RunGates(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("RunGates() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (gate.Metrics() != nil) != tt.wantRun {
				t.Errorf("Metrics() populated = %v, want %v", gate.Metrics() != nil, tt.wantRun)
			}
		})
	}
}
