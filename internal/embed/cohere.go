package embed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// DefaultCohereModel is the default Cohere embedding model
const DefaultCohereModel = "embed-english-v3.0"

type cohereEmbedFunc func(ctx context.Context, req *cohere.V2EmbedRequest) ([][]float64, error)

// CohereProvider embeds text with the Cohere v2 embed API.
type CohereProvider struct {
	embed cohereEmbedFunc
	model string
}

// NewCohereProvider creates a Cohere client for the given model.
func NewCohereProvider(apiKey, model string, timeout time.Duration) (*CohereProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cohere API key is required. Set COHERE_API_KEY")
	}
	if model == "" {
		model = DefaultCohereModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// HTTP/1.1 only; the embed endpoint has been flaky over HTTP/2
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)

	return &CohereProvider{
		model: model,
		embed: func(ctx context.Context, req *cohere.V2EmbedRequest) ([][]float64, error) {
			resp, err := client.V2.Embed(ctx, req)
			if err != nil {
				return nil, err
			}
			if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
				return nil, errors.New("cohere embed returned no float embeddings")
			}
			return resp.Embeddings.Float, nil
		},
	}, nil
}

// Name returns the provider and model.
func (c *CohereProvider) Name() string { return "cohere/" + c.model }

// Embed sends texts as search documents.
func (c *CohereProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	vectors, err := c.embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          c.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed error: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, ErrCountMismatch
	}
	return vectors, nil
}
