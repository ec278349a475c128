package embed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"topicwire/internal/config"
)

// FromConfig builds the configured provider, wrapped in a Redis cache when
// caching is enabled. It returns a nil provider for "none". The returned
// close function releases any clients that were opened.
func FromConfig(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Provider, func() error, error) {
	noop := func() error { return nil }
	e := cfg.Embedding

	var (
		p       Provider
		closers []func() error
	)
	switch e.Provider {
	case "none", "":
		return nil, noop, nil
	case "gemini":
		g, err := NewGeminiProvider(ctx, e.Gemini.APIKey, e.Gemini.Model)
		if err != nil {
			return nil, noop, err
		}
		p = g
		closers = append(closers, g.Close)
	case "openai":
		o, err := NewOpenAIProvider(e.OpenAI.APIKey, e.OpenAI.Model, e.OpenAI.BaseURL)
		if err != nil {
			return nil, noop, err
		}
		p = o
	case "cohere":
		c, err := NewCohereProvider(e.Cohere.APIKey, e.Cohere.Model, config.Duration(e.Timeout, 0))
		if err != nil {
			return nil, noop, err
		}
		p = c
	default:
		return nil, noop, fmt.Errorf("unknown embedding provider: %s", e.Provider)
	}

	if cfg.Cache.Enabled {
		kv, err := NewRedisKV(ctx, cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Embedding cache unavailable, continuing without it")
		} else {
			p = NewCachedProvider(p, kv, config.Duration(cfg.Cache.TTL, 0), cfg.Cache.KeyPrefix, log)
			closers = append(closers, kv.Close)
		}
	}

	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	log.Info().Str("provider", p.Name()).Bool("cache", cfg.Cache.Enabled).Msg("Embedding provider ready")
	return p, closeAll, nil
}

// ModelName is the name the configured provider reports, matching the model
// key its embeddings are stored under. It is empty when no provider is set.
func ModelName(cfg *config.Config) string {
	e := cfg.Embedding
	switch e.Provider {
	case "gemini":
		return "gemini/" + orDefault(e.Gemini.Model, DefaultGeminiModel)
	case "openai":
		return "openai/" + orDefault(e.OpenAI.Model, DefaultOpenAIModel)
	case "cohere":
		return "cohere/" + orDefault(e.Cohere.Model, DefaultCohereModel)
	default:
		return ""
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
