package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KV is the minimal key-value surface the embedding cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	client redis.UniversalClient
}

// NewRedisKV connects to addr and pings it once.
func NewRedisKV(ctx context.Context, addr, password string, db int) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisKV{client: client}, nil
}

// NewRedisKVFromClient wraps an existing client.
func NewRedisKVFromClient(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the Redis connection.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

// CachedProvider looks each text up in a KV store before asking the
// wrapped provider, and writes new vectors back. Cache failures are logged
// and treated as misses.
type CachedProvider struct {
	next   Provider
	kv     KV
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

// NewCachedProvider wraps next with a cache. A zero ttl keeps entries forever.
func NewCachedProvider(next Provider, kv KV, ttl time.Duration, prefix string, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		next:   next,
		kv:     kv,
		ttl:    ttl,
		prefix: prefix,
		log:    log.With().Str("component", "embed_cache").Logger(),
	}
}

func (c *CachedProvider) Name() string { return c.next.Name() }

// Key returns the cache key for a text under this provider.
func (c *CachedProvider) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + c.next.Name() + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		raw, ok, err := c.kv.Get(ctx, c.Key(text))
		if err != nil {
			c.log.Warn().Err(err).Msg("Cache lookup failed")
		}
		if ok {
			var v []float64
			if err := json.Unmarshal(raw, &v); err == nil && len(v) > 0 {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	c.log.Debug().Int("hits", len(texts)-len(missIdx)).Int("misses", len(missIdx)).Msg("Embedding cache lookup")
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, ErrCountMismatch
	}

	for j, v := range vectors {
		out[missIdx[j]] = v
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if err := c.kv.Set(ctx, c.Key(missTexts[j]), raw, c.ttl); err != nil {
			c.log.Warn().Err(err).Msg("Cache write failed")
		}
	}
	return out, nil
}
