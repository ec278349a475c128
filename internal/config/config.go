package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"topicwire/internal/clustering"
	"topicwire/internal/dedup"
	"topicwire/internal/quality"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Logging    Logging    `mapstructure:"logging"`
	Dedup      Dedup      `mapstructure:"dedup"`
	Clustering Clustering `mapstructure:"clustering"`
	Quality    Quality    `mapstructure:"quality"`
	Embedding  Embedding  `mapstructure:"embedding"`
	Cache      Cache      `mapstructure:"cache"`
	Store      Store      `mapstructure:"store"`
	Sink       Sink       `mapstructure:"sink"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	OutputDir  string `mapstructure:"output_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Dedup holds deduplication settings
type Dedup struct {
	SimilarityThreshold float64  `mapstructure:"similarity_threshold"`
	Grouping            string   `mapstructure:"grouping"` // greedy or components
	PremiumSources      []string `mapstructure:"premium_sources"`
}

// Clustering holds topic clustering settings
type Clustering struct {
	MinClusterSize            int     `mapstructure:"min_cluster_size"`
	MinSamples                int     `mapstructure:"min_samples"`
	ClusterSelectionEpsilon   float64 `mapstructure:"cluster_selection_epsilon"`
	MinClusterSimilarity      float64 `mapstructure:"min_cluster_similarity"`
	MaxClusterSize            int     `mapstructure:"max_cluster_size"`
	SubClusterEpsilon         float64 `mapstructure:"sub_cluster_epsilon"`
	SubClusterSimilarityRelax float64 `mapstructure:"sub_cluster_similarity_relax"`
	MaxSplitDepth             int     `mapstructure:"max_split_depth"`
	ValidateCoherence         bool    `mapstructure:"validate_coherence"`
	Backend                   string  `mapstructure:"backend"`
}

// Quality holds clustering report thresholds
type Quality struct {
	MinSilhouetteScore  float64 `mapstructure:"min_silhouette_score"`
	MinIntraClusterSim  float64 `mapstructure:"min_intra_cluster_sim"`
	MinInterClusterDist float64 `mapstructure:"min_inter_cluster_dist"`
	MaxNoiseRatio       float64 `mapstructure:"max_noise_ratio"`
}

// Embedding holds embedding provider configuration
type Embedding struct {
	Provider  string       `mapstructure:"provider"` // gemini, openai, cohere or none
	Timeout   string       `mapstructure:"timeout"`
	BatchSize int          `mapstructure:"batch_size"`
	MaxChars  int          `mapstructure:"max_chars"`
	Gemini    GeminiConfig `mapstructure:"gemini"`
	OpenAI    OpenAIConfig `mapstructure:"openai"`
	Cohere    CohereConfig `mapstructure:"cohere"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// CohereConfig holds Cohere configuration
type CohereConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Cache holds the Redis embedding cache configuration
type Cache struct {
	Enabled   bool   `mapstructure:"enabled"`
	RedisAddr string `mapstructure:"redis_addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	TTL       string `mapstructure:"ttl"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Store holds the pgvector embedding store configuration
type Store struct {
	Enabled     bool   `mapstructure:"enabled"`
	DatabaseURL string `mapstructure:"database_url"`
	Timeout     string `mapstructure:"timeout"`
}

// Sink holds topic group publishing configuration
type Sink struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
	File  FileConfig  `mapstructure:"file"`
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

// FileConfig holds JSON file output configuration
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// Pipeline holds orchestration settings
type Pipeline struct {
	MaxParallelBatches int `mapstructure:"max_parallel_batches"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".topicwire")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.SetEnvPrefix("TOPICWIRE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.output_dir", "out")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	d := dedup.DefaultConfig()
	viper.SetDefault("dedup.similarity_threshold", d.SimilarityThreshold)
	viper.SetDefault("dedup.grouping", d.Grouping)
	viper.SetDefault("dedup.premium_sources", d.PremiumSources)

	c := clustering.DefaultConfig()
	viper.SetDefault("clustering.min_cluster_size", c.MinClusterSize)
	viper.SetDefault("clustering.min_samples", c.MinSamples)
	viper.SetDefault("clustering.cluster_selection_epsilon", c.ClusterSelectionEpsilon)
	viper.SetDefault("clustering.min_cluster_similarity", c.MinClusterSimilarity)
	viper.SetDefault("clustering.max_cluster_size", c.MaxClusterSize)
	viper.SetDefault("clustering.sub_cluster_epsilon", c.SubClusterEpsilon)
	viper.SetDefault("clustering.sub_cluster_similarity_relax", c.SubClusterSimilarityRelax)
	viper.SetDefault("clustering.max_split_depth", c.MaxSplitDepth)
	viper.SetDefault("clustering.validate_coherence", c.ValidateCoherence)
	viper.SetDefault("clustering.backend", c.Backend)

	q := quality.DefaultThresholds()
	viper.SetDefault("quality.min_silhouette_score", q.MinSilhouetteScore)
	viper.SetDefault("quality.min_intra_cluster_sim", q.MinIntraClusterSim)
	viper.SetDefault("quality.min_inter_cluster_dist", q.MinInterClusterDist)
	viper.SetDefault("quality.max_noise_ratio", q.MaxNoiseRatio)

	viper.SetDefault("embedding.provider", "gemini")
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("embedding.batch_size", 64)
	viper.SetDefault("embedding.max_chars", 8000)
	viper.SetDefault("embedding.gemini.model", "text-embedding-004")
	viper.SetDefault("embedding.openai.model", "text-embedding-3-small")
	viper.SetDefault("embedding.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding.cohere.model", "embed-english-v3.0")

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_addr", "localhost:6379")
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.ttl", "168h")
	viper.SetDefault("cache.key_prefix", "topicwire:emb:")

	viper.SetDefault("store.enabled", false)
	viper.SetDefault("store.timeout", "10s")

	viper.SetDefault("sink.kafka.enabled", false)
	viper.SetDefault("sink.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("sink.kafka.topic", "topic-groups")
	viper.SetDefault("sink.kafka.client_id", "topicwire")

	viper.SetDefault("pipeline.max_parallel_batches", 2)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("embedding.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("embedding.openai.api_key", []string{
		"OPENAI_API_KEY",
	})

	bindEnvKeys("embedding.cohere.api_key", []string{
		"COHERE_API_KEY",
		"CO_API_KEY",
	})

	bindEnvKeys("store.database_url", []string{
		"DATABASE_URL",
		"POSTGRES_URL",
	})

	bindEnvKeys("cache.redis_addr", []string{
		"REDIS_ADDR",
		"REDIS_URL",
	})

	bindEnvKeys("cache.password", []string{
		"REDIS_PASSWORD",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"TOPICWIRE_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.OutputDir != "" {
		config.App.OutputDir = expandPath(config.App.OutputDir)
	}
	if config.Sink.File.Path != "" {
		config.Sink.File.Path = expandPath(config.Sink.File.Path)
	}
	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	durations := map[string]string{
		"embedding.timeout": config.Embedding.Timeout,
		"cache.ttl":         config.Cache.TTL,
		"store.timeout":     config.Store.Timeout,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures configuration values are usable
func validateConfig(config *Config) error {
	var errors []string

	if t := config.Dedup.SimilarityThreshold; t < -1 || t > 1 {
		errors = append(errors, fmt.Sprintf("dedup.similarity_threshold must be within [-1, 1], got %.3f", t))
	}
	switch config.Dedup.Grouping {
	case dedup.GroupingGreedy, dedup.GroupingComponents:
	default:
		errors = append(errors, fmt.Sprintf("Unknown dedup.grouping: %s. Supported: greedy, components", config.Dedup.Grouping))
	}

	c := config.Clustering
	if c.MinClusterSize < 1 {
		errors = append(errors, "clustering.min_cluster_size must be at least 1")
	}
	if c.MinSamples < 1 {
		errors = append(errors, "clustering.min_samples must be at least 1")
	}
	if c.ClusterSelectionEpsilon < 0 || c.SubClusterEpsilon < 0 {
		errors = append(errors, "clustering epsilons must not be negative")
	}
	if c.MinClusterSimilarity < -1 || c.MinClusterSimilarity > 1 {
		errors = append(errors, fmt.Sprintf("clustering.min_cluster_similarity must be within [-1, 1], got %.3f", c.MinClusterSimilarity))
	}
	if c.MaxClusterSize < 2 {
		errors = append(errors, "clustering.max_cluster_size must be at least 2")
	}
	if c.SubClusterSimilarityRelax < 0 {
		errors = append(errors, "clustering.sub_cluster_similarity_relax must not be negative")
	}
	switch c.Backend {
	case clustering.BackendNative, clustering.BackendHumility:
	default:
		errors = append(errors, fmt.Sprintf("Unknown clustering.backend: %s. Supported: native, humility", c.Backend))
	}

	switch config.Embedding.Provider {
	case "gemini", "openai", "cohere", "none":
	default:
		errors = append(errors, fmt.Sprintf("Unknown embedding.provider: %s. Supported: gemini, openai, cohere, none", config.Embedding.Provider))
	}
	if config.Embedding.BatchSize < 1 {
		errors = append(errors, "embedding.batch_size must be at least 1")
	}

	if config.Store.Enabled && config.Store.DatabaseURL == "" {
		errors = append(errors, "store.database_url is required when the embedding store is enabled. Set DATABASE_URL")
	}
	if config.Sink.Kafka.Enabled {
		if len(config.Sink.Kafka.Brokers) == 0 {
			errors = append(errors, "sink.kafka.brokers is required when Kafka publishing is enabled")
		}
		if config.Sink.Kafka.Topic == "" {
			errors = append(errors, "sink.kafka.topic is required when Kafka publishing is enabled")
		}
	}
	if config.Pipeline.MaxParallelBatches < 1 {
		errors = append(errors, "pipeline.max_parallel_batches must be at least 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// DedupConfig converts the dedup section into engine settings.
func (c *Config) DedupConfig() dedup.Config {
	cfg := dedup.DefaultConfig()
	cfg.SimilarityThreshold = c.Dedup.SimilarityThreshold
	cfg.Grouping = c.Dedup.Grouping
	if c.Dedup.PremiumSources != nil {
		cfg.PremiumSources = c.Dedup.PremiumSources
	}
	return cfg
}

// ClusteringConfig converts the clustering section into engine settings.
func (c *Config) ClusteringConfig() clustering.Config {
	return clustering.Config{
		MinClusterSize:            c.Clustering.MinClusterSize,
		MinSamples:                c.Clustering.MinSamples,
		ClusterSelectionEpsilon:   c.Clustering.ClusterSelectionEpsilon,
		MinClusterSimilarity:      c.Clustering.MinClusterSimilarity,
		MaxClusterSize:            c.Clustering.MaxClusterSize,
		SubClusterEpsilon:         c.Clustering.SubClusterEpsilon,
		SubClusterSimilarityRelax: c.Clustering.SubClusterSimilarityRelax,
		MaxSplitDepth:             c.Clustering.MaxSplitDepth,
		ValidateCoherence:         c.Clustering.ValidateCoherence,
		Backend:                   c.Clustering.Backend,
	}
}

// QualityThresholds converts the quality section into report thresholds.
func (c *Config) QualityThresholds() quality.QualityThresholds {
	t := quality.DefaultThresholds()
	t.MinSilhouetteScore = c.Quality.MinSilhouetteScore
	t.MinIntraClusterSim = c.Quality.MinIntraClusterSim
	t.MinInterClusterDist = c.Quality.MinInterClusterDist
	t.MaxNoiseRatio = c.Quality.MaxNoiseRatio
	return t
}

// Duration parses a validated duration string, falling back to def.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
