package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voyplan/memory-backend/internal/envutil"
)

// Config is the immutable configuration for the memory service. It is built
// once at startup and passed by reference; no package reads ambient state
// after construction.
type Config struct {
	LogMode string `yaml:"log_mode"`

	// Redis (intra-session memory, preference cache, job streams)
	RedisHost       string `yaml:"redis_host"`
	RedisPort       int    `yaml:"redis_port"`
	RedisDB         int    `yaml:"redis_db"`
	RedisPassword   string `yaml:"redis_password"`
	IntraSessionTTL int    `yaml:"intra_session_ttl"` // seconds

	// Document store (conversations + preferences)
	DocDriver        string `yaml:"doc_driver"` // "postgres" or "sqlite"
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresName     string `yaml:"postgres_name"`
	SQLitePath       string `yaml:"sqlite_path"`

	// Qdrant (vector search)
	QdrantURL        string `yaml:"qdrant_url"` // takes precedence over host/port
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	QdrantCollection string `yaml:"qdrant_collection"`
	VectorDim        int    `yaml:"vector_dim"`

	// Feature flags
	UseLegacyMemory         bool `yaml:"use_legacy_memory"`
	EnableRedisCache        bool `yaml:"enable_redis_cache"`
	EnableAsyncEmbedding    bool `yaml:"enable_async_embedding"`
	EnablePrefExtraction    bool `yaml:"enable_pref_extraction"`
	EnablePrefLLMExtraction bool `yaml:"enable_pref_llm_extraction"`

	// Retrieval + pipeline
	DefaultRetrievalK  int     `yaml:"default_retrieval_k"`
	MinSimilarity      float64 `yaml:"min_similarity"`
	EmbeddingQueue     string  `yaml:"embedding_queue"`
	PrefQueue          string  `yaml:"pref_queue"`
	EmbeddingBatchSize int     `yaml:"embedding_batch_size"`

	// OpenAI (embedder + optional extraction LLM)
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	EmbedModel    string `yaml:"embed_model"`
	ExtractModel  string `yaml:"extract_model"`
}

// Load builds a Config from environment variables. If path is non-empty the
// YAML file at path overlays the environment values.
func Load(path string) (*Config, error) {
	cfg := fromEnv()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		LogMode: envutil.Str("LOG_MODE", "development"),

		RedisHost:       envutil.Str("REDIS_HOST", "localhost"),
		RedisPort:       envutil.Int("REDIS_PORT", 6379),
		RedisDB:         envutil.Int("REDIS_DB", 0),
		RedisPassword:   envutil.Str("REDIS_PASSWORD", ""),
		IntraSessionTTL: envutil.Int("INTRA_SESSION_TTL", 7200),

		DocDriver:        envutil.Str("DOC_DRIVER", "postgres"),
		PostgresHost:     envutil.Str("POSTGRES_HOST", "localhost"),
		PostgresPort:     envutil.Int("POSTGRES_PORT", 5432),
		PostgresUser:     envutil.Str("POSTGRES_USER", "postgres"),
		PostgresPassword: envutil.Str("POSTGRES_PASSWORD", ""),
		PostgresName:     envutil.Str("POSTGRES_NAME", "trip_planner"),
		SQLitePath:       envutil.Str("DOC_SQLITE_PATH", "memory.db"),

		QdrantURL:        envutil.Str("QDRANT_URL", ""),
		QdrantHost:       envutil.Str("QDRANT_HOST", "localhost"),
		QdrantPort:       envutil.Int("QDRANT_PORT", 6333),
		QdrantAPIKey:     envutil.Str("QDRANT_API_KEY", ""),
		QdrantCollection: envutil.Str("QDRANT_COLLECTION", "conversations"),
		VectorDim:        envutil.Int("VECTOR_DIM", 1536),

		UseLegacyMemory:         envutil.Bool("USE_LEGACY_MEMORY", false),
		EnableRedisCache:        envutil.Bool("ENABLE_REDIS_CACHE", true),
		EnableAsyncEmbedding:    envutil.Bool("ENABLE_ASYNC_EMBEDDING", true),
		EnablePrefExtraction:    envutil.Bool("ENABLE_PREF_EXTRACTION", true),
		EnablePrefLLMExtraction: envutil.Bool("ENABLE_PREF_LLM_EXTRACTION", false),

		DefaultRetrievalK:  envutil.Int("DEFAULT_RETRIEVAL_K", 6),
		MinSimilarity:      envutil.Float("MIN_SIMILARITY", 0.40),
		EmbeddingQueue:     envutil.Str("EMBEDDING_QUEUE", "embedding_queue"),
		PrefQueue:          envutil.Str("PREF_QUEUE", "preference_queue"),
		EmbeddingBatchSize: envutil.Int("EMBEDDING_BATCH_SIZE", 10),

		OpenAIAPIKey:  envutil.Str("OPENAI_API_KEY", ""),
		OpenAIBaseURL: envutil.Str("OPENAI_BASE_URL", ""),
		EmbedModel:    envutil.Str("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		ExtractModel:  envutil.Str("OPENAI_EXTRACT_MODEL", "gpt-4o-mini"),
	}
}

// RedisAddr returns the host:port dial address for Redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresDSN returns the gorm DSN for the Postgres document store.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresName)
}

// QdrantBaseURL resolves the Qdrant endpoint. QDRANT_URL wins when set;
// otherwise the scheme is https when an API key is present.
func (c *Config) QdrantBaseURL() string {
	if c.QdrantURL != "" {
		return c.QdrantURL
	}
	scheme := "http"
	if c.QdrantAPIKey != "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.QdrantHost, c.QdrantPort)
}
