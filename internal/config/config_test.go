package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IntraSessionTTL != 7200 {
		t.Fatalf("expected 7200s session ttl, got %d", cfg.IntraSessionTTL)
	}
	if cfg.DefaultRetrievalK != 6 || cfg.MinSimilarity != 0.40 {
		t.Fatalf("unexpected retrieval defaults: k=%d minSim=%v", cfg.DefaultRetrievalK, cfg.MinSimilarity)
	}
	if cfg.EmbeddingQueue != "embedding_queue" || cfg.PrefQueue != "preference_queue" {
		t.Fatalf("unexpected queue names: %q %q", cfg.EmbeddingQueue, cfg.PrefQueue)
	}
	if cfg.VectorDim != 1536 {
		t.Fatalf("expected 1536 vector dim, got %d", cfg.VectorDim)
	}
	if !cfg.EnableAsyncEmbedding || !cfg.EnableRedisCache || !cfg.EnablePrefExtraction {
		t.Fatal("pipeline flags should default on")
	}
	if cfg.EnablePrefLLMExtraction {
		t.Fatal("llm extraction should default off")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("MIN_SIMILARITY", "0.55")
	t.Setenv("ENABLE_ASYNC_EMBEDDING", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.RedisAddr(); got != "redis.internal:6380" {
		t.Fatalf("unexpected redis addr %q", got)
	}
	if cfg.MinSimilarity != 0.55 {
		t.Fatalf("expected 0.55, got %v", cfg.MinSimilarity)
	}
	if cfg.EnableAsyncEmbedding {
		t.Fatal("env should disable async embedding")
	}
}

func TestLoadYAMLOverlaysEnv(t *testing.T) {
	t.Setenv("QDRANT_COLLECTION", "from_env")

	path := filepath.Join(t.TempDir(), "memory.yaml")
	body := "qdrant_collection: from_file\nvector_dim: 768\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QdrantCollection != "from_file" {
		t.Fatalf("file should win over env, got %q", cfg.QdrantCollection)
	}
	if cfg.VectorDim != 768 {
		t.Fatalf("expected 768, got %d", cfg.VectorDim)
	}
	// Keys absent from the file keep their env/default values.
	if cfg.EmbeddingQueue != "embedding_queue" {
		t.Fatalf("unexpected queue %q", cfg.EmbeddingQueue)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestQdrantBaseURL(t *testing.T) {
	cfg := &Config{QdrantHost: "localhost", QdrantPort: 6333}
	if got := cfg.QdrantBaseURL(); got != "http://localhost:6333" {
		t.Fatalf("unexpected url %q", got)
	}
	cfg.QdrantAPIKey = "k"
	if got := cfg.QdrantBaseURL(); got != "https://localhost:6333" {
		t.Fatalf("api key should force https, got %q", got)
	}
	cfg.QdrantURL = "http://qdrant.internal:7000"
	if got := cfg.QdrantBaseURL(); got != "http://qdrant.internal:7000" {
		t.Fatalf("explicit url must win, got %q", got)
	}
}
