package conn

import (
	"context"
	"sync"
	"time"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/platform/qdrant"
)

// Qdrant lazily owns the vector index client and makes sure the collection
// exists with the configured dimension and cosine distance.
type Qdrant struct {
	log *logger.Logger
	cfg *config.Config

	mu        sync.Mutex
	client    qdrant.Client
	attempted bool
}

func NewQdrant(log *logger.Logger, cfg *config.Config) *Qdrant {
	return &Qdrant{
		log: log.With("conn", "Qdrant"),
		cfg: cfg,
	}
}

// Client returns the shared vector index client. A nil return means the
// backend is unavailable.
func (m *Qdrant) Client() qdrant.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempted {
		return m.client
	}
	m.attempted = true

	client, err := qdrant.NewClient(m.log, qdrant.Options{
		BaseURL:    m.cfg.QdrantBaseURL(),
		APIKey:     m.cfg.QdrantAPIKey,
		Collection: m.cfg.QdrantCollection,
		VectorDim:  m.cfg.VectorDim,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		m.log.Warn("qdrant client init failed", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureCollection(ctx); err != nil {
		m.log.Warn("qdrant unavailable", "url", m.cfg.QdrantBaseURL(), "error", err)
		return nil
	}

	m.log.Info("qdrant connected", "url", m.cfg.QdrantBaseURL(), "collection", m.cfg.QdrantCollection)
	m.client = client
	return m.client
}

func (m *Qdrant) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = nil
	m.attempted = false
}
