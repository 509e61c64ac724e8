package conn

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
)

// Redis lazily owns at most one client to the KV store. Construction failure
// is cached: every later Client call returns nil without re-dialing, and the
// stores degrade to no-ops.
type Redis struct {
	log *logger.Logger
	cfg *config.Config

	mu        sync.Mutex
	client    *goredis.Client
	attempted bool
}

func NewRedis(log *logger.Logger, cfg *config.Config) *Redis {
	return &Redis{
		log: log.With("conn", "Redis"),
		cfg: cfg,
	}
}

// Client returns the shared Redis client, dialing on first use. A nil return
// means the backend is unavailable.
func (m *Redis) Client() *goredis.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempted {
		return m.client
	}
	m.attempted = true

	client := goredis.NewClient(&goredis.Options{
		Addr:         m.cfg.RedisAddr(),
		Password:     m.cfg.RedisPassword,
		DB:           m.cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		m.log.Warn("redis unavailable", "addr", m.cfg.RedisAddr(), "error", err)
		_ = client.Close()
		return nil
	}

	m.log.Info("redis connected", "addr", m.cfg.RedisAddr())
	m.client = client
	return m.client
}

func (m *Redis) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
	m.attempted = false
}
