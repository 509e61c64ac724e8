package conn

import (
	"strings"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/types"
)

// Doc lazily owns the document store handle. Postgres in production, sqlite
// for local development (DOC_DRIVER=sqlite). The first successful open runs
// the schema migration so the unique session_id / user_id indexes and the
// (user_id, updated_at desc) index exist before any store touches a table.
type Doc struct {
	log *logger.Logger
	cfg *config.Config

	mu        sync.Mutex
	db        *gorm.DB
	attempted bool
}

func NewDoc(log *logger.Logger, cfg *config.Config) *Doc {
	return &Doc{
		log: log.With("conn", "Doc"),
		cfg: cfg,
	}
}

// DB returns the shared gorm handle, opening and migrating on first use.
// A nil return means the backend is unavailable.
func (m *Doc) DB() *gorm.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempted {
		return m.db
	}
	m.attempted = true

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(m.cfg.DocDriver) {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(m.cfg.SQLitePath), &gorm.Config{})
	default:
		db, err = gorm.Open(postgres.Open(m.cfg.PostgresDSN()), &gorm.Config{})
	}
	if err != nil {
		m.log.Warn("document store unavailable", "driver", m.cfg.DocDriver, "error", err)
		return nil
	}

	if err := db.AutoMigrate(&types.ConversationDocument{}, &types.PreferenceDocument{}); err != nil {
		m.log.Warn("document store migration failed", "error", err)
		return nil
	}

	m.log.Info("document store connected", "driver", m.cfg.DocDriver)
	m.db = db
	return m.db
}

func (m *Doc) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		m.db = nil
	}
	m.attempted = false
}
