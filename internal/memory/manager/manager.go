package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/memory/intersession"
	"github.com/voyplan/memory-backend/internal/memory/intrasession"
	"github.com/voyplan/memory-backend/internal/memory/preferences"
	"github.com/voyplan/memory-backend/internal/memory/streams"
	"github.com/voyplan/memory-backend/internal/platform/ai"
	"github.com/voyplan/memory-backend/internal/repos"
	"github.com/voyplan/memory-backend/internal/types"
)

const (
	qaEntryChars     = 200
	qaSummaryChars   = 800
	formatEntryChars = 200
)

// Manager is the unified façade over the three memory tiers. It is safe for
// concurrent callers; the chat path never sees an error from it, only empty
// results or false.
type Manager struct {
	log    *logger.Logger
	cfg    *config.Config
	redis  *conn.Redis
	doc    *conn.Doc
	qdrant *conn.Qdrant
	intra  *intrasession.Store
	inter  *intersession.Store
	prefs  *preferences.Store
}

// New wires the connection managers, repos, and stores from config. A
// missing embedding provider only disables retrieval and inline embedding;
// everything else still works.
func New(log *logger.Logger, cfg *config.Config) *Manager {
	mgrLog := log.With("service", "MemoryManager")

	redis := conn.NewRedis(log, cfg)
	doc := conn.NewDoc(log, cfg)
	qd := conn.NewQdrant(log, cfg)
	str := streams.New(log, redis)

	convRepo := repos.NewConversationRepo(doc, log)
	prefRepo := repos.NewPreferenceRepo(doc, log)

	var embedder ai.Embedder
	if cfg.OpenAIAPIKey != "" {
		e, err := ai.NewEmbedder(log, ai.Options{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			EmbedModel: cfg.EmbedModel,
			VectorDim:  cfg.VectorDim,
		})
		if err != nil {
			mgrLog.Warn("embedder init failed, retrieval disabled", "error", err)
		} else {
			embedder = e
		}
	} else {
		mgrLog.Warn("no embedding provider configured, retrieval disabled")
	}

	return &Manager{
		log:    mgrLog,
		cfg:    cfg,
		redis:  redis,
		doc:    doc,
		qdrant: qd,
		intra:  intrasession.NewStore(log, redis, cfg),
		inter:  intersession.NewStore(log, cfg, convRepo, qd, str, embedder),
		prefs:  preferences.NewStore(log, cfg, prefRepo, redis, str),
	}
}

// Append writes one message into the live session log.
func (m *Manager) Append(ctx context.Context, sessionID string, msg types.Message) bool {
	return m.intra.Append(ctx, sessionID, msg)
}

// List returns the last limit messages of the live session (all when
// limit <= 0), in insertion order.
func (m *Manager) List(ctx context.Context, sessionID string, limit int) []types.Message {
	return m.intra.List(ctx, sessionID, limit)
}

// Refresh slides the session TTL forward without touching content.
func (m *Manager) Refresh(ctx context.Context, sessionID string) bool {
	return m.intra.Refresh(ctx, sessionID)
}

// FinalizeSession promotes a live session into durable memory: drain the
// intra-session log, upsert the conversation document, queue the embedding
// job, then clear the log. A failed save leaves the log intact so a retry
// can still see the messages. An empty session finalizes trivially.
func (m *Manager) FinalizeSession(ctx context.Context, userID, sessionID string) bool {
	msgs := m.intra.List(ctx, sessionID, 0)
	if len(msgs) == 0 {
		return true
	}

	if !m.inter.Save(ctx, userID, sessionID, msgs) {
		return false
	}

	if m.cfg.EnableAsyncEmbedding {
		if summary := QASummary(msgs); summary != "" {
			m.inter.EnqueueEmbedding(ctx, userID, sessionID, summary)
		}
	}

	m.intra.Clear(ctx, sessionID)
	return true
}

// RetrieveRelevantMemories runs user-scoped similarity retrieval. k <= 0 and
// minSim < 0 fall back to the configured defaults; minSim == 0 is a real
// override meaning no threshold.
func (m *Manager) RetrieveRelevantMemories(ctx context.Context, userID, query string, k int, minSim float64) []types.ScoredMemory {
	if k <= 0 {
		k = m.cfg.DefaultRetrievalK
	}
	if minSim < 0 {
		minSim = m.cfg.MinSimilarity
	}
	return m.inter.RetrieveSimilar(ctx, userID, query, k, minSim)
}

// GetPreferences returns the user's preference map (including the _version
// decoration), or an empty map.
func (m *Manager) GetPreferences(ctx context.Context, userID string) map[string]any {
	prefs := m.prefs.Get(ctx, userID)
	if prefs == nil {
		return map[string]any{}
	}
	return prefs
}

// UpdatePreference sets one preference key, last writer wins.
func (m *Manager) UpdatePreference(ctx context.Context, userID, key string, value any) bool {
	return m.prefs.UpdateOne(ctx, userID, key, value)
}

// EnqueuePreferenceExtraction queues offline preference mining for a
// finalized session.
func (m *Manager) EnqueuePreferenceExtraction(ctx context.Context, userID, sessionID string) bool {
	return m.prefs.EnqueueExtraction(ctx, userID, sessionID)
}

// Close releases the shared backend handles.
func (m *Manager) Close() {
	m.redis.Close()
	m.doc.Close()
	m.qdrant.Close()
}

// QASummary pairs adjacent messages as question/answer turns and joins them
// into the bounded text that gets embedded for retrieval.
func QASummary(msgs []types.Message) string {
	var pairs []string
	for i := 0; i+1 < len(msgs); i += 2 {
		q := types.Truncate(msgs[i].Content, qaEntryChars)
		a := types.Truncate(msgs[i+1].Content, qaEntryChars)
		pairs = append(pairs, fmt.Sprintf("Q: %s\nA: %s", q, a))
	}
	return types.Truncate(strings.Join(pairs, "\n\n"), qaSummaryChars)
}

// FormatMemoriesForContext renders retrieved memories as a compact context
// block. Lines accumulate until the body exceeds maxChars; the line that
// crosses the budget is kept.
func FormatMemoriesForContext(memories []types.ScoredMemory, maxChars int) string {
	if len(memories) == 0 {
		return ""
	}
	if maxChars <= 0 {
		maxChars = 800
	}
	var lines []string
	total := 0
	for _, mem := range memories {
		line := fmt.Sprintf("- (%s, similarity=%.2f) %s",
			mem.Item.Type, mem.Score, types.Truncate(mem.Item.Content, formatEntryChars))
		lines = append(lines, line)
		total += len(line)
		if total > maxChars {
			break
		}
	}
	return "Relevant context from past conversations:\n" + strings.Join(lines, "\n")
}
