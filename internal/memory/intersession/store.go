package intersession

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/memory/streams"
	"github.com/voyplan/memory-backend/internal/platform/ai"
	"github.com/voyplan/memory-backend/internal/platform/qdrant"
	"github.com/voyplan/memory-backend/internal/repos"
	"github.com/voyplan/memory-backend/internal/types"
)

const (
	summaryMessageLimit = 10
	summaryEntryChars   = 150
	summaryMaxChars     = 800
	payloadContentChars = 500
)

// Store is the durable cross-session tier: full conversations in the
// document store, embeddings in the vector index, with async embedding via
// the job stream and an immediate fallback.
type Store struct {
	log      *logger.Logger
	cfg      *config.Config
	convs    repos.ConversationRepo
	vec      *conn.Qdrant
	streams  *streams.Streams
	embedder ai.Embedder // may be nil when no provider is configured
}

func NewStore(
	log *logger.Logger,
	cfg *config.Config,
	convs repos.ConversationRepo,
	vec *conn.Qdrant,
	str *streams.Streams,
	embedder ai.Embedder,
) *Store {
	return &Store{
		log:      log.With("store", "InterSession"),
		cfg:      cfg,
		convs:    convs,
		vec:      vec,
		streams:  str,
		embedder: embedder,
	}
}

// Save upserts the full conversation keyed by session_id.
func (s *Store) Save(ctx context.Context, userID, sessionID string, msgs []types.Message) bool {
	rawMessages, err := json.Marshal(msgs)
	if err != nil {
		s.log.Warn("encode messages failed", "session_id", sessionID, "error", err)
		return false
	}
	rawMetadata, err := json.Marshal(map[string]any{"message_count": len(msgs)})
	if err != nil {
		s.log.Warn("encode metadata failed", "session_id", sessionID, "error", err)
		return false
	}

	doc := &types.ConversationDocument{
		SessionID: sessionID,
		UserID:    userID,
		Messages:  datatypes.JSON(rawMessages),
		Summary:   BuildSummary(msgs),
		Metadata:  datatypes.JSON(rawMetadata),
	}
	if err := s.convs.Upsert(ctx, doc); err != nil {
		s.log.Warn("save conversation failed", "user_id", userID, "session_id", sessionID, "error", err)
		return false
	}
	s.log.Debug("saved conversation", "user_id", userID, "session_id", sessionID, "messages", len(msgs))
	return true
}

// BuildSummary concatenates the first messages as "[type] content" previews,
// pipe-separated and bounded for the document summary field.
func BuildSummary(msgs []types.Message) string {
	limit := len(msgs)
	if limit > summaryMessageLimit {
		limit = summaryMessageLimit
	}
	parts := make([]string, 0, limit)
	for _, msg := range msgs[:limit] {
		parts = append(parts, fmt.Sprintf("[%s] %s", msg.Type, types.Truncate(msg.Content, summaryEntryChars)))
	}
	return types.Truncate(strings.Join(parts, " | "), summaryMaxChars)
}

// EnqueueEmbedding publishes an embedding job, or embeds inline when async
// embedding is off or the stream is unreachable.
func (s *Store) EnqueueEmbedding(ctx context.Context, userID, sessionID, content string) bool {
	if !s.cfg.EnableAsyncEmbedding {
		return s.embedAndStoreNow(ctx, userID, sessionID, content)
	}

	job := types.EmbeddingJob{
		UserID:    userID,
		SessionID: sessionID,
		Content:   content,
		CreatedAt: float64(time.Now().UnixNano()) / float64(time.Second),
	}
	if err := s.streams.Publish(ctx, s.cfg.EmbeddingQueue, job.Fields()); err != nil {
		s.log.Warn("queue embedding failed, embedding inline", "session_id", sessionID, "error", err)
		return s.embedAndStoreNow(ctx, userID, sessionID, content)
	}
	s.log.Debug("queued embedding job", "user_id", userID, "session_id", sessionID)
	return true
}

func (s *Store) embedAndStoreNow(ctx context.Context, userID, sessionID, content string) bool {
	if s.embedder == nil {
		s.log.Warn("no embedder configured, skipping embedding", "session_id", sessionID)
		return false
	}
	client := s.vec.Client()
	if client == nil {
		return false
	}

	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.log.Warn("inline embedding failed", "session_id", sessionID, "error", err)
		return false
	}

	point := BuildPoint(userID, sessionID, content, float64(time.Now().Unix()), "immediate", vector)
	if err := client.Upsert(ctx, []qdrant.Point{point}); err != nil {
		s.log.Warn("inline upsert failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

// RetrieveSimilar embeds the query, runs a user-scoped vector search, and
// enriches the hits from the document store. Hits come back in backend
// (descending score) order; ties keep backend order.
func (s *Store) RetrieveSimilar(ctx context.Context, userID, query string, k int, minSim float64) []types.ScoredMemory {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if s.embedder == nil {
		return nil
	}
	client := s.vec.Client()
	if client == nil {
		return nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed", "user_id", userID, "error", err)
		return nil
	}

	hits, err := client.Search(ctx, vector, userID, 2*k, minSim)
	if err != nil {
		s.log.Warn("vector search failed", "user_id", userID, "error", err)
		return nil
	}
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]types.ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		sessionID, _ := hit.Payload["session_id"].(string)
		content, _ := hit.Payload["content"].(string)
		createdAt := payloadFloat(hit.Payload, "created_at")

		if sessionID != "" {
			doc, err := s.convs.GetBySessionID(ctx, sessionID)
			if err == nil && doc != nil {
				if doc.Summary != "" {
					content = doc.Summary
				}
				createdAt = float64(doc.UpdatedAt.Unix())
			}
		}

		out = append(out, types.ScoredMemory{
			Item: types.MemoryItem{
				ID:        hit.ID,
				UserID:    userID,
				SessionID: sessionID,
				Type:      types.MemoryInterSession,
				Content:   content,
				CreatedAt: createdAt,
				Metadata:  hit.Payload,
				Version:   1,
			},
			Score: hit.Score,
		})
	}
	return out
}

func payloadFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return float64(time.Now().Unix())
}

// BuildPoint assembles the vector point for one embedded conversation
// summary. Every attempt gets a fresh uuid, so a redelivered job adds a new
// content-identical point instead of corrupting an existing one.
func BuildPoint(userID, sessionID, content string, createdAt float64, source string, vector []float32) qdrant.Point {
	return qdrant.Point{
		ID:     uuid.NewString(),
		Vector: vector,
		Payload: map[string]any{
			"user_id":    userID,
			"session_id": sessionID,
			"content":    types.Truncate(content, payloadContentChars),
			"created_at": createdAt,
			"source":     source,
		},
	}
}
