package intrasession

import (
	"context"
	"time"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/types"
)

// Store keeps the live conversation as an append-only Redis list under
// session:{session_id}. Every touch resets the TTL, so an active session
// never expires (sliding window). A missing backend degrades every operation
// to a no-op.
type Store struct {
	log   *logger.Logger
	redis *conn.Redis
	ttl   time.Duration
}

func NewStore(log *logger.Logger, redis *conn.Redis, cfg *config.Config) *Store {
	return &Store{
		log:   log.With("store", "IntraSession"),
		redis: redis,
		ttl:   time.Duration(cfg.IntraSessionTTL) * time.Second,
	}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Append pushes one message onto the session tail and resets the TTL.
func (s *Store) Append(ctx context.Context, sessionID string, msg types.Message) bool {
	client := s.redis.Client()
	if client == nil {
		return false
	}
	raw, err := msg.Encode()
	if err != nil {
		s.log.Warn("encode message failed", "session_id", sessionID, "error", err)
		return false
	}
	key := sessionKey(sessionID)
	if err := client.RPush(ctx, key, raw).Err(); err != nil {
		s.log.Warn("append failed", "session_id", sessionID, "error", err)
		return false
	}
	if err := client.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.log.Warn("ttl reset failed", "session_id", sessionID, "error", err)
	}
	return true
}

// List returns the last limit messages in insertion order, or all of them
// when limit <= 0. Entries that fail to decode are skipped.
func (s *Store) List(ctx context.Context, sessionID string, limit int) []types.Message {
	client := s.redis.Client()
	if client == nil {
		return nil
	}
	key := sessionKey(sessionID)
	var (
		raw []string
		err error
	)
	if limit > 0 {
		raw, err = client.LRange(ctx, key, int64(-limit), -1).Result()
	} else {
		raw, err = client.LRange(ctx, key, 0, -1).Result()
	}
	if err != nil {
		s.log.Warn("list failed", "session_id", sessionID, "error", err)
		return nil
	}
	out := make([]types.Message, 0, len(raw))
	for _, entry := range raw {
		msg, err := types.DecodeMessage(entry)
		if err != nil {
			s.log.Warn("skipping undecodable session entry", "session_id", sessionID, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Clear deletes the session log.
func (s *Store) Clear(ctx context.Context, sessionID string) bool {
	client := s.redis.Client()
	if client == nil {
		return false
	}
	if err := client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		s.log.Warn("clear failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

// Refresh resets the TTL without touching content.
func (s *Store) Refresh(ctx context.Context, sessionID string) bool {
	client := s.redis.Client()
	if client == nil {
		return false
	}
	if err := client.Expire(ctx, sessionKey(sessionID), s.ttl).Err(); err != nil {
		s.log.Warn("ttl refresh failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}
