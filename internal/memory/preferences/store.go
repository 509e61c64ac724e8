package preferences

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/memory/streams"
	"github.com/voyplan/memory-backend/internal/repos"
	"github.com/voyplan/memory-backend/internal/types"
)

const cacheTTL = 3600 * time.Second

// Store keeps per-user preference maps in the document store with optimistic
// versioning, fronted by a Redis read-through cache.
type Store struct {
	log     *logger.Logger
	cfg     *config.Config
	repo    repos.PreferenceRepo
	redis   *conn.Redis
	streams *streams.Streams
}

func NewStore(
	log *logger.Logger,
	cfg *config.Config,
	repo repos.PreferenceRepo,
	redis *conn.Redis,
	str *streams.Streams,
) *Store {
	return &Store{
		log:     log.With("store", "Preferences"),
		cfg:     cfg,
		repo:    repo,
		redis:   redis,
		streams: str,
	}
}

func cacheKey(userID string) string {
	return "pref:" + userID
}

// Get returns the preference map decorated with its version under _version,
// or nil when the user has no stored preferences. Reads go cache first, then
// the document store, warming the cache on the way back.
func (s *Store) Get(ctx context.Context, userID string) map[string]any {
	if s.cfg.EnableRedisCache {
		if cached := s.readCache(ctx, userID); cached != nil {
			return cached
		}
	}

	doc, err := s.repo.Get(ctx, userID)
	if err != nil {
		s.log.Warn("preference read failed", "user_id", userID, "error", err)
		return nil
	}
	if doc == nil {
		return nil
	}

	out := make(map[string]any, len(doc.Preferences)+1)
	for k, v := range doc.Preferences {
		out[k] = v
	}
	out[types.VersionKey] = doc.Version

	if s.cfg.EnableRedisCache {
		s.warmCache(ctx, userID, out)
	}
	return out
}

// Set writes the full preference map. With expectedVersion nil this is a
// blind upsert; otherwise it is a compare-and-set that fails without side
// effects when the stored version moved. Either success path bumps the
// version by exactly one and invalidates the cache.
func (s *Store) Set(ctx context.Context, userID string, prefs map[string]any, expectedVersion *int) bool {
	clean := make(map[string]any, len(prefs))
	for k, v := range prefs {
		if k == types.VersionKey {
			continue
		}
		clean[k] = v
	}

	if expectedVersion == nil {
		if err := s.repo.UpsertBlind(ctx, userID, clean); err != nil {
			s.log.Warn("preference upsert failed", "user_id", userID, "error", err)
			return false
		}
	} else {
		ok, err := s.repo.UpdateWithVersion(ctx, userID, clean, *expectedVersion)
		if err != nil {
			s.log.Warn("preference cas failed", "user_id", userID, "error", err)
			return false
		}
		if !ok {
			s.log.Debug("preference version conflict", "user_id", userID, "expected_version", *expectedVersion)
			return false
		}
	}

	s.invalidateCache(ctx, userID)
	return true
}

// UpdateOne is the read-modify-write convenience for a single key. It writes
// without a version check: last writer wins.
func (s *Store) UpdateOne(ctx context.Context, userID, key string, value any) bool {
	prefs := s.Get(ctx, userID)
	if prefs == nil {
		prefs = map[string]any{}
	}
	prefs[key] = value
	return s.Set(ctx, userID, prefs, nil)
}

// EnqueueExtraction publishes a preference-mining job for a finalized
// session. Gated by the extraction feature flag.
func (s *Store) EnqueueExtraction(ctx context.Context, userID, sessionID string) bool {
	if !s.cfg.EnablePrefExtraction {
		return false
	}
	job := types.PrefJob{UserID: userID, SessionID: sessionID}
	if err := s.streams.Publish(ctx, s.cfg.PrefQueue, job.Fields()); err != nil {
		s.log.Warn("queue extraction failed", "user_id", userID, "session_id", sessionID, "error", err)
		return false
	}
	s.log.Debug("queued extraction job", "user_id", userID, "session_id", sessionID)
	return true
}

// Version pulls the _version decoration out of a preference map read via Get.
// JSON round-trips may have widened it to float64.
func Version(prefs map[string]any) (int, bool) {
	switch v := prefs[types.VersionKey].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func (s *Store) readCache(ctx context.Context, userID string) map[string]any {
	client := s.redis.Client()
	if client == nil {
		return nil
	}
	raw, err := client.Get(ctx, cacheKey(userID)).Result()
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Warn("bad preference cache payload", "user_id", userID, "error", err)
		return nil
	}
	s.log.Debug("preference cache hit", "user_id", userID)
	return out
}

func (s *Store) warmCache(ctx context.Context, userID string, prefs map[string]any) {
	client := s.redis.Client()
	if client == nil {
		return
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return
	}
	if err := client.Set(ctx, cacheKey(userID), raw, cacheTTL).Err(); err != nil {
		s.log.Warn("preference cache warm failed", "user_id", userID, "error", err)
	}
}

func (s *Store) invalidateCache(ctx context.Context, userID string) {
	if !s.cfg.EnableRedisCache {
		return
	}
	client := s.redis.Client()
	if client == nil {
		return
	}
	if err := client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		s.log.Warn("preference cache invalidate failed", "user_id", userID, "error", err)
	}
}
