package intrasession

import (
	"context"
	"testing"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/types"
)

func TestSessionKey(t *testing.T) {
	if got := sessionKey("abc"); got != "session:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

// With no Redis reachable every operation must degrade to a no-op instead of
// surfacing an error to the chat path.
func TestStoreDegradesWithoutBackend(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	// Port 1 refuses immediately, so the single dial attempt is fast.
	cfg := &config.Config{RedisHost: "127.0.0.1", RedisPort: 1, IntraSessionTTL: 7200}
	redis := conn.NewRedis(log, cfg)
	defer redis.Close()

	s := NewStore(log, redis, cfg)
	ctx := context.Background()

	if s.Append(ctx, "s1", types.Message{Type: types.MessageUser, Content: "hi"}) {
		t.Fatal("append must report false without a backend")
	}
	if got := s.List(ctx, "s1", 0); got != nil {
		t.Fatalf("list must be empty without a backend, got %v", got)
	}
	if s.Clear(ctx, "s1") {
		t.Fatal("clear must report false without a backend")
	}
	if s.Refresh(ctx, "s1") {
		t.Fatal("refresh must report false without a backend")
	}
}
