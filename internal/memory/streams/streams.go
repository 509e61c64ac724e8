package streams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
)

// Streams wraps the Redis Streams operations shared by the producers (store
// enqueue paths), the consumers (workers), and the supervisor (autoclaim).
type Streams struct {
	log   *logger.Logger
	redis *conn.Redis
}

func New(log *logger.Logger, redis *conn.Redis) *Streams {
	return &Streams{
		log:   log.With("service", "Streams"),
		redis: redis,
	}
}

var errUnavailable = errors.New("redis unavailable")

// Publish appends one entry to a stream.
func (s *Streams) Publish(ctx context.Context, stream string, fields map[string]any) error {
	client := s.redis.Client()
	if client == nil {
		return errUnavailable
	}
	return client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Err()
}

// EnsureGroup creates the consumer group at the start of the stream, creating
// the stream itself when absent. An already-existing group is not an error.
func (s *Streams) EnsureGroup(ctx context.Context, stream, group string) error {
	client := s.redis.Client()
	if client == nil {
		return errUnavailable
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %q on %q: %w", group, stream, err)
	}
	return nil
}

// ReadGroup fetches up to count new entries for consumer, blocking up to
// block. A blocked read that times out returns an empty slice.
func (s *Streams) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]goredis.XMessage, error) {
	client := s.redis.Client()
	if client == nil {
		return nil, errUnavailable
	}
	res, err := client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []goredis.XMessage
	for _, st := range res {
		out = append(out, st.Messages...)
	}
	return out, nil
}

func (s *Streams) Ack(ctx context.Context, stream, group, id string) error {
	client := s.redis.Client()
	if client == nil {
		return errUnavailable
	}
	return client.XAck(ctx, stream, group, id).Err()
}

// AutoClaim transfers ownership of pending entries idle longer than minIdle
// to consumer, without acking them. Returns the number of entries claimed.
func (s *Streams) AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) (int, error) {
	client := s.redis.Client()
	if client == nil {
		return 0, errUnavailable
	}
	start := "0-0"
	total := 0
	for {
		msgs, next, err := client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    count,
		}).Result()
		if err != nil {
			return total, err
		}
		total += len(msgs)
		if next == "0-0" || len(msgs) == 0 {
			return total, nil
		}
		start = next
	}
}

// Depth returns the stream length, for diagnostics.
func (s *Streams) Depth(ctx context.Context, stream string) (int64, error) {
	client := s.redis.Client()
	if client == nil {
		return 0, errUnavailable
	}
	return client.XLen(ctx, stream).Result()
}

// PendingCount returns the number of delivered-but-unacked entries for group.
func (s *Streams) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	client := s.redis.Client()
	if client == nil {
		return 0, errUnavailable
	}
	pending, err := client.XPending(ctx, stream, group).Result()
	if err != nil {
		return 0, err
	}
	return pending.Count, nil
}

// IsUnavailable reports whether err marks a missing Redis backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, errUnavailable)
}
