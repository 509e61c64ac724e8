package controller

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/streams"
)

const (
	defaultWorkers       = 3
	defaultStaleAfter    = 120 * time.Second
	defaultClaimInterval = 5 * time.Second
	defaultClaimCount    = 50
	defaultRespawnDelay  = time.Second

	// claimConsumer is the supervisor's own consumer name. Entries it claims
	// are picked up on its workers' next read of the pending set.
	claimConsumer = "ctl"
)

// Runner is one consumer loop the supervisor keeps alive.
type Runner interface {
	Run(ctx context.Context) error
}

// Factory builds a fresh Runner for a consumer slot. Called again whenever
// the slot's runner dies and gets respawned.
type Factory func(consumer string) Runner

type Options struct {
	Workers       int
	StaleAfter    time.Duration
	ClaimInterval time.Duration
	ClaimCount    int64
	RespawnDelay  time.Duration
}

// Supervisor runs a fixed pool of consumers for one stream and reclaims
// entries stranded by dead consumers. Worker slots are named worker-1..N so
// the same pending entries land back on the same identities across restarts.
type Supervisor struct {
	log     *logger.Logger
	streams *streams.Streams
	factory Factory

	stream string
	group  string
	opts   Options
}

func NewSupervisor(log *logger.Logger, str *streams.Streams, stream, group string, factory Factory, opts Options) *Supervisor {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = defaultClaimInterval
	}
	if opts.ClaimCount <= 0 {
		opts.ClaimCount = defaultClaimCount
	}
	if opts.RespawnDelay <= 0 {
		opts.RespawnDelay = defaultRespawnDelay
	}
	return &Supervisor{
		log:     log.With("service", "Supervisor", "stream", stream),
		streams: str,
		factory: factory,
		stream:  stream,
		group:   group,
		opts:    opts,
	}
}

// Run blocks until ctx is cancelled, keeping the worker pool and the
// stale-entry reclaimer alive.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.streams.EnsureGroup(ctx, s.stream, s.group); err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}
	s.log.Info("supervisor started", "group", s.group, "workers", s.opts.Workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= s.opts.Workers; i++ {
		consumer := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return s.superviseSlot(ctx, consumer)
		})
	}
	g.Go(func() error {
		return s.reclaimLoop(ctx)
	})
	return g.Wait()
}

// superviseSlot keeps one consumer identity running, respawning the runner
// after an abnormal exit.
func (s *Supervisor) superviseSlot(ctx context.Context, consumer string) error {
	for {
		runner := s.factory(consumer)
		err := runner.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("worker exited, respawning", "consumer", consumer, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.RespawnDelay):
		}
	}
}

// reclaimLoop periodically transfers entries whose consumer went quiet back
// into circulation.
func (s *Supervisor) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.ClaimInterval)
	defer ticker.Stop()

	for {
		claimed, err := s.streams.AutoClaim(ctx, s.stream, s.group, claimConsumer, s.opts.StaleAfter, s.opts.ClaimCount)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("autoclaim failed", "error", err)
		} else if claimed > 0 {
			s.log.Info("reclaimed stale entries", "count", claimed)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
