package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/intersession"
	"github.com/voyplan/memory-backend/internal/memory/streams"
	"github.com/voyplan/memory-backend/internal/platform/ai"
	"github.com/voyplan/memory-backend/internal/platform/qdrant"
	"github.com/voyplan/memory-backend/internal/types"
)

const (
	// DefaultGroup is the consumer group shared by all embedding workers.
	DefaultGroup = "embedding_workers"

	readErrorBackoff = time.Second
)

// VectorSource hands out the shared vector index client; nil means the
// backend is currently unavailable.
type VectorSource interface {
	Client() qdrant.Client
}

// Worker drains embedding jobs from the stream, embeds the content, and
// upserts the resulting point. At-least-once: an entry is acked only after a
// successful upsert, so a crash mid-job leaves it pending for autoclaim.
type Worker struct {
	log      *logger.Logger
	streams  *streams.Streams
	vec      VectorSource
	embedder ai.Embedder

	stream   string
	group    string
	consumer string
	batch    int64
	block    time.Duration
}

type Options struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int64
	Block    time.Duration
}

func NewWorker(
	log *logger.Logger,
	cfg *config.Config,
	str *streams.Streams,
	vec VectorSource,
	embedder ai.Embedder,
	opts Options,
) *Worker {
	if opts.Stream == "" {
		opts.Stream = cfg.EmbeddingQueue
	}
	if opts.Group == "" {
		opts.Group = DefaultGroup
	}
	if opts.Consumer == "" {
		opts.Consumer = "worker-1"
	}
	if opts.Batch <= 0 {
		opts.Batch = int64(cfg.EmbeddingBatchSize)
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	return &Worker{
		log:      log.With("worker", "Embedding", "consumer", opts.Consumer),
		streams:  str,
		vec:      vec,
		embedder: embedder,
		stream:   opts.Stream,
		group:    opts.Group,
		consumer: opts.Consumer,
		batch:    opts.Batch,
		block:    opts.Block,
	}
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.streams.EnsureGroup(ctx, w.stream, w.group); err != nil {
		return err
	}
	w.log.Info("embedding worker started", "stream", w.stream, "group", w.group)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("embedding worker stopping")
			return ctx.Err()
		default:
		}

		entries, err := w.streams.ReadGroup(ctx, w.stream, w.group, w.consumer, w.batch, w.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("read failed", "stream", w.stream, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if w.HandleEntry(ctx, entry.Values) {
				if err := w.streams.Ack(ctx, w.stream, w.group, entry.ID); err != nil {
					w.log.Warn("ack failed", "entry_id", entry.ID, "error", err)
				}
			}
		}
	}
}

// HandleEntry processes one stream entry and reports whether it should be
// acked. Malformed entries are acked so a poison message cannot wedge the
// group; transient failures (embedding, upsert, missing backends) leave the
// entry pending for redelivery.
func (w *Worker) HandleEntry(ctx context.Context, fields map[string]any) bool {
	job, err := types.EmbeddingJobFromFields(fields)
	if err != nil {
		w.log.Warn("discarding malformed job", "error", err)
		return true
	}
	if strings.TrimSpace(job.Content) == "" {
		w.log.Debug("nothing to embed, acking", "session_id", job.SessionID)
		return true
	}

	if w.embedder == nil {
		w.log.Warn("no embedder configured, leaving job pending", "session_id", job.SessionID)
		return false
	}
	client := w.vec.Client()
	if client == nil {
		w.log.Warn("vector index unavailable, leaving job pending", "session_id", job.SessionID)
		return false
	}

	vector, err := w.embedder.Embed(ctx, job.Content)
	if err != nil {
		w.log.Warn("embedding failed, leaving job pending", "session_id", job.SessionID, "error", err)
		return false
	}

	createdAt := job.CreatedAt
	if createdAt == 0 {
		createdAt = float64(time.Now().Unix())
	}
	point := intersession.BuildPoint(job.UserID, job.SessionID, job.Content, createdAt, "embedding_worker", vector)
	if err := client.Upsert(ctx, []qdrant.Point{point}); err != nil {
		w.log.Warn("upsert failed, leaving job pending", "session_id", job.SessionID, "error", err)
		return false
	}

	w.log.Debug("embedded conversation", "user_id", job.UserID, "session_id", job.SessionID)
	return true
}
