package prefextract

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/preferences"
	"github.com/voyplan/memory-backend/internal/memory/streams"
	"github.com/voyplan/memory-backend/internal/platform/ai"
	"github.com/voyplan/memory-backend/internal/types"
)

const (
	// DefaultGroup is the consumer group shared by all extraction workers.
	DefaultGroup = "pref_extractors"

	readErrorBackoff = time.Second
)

// ConversationSource loads finalized conversations for mining.
type ConversationSource interface {
	GetBySessionID(ctx context.Context, sessionID string) (*types.ConversationDocument, error)
}

// PreferenceSink is the versioned preference surface the worker commits
// through.
type PreferenceSink interface {
	Get(ctx context.Context, userID string) map[string]any
	Set(ctx context.Context, userID string, prefs map[string]any, expectedVersion *int) bool
}

// Worker consumes preference-extraction jobs: load the finalized
// conversation, mine preferences (heuristics plus optional LLM), and commit
// them with a compare-and-set against the version it read. A lost CAS race is
// acked, not retried: the overlapping writer observed a newer state.
type Worker struct {
	log       *logger.Logger
	streams   *streams.Streams
	convs     ConversationSource
	prefs     PreferenceSink
	extractor ai.Extractor // nil disables LLM extraction

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
	convs ConversationSource,
	prefs PreferenceSink,
	extractor ai.Extractor,
	opts Options,
) *Worker {
	if opts.Stream == "" {
		opts.Stream = cfg.PrefQueue
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
		opts.Block = 2 * time.Second
	}
	return &Worker{
		log:       log.With("worker", "PrefExtract", "consumer", opts.Consumer),
		streams:   str,
		convs:     convs,
		prefs:     prefs,
		extractor: extractor,
		stream:    opts.Stream,
		group:     opts.Group,
		consumer:  opts.Consumer,
		batch:     opts.Batch,
		block:     opts.Block,
	}
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.streams.EnsureGroup(ctx, w.stream, w.group); err != nil {
		return err
	}
	w.log.Info("preference worker started", "stream", w.stream, "group", w.group)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("preference worker stopping")
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

// HandleEntry mines one job and reports whether it should be acked. Only a
// document-store outage leaves the entry pending; malformed jobs, missing
// conversations, empty extractions, and lost version races are all acked.
func (w *Worker) HandleEntry(ctx context.Context, fields map[string]any) bool {
	job, err := types.PrefJobFromFields(fields)
	if err != nil {
		w.log.Warn("discarding malformed job", "error", err)
		return true
	}

	doc, err := w.convs.GetBySessionID(ctx, job.SessionID)
	if err != nil {
		w.log.Warn("conversation lookup failed, leaving job pending", "session_id", job.SessionID, "error", err)
		return false
	}
	if doc == nil {
		w.log.Debug("conversation gone, skipping", "session_id", job.SessionID)
		return true
	}

	var msgs []types.Message
	if err := json.Unmarshal([]byte(doc.Messages), &msgs); err != nil {
		w.log.Warn("undecodable conversation, skipping", "session_id", job.SessionID, "error", err)
		return true
	}

	extracted := Merge(ExtractHeuristics(msgs), ExtractLLM(ctx, w.extractor, msgs))
	if len(extracted) == 0 {
		return true
	}

	current := w.prefs.Get(ctx, job.UserID)
	var expected *int
	if v, ok := preferences.Version(current); ok {
		expected = &v
	}
	base := make(map[string]any, len(current))
	for k, v := range current {
		if k == types.VersionKey {
			continue
		}
		base[k] = v
	}

	if w.prefs.Set(ctx, job.UserID, Merge(base, extracted), expected) {
		w.log.Info("preferences updated", "user_id", job.UserID, "keys", keysOf(extracted))
	} else {
		w.log.Debug("preference write lost the version race", "user_id", job.UserID)
	}
	return true
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
