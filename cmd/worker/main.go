package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/memory/preferences"
	"github.com/voyplan/memory-backend/internal/memory/streams"
	"github.com/voyplan/memory-backend/internal/platform/ai"
	"github.com/voyplan/memory-backend/internal/repos"
	"github.com/voyplan/memory-backend/internal/workers/embedding"
	"github.com/voyplan/memory-backend/internal/workers/prefextract"
)

type options struct {
	Config   string `short:"f" long:"config" description:"optional YAML config path overlaying the environment"`
	Queue    string `long:"queue" choice:"embedding" choice:"preference" default:"embedding" description:"which job stream to consume"`
	Group    string `long:"group" description:"consumer group (defaults per queue)"`
	Consumer string `long:"consumer" description:"consumer name (defaults to worker-<pid>)"`
	Batch    int64  `long:"batch" default:"0" description:"max entries per read (0 = config default)"`
	BlockMS  int    `long:"block-ms" default:"5000" description:"blocking read timeout in milliseconds"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if opts.Consumer == "" {
		opts.Consumer = fmt.Sprintf("worker-%d", os.Getpid())
	}

	redis := conn.NewRedis(log, cfg)
	doc := conn.NewDoc(log, cfg)
	qd := conn.NewQdrant(log, cfg)
	str := streams.New(log, redis)
	defer func() {
		redis.Close()
		doc.Close()
		qd.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var run func(context.Context) error
	switch opts.Queue {
	case "embedding":
		var embedder ai.Embedder
		e, err := ai.NewEmbedder(log, ai.Options{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			EmbedModel: cfg.EmbedModel,
			VectorDim:  cfg.VectorDim,
		})
		if err != nil {
			log.Warn("embedder unavailable, jobs will stay pending", "error", err)
		} else {
			embedder = e
		}
		w := embedding.NewWorker(log, cfg, str, qd, embedder, embedding.Options{
			Group:    opts.Group,
			Consumer: opts.Consumer,
			Batch:    opts.Batch,
			Block:    time.Duration(opts.BlockMS) * time.Millisecond,
		})
		run = w.Run

	case "preference":
		convs := repos.NewConversationRepo(doc, log)
		prefs := preferences.NewStore(log, cfg, repos.NewPreferenceRepo(doc, log), redis, str)
		var extractor ai.Extractor
		if cfg.EnablePrefLLMExtraction {
			x, err := ai.NewExtractor(log, ai.Options{
				APIKey:       cfg.OpenAIAPIKey,
				BaseURL:      cfg.OpenAIBaseURL,
				ExtractModel: cfg.ExtractModel,
			})
			if err != nil {
				log.Warn("llm extraction unavailable, heuristics only", "error", err)
			} else {
				extractor = x
			}
		}
		w := prefextract.NewWorker(log, cfg, str, convs, prefs, extractor, prefextract.Options{
			Group:    opts.Group,
			Consumer: opts.Consumer,
			Batch:    opts.Batch,
			Block:    time.Duration(opts.BlockMS) * time.Millisecond,
		})
		run = w.Run
	}

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker exited", "queue", opts.Queue, "error", err)
		os.Exit(1)
	}
}
