package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/voyplan/memory-backend/internal/config"
	"github.com/voyplan/memory-backend/internal/logger"
	"github.com/voyplan/memory-backend/internal/memory/conn"
	"github.com/voyplan/memory-backend/internal/memory/streams"
	"github.com/voyplan/memory-backend/internal/repos"
	"github.com/voyplan/memory-backend/internal/workers/embedding"
	"github.com/voyplan/memory-backend/internal/workers/prefextract"
)

type options struct {
	Config  string `short:"f" long:"config" description:"optional YAML config path overlaying the environment"`
	Timeout int    `long:"timeout" default:"10" description:"overall timeout in seconds"`
}

// Prints a health report for the three memory backends and the job streams.
// Exit code 0 means every tier answered; 1 means at least one is down.
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

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	redis := conn.NewRedis(log, cfg)
	doc := conn.NewDoc(log, cfg)
	qd := conn.NewQdrant(log, cfg)
	str := streams.New(log, redis)
	defer func() {
		redis.Close()
		doc.Close()
		qd.Close()
	}()

	healthy := true

	fmt.Printf("redis        %s\n", cfg.RedisAddr())
	if redis.Client() == nil {
		healthy = false
		fmt.Println("  status: DOWN")
	} else {
		fmt.Println("  status: ok")
		for _, probe := range []struct {
			stream string
			group  string
		}{
			{cfg.EmbeddingQueue, embedding.DefaultGroup},
			{cfg.PrefQueue, prefextract.DefaultGroup},
		} {
			depth, err := str.Depth(ctx, probe.stream)
			if err != nil {
				fmt.Printf("  stream %-18s depth: error (%v)\n", probe.stream, err)
				continue
			}
			pending, err := str.PendingCount(ctx, probe.stream, probe.group)
			if err != nil {
				// No group yet means no worker has ever attached.
				fmt.Printf("  stream %-18s depth: %-5d pending: n/a\n", probe.stream, depth)
				continue
			}
			fmt.Printf("  stream %-18s depth: %-5d pending: %d\n", probe.stream, depth, pending)
		}
	}

	fmt.Printf("documents    %s\n", cfg.DocDriver)
	convs := repos.NewConversationRepo(doc, log)
	prefs := repos.NewPreferenceRepo(doc, log)
	if conversations, err := convs.Count(ctx); err != nil {
		healthy = false
		fmt.Printf("  status: DOWN (%v)\n", err)
	} else {
		users, _ := prefs.Count(ctx)
		fmt.Printf("  status: ok  conversations: %d  preference docs: %d\n", conversations, users)
	}

	fmt.Printf("vectors      %s\n", cfg.QdrantBaseURL())
	if client := qd.Client(); client == nil {
		healthy = false
		fmt.Println("  status: DOWN")
	} else if info, err := client.Info(ctx); err != nil {
		healthy = false
		fmt.Printf("  status: DOWN (%v)\n", err)
	} else {
		fmt.Printf("  status: ok  collection: %s  points: %d  dim: %d  distance: %s\n",
			cfg.QdrantCollection, info.PointsCount, info.VectorSize, info.Distance)
	}

	if !healthy {
		os.Exit(1)
	}
}
