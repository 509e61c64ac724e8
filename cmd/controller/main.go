package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
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
	"github.com/voyplan/memory-backend/internal/workers/controller"
	"github.com/voyplan/memory-backend/internal/workers/embedding"
	"github.com/voyplan/memory-backend/internal/workers/prefextract"
)

// rootOptions groups the scaling modes. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type rootOptions struct {
	Config string     `short:"f" long:"config" description:"optional YAML config path overlaying the environment"`
	Local  *localCmd  `command:"local" description:"Run a supervised worker pool in this process"`
	Docker *dockerCmd `command:"docker" description:"Scale the docker compose worker service"`
	AWS    *awsCmd    `command:"aws" description:"Print AWS ECS scaling commands"`
}

type localCmd struct {
	Queue   string `long:"queue" choice:"embedding" choice:"preference" default:"embedding" description:"which job stream to supervise"`
	Workers int    `long:"workers" default:"3" description:"number of consumer goroutines"`
	Group   string `long:"group" description:"consumer group (defaults per queue)"`
	Stream  string `long:"stream" description:"stream key (defaults per queue)"`
	StaleMS int    `long:"stale-ms" default:"120000" description:"reclaim entries pending longer than this"`
}

type dockerCmd struct {
	Files    []string `long:"file" description:"compose file (repeatable)"`
	Service  string   `long:"service" default:"worker" description:"compose service name"`
	Replicas int      `long:"replicas" default:"3" description:"desired worker count"`
}

type awsCmd struct {
	Cluster string `long:"cluster" required:"true" description:"ECS cluster name"`
	Service string `long:"service" required:"true" description:"ECS service name"`
	Count   int    `long:"count" default:"3" description:"desired task count"`
}

func main() {
	var opts rootOptions
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	switch {
	case opts.Local != nil:
		os.Exit(runLocal(opts.Config, opts.Local))
	case opts.Docker != nil:
		os.Exit(runDocker(opts.Docker))
	case opts.AWS != nil:
		os.Exit(runAWSHelp(opts.AWS))
	default:
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}
}

func runLocal(configPath string, cmd *localCmd) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	redis := conn.NewRedis(log, cfg)
	doc := conn.NewDoc(log, cfg)
	qd := conn.NewQdrant(log, cfg)
	str := streams.New(log, redis)
	defer func() {
		redis.Close()
		doc.Close()
		qd.Close()
	}()

	var (
		stream  string
		group   string
		factory controller.Factory
	)
	switch cmd.Queue {
	case "embedding":
		stream = cfg.EmbeddingQueue
		group = embedding.DefaultGroup
		var embedder ai.Embedder
		if e, err := ai.NewEmbedder(log, ai.Options{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			EmbedModel: cfg.EmbedModel,
			VectorDim:  cfg.VectorDim,
		}); err != nil {
			log.Warn("embedder unavailable, jobs will stay pending", "error", err)
		} else {
			embedder = e
		}
		factory = func(consumer string) controller.Runner {
			return embedding.NewWorker(log, cfg, str, qd, embedder, embedding.Options{
				Stream:   stream,
				Group:    group,
				Consumer: consumer,
			})
		}

	case "preference":
		stream = cfg.PrefQueue
		group = prefextract.DefaultGroup
		convs := repos.NewConversationRepo(doc, log)
		prefs := preferences.NewStore(log, cfg, repos.NewPreferenceRepo(doc, log), redis, str)
		var extractor ai.Extractor
		if cfg.EnablePrefLLMExtraction {
			if x, err := ai.NewExtractor(log, ai.Options{
				APIKey:       cfg.OpenAIAPIKey,
				BaseURL:      cfg.OpenAIBaseURL,
				ExtractModel: cfg.ExtractModel,
			}); err != nil {
				log.Warn("llm extraction unavailable, heuristics only", "error", err)
			} else {
				extractor = x
			}
		}
		factory = func(consumer string) controller.Runner {
			return prefextract.NewWorker(log, cfg, str, convs, prefs, extractor, prefextract.Options{
				Stream:   stream,
				Group:    group,
				Consumer: consumer,
			})
		}
	}
	if cmd.Group != "" {
		group = cmd.Group
	}
	if cmd.Stream != "" {
		stream = cmd.Stream
	}

	sup := controller.NewSupervisor(log, str, stream, group, factory, controller.Options{
		Workers:    cmd.Workers,
		StaleAfter: time.Duration(cmd.StaleMS) * time.Millisecond,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("supervisor exited", "error", err)
			return 1
		}
	case <-ctx.Done():
		// Bounded shutdown: give the pool a moment to drain in-flight entries.
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Warn("shutdown timed out, abandoning in-flight entries")
		}
	}
	return 0
}

func runDocker(cmd *dockerCmd) int {
	args := []string{"compose"}
	for _, f := range cmd.Files {
		args = append(args, "-f", f)
	}
	args = append(args, "up", "-d", "--scale", fmt.Sprintf("%s=%d", cmd.Service, cmd.Replicas))

	fmt.Fprintln(os.Stderr, "running: docker "+strings.Join(args, " "))
	c := exec.Command("docker", args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "docker compose failed: %v\n", err)
		return 1
	}
	return 0
}

func runAWSHelp(cmd *awsCmd) int {
	fmt.Println("AWS ECS scaling:")
	fmt.Printf("  aws ecs update-service --cluster %s --service %s --desired-count %d\n", cmd.Cluster, cmd.Service, cmd.Count)
	fmt.Println("For ad-hoc tasks instead of a service:")
	fmt.Println("  aws ecs run-task --cluster <cluster> --launch-type FARGATE \\")
	fmt.Println("    --task-definition <worker-task-def> \\")
	fmt.Println("    --network-configuration 'awsvpcConfiguration={subnets=[subnet-xxx],securityGroups=[sg-xxx],assignPublicIp=ENABLED}'")
	return 0
}
