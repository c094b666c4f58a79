package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"

	"github.com/censys/nmap-graph/pkg/graph"
	"github.com/censys/nmap-graph/pkg/graph/bolt"
	"github.com/censys/nmap-graph/pkg/graph/memgraph"
	pgstore "github.com/censys/nmap-graph/pkg/graph/postgres"
	"github.com/censys/nmap-graph/pkg/loader"
	"github.com/censys/nmap-graph/pkg/report"
	"github.com/censys/nmap-graph/pkg/slogger"
)

// Exit codes.
const (
	exitOK      = 0
	exitFatal   = 1
	exitUsage   = 2
	exitPartial = 3

	// 128+SIGINT, as shells report an interrupted command
	exitInterrupted = 130
)

// storeOpener is replaced in tests to inject a store.
var storeOpener = openStore

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	envErr := godotenv.Load()

	cfg, err := loadConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "nmap-graph: %v\n", err)
		return exitUsage
	}
	slogger.Init(os.Stderr, cfg.LogLevel)
	if envErr != nil {
		slog.Debug("no .env file loaded", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := report.ReadFile(cfg.NmapFile)
	if err != nil {
		slog.Error("failed to read nmap scan file", "error", err)
		return exitFatal
	}
	hosts, err := loader.Hosts(raw)
	if err != nil {
		slog.Error("failed to parse nmap information", "file", cfg.NmapFile, "error", err)
		return exitFatal
	}

	session, closeStore, err := storeOpener(ctx, cfg)
	if err != nil {
		slog.Error("graph store unavailable", "store", cfg.Store, "error", err)
		return exitFatal
	}
	defer closeStore()

	dlq, closeDLQ, err := openDLQ(ctx, cfg)
	if err != nil {
		slog.Error("pubsub unavailable", "error", err)
		return exitFatal
	}
	defer closeDLQ()

	sum, err := loader.Sync(ctx, session, hosts, loader.Options{
		ExcludedIP: cfg.AttackingIP,
		DLQ:        dlq,
	})
	if mem, ok := session.(*memgraph.Store); ok {
		c := mem.Counts()
		slog.Info("dry run graph", "hosts", c.Hosts, "ports", c.Ports, "relationships", c.Relationships)
	}
	switch {
	case errors.Is(err, context.Canceled):
		slog.Error("load interrupted", "written", sum.Written, "failed", len(sum.Failed), "hosts", sum.Hosts)
		return exitInterrupted
	case err != nil:
		slog.Error("partial load", "failed", len(sum.Failed), "written", sum.Written)
		return exitPartial
	}
	return exitOK
}

func openStore(ctx context.Context, cfg config) (graph.Session, func(), error) {
	switch cfg.Store {
	case storePostgres:
		pool, err := pgstore.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store := pgstore.NewStore(pool)
		return store, store.Close, nil
	case storeMemory:
		return memgraph.New(), func() {}, nil
	default:
		driver, err := bolt.NewDriver(ctx, cfg.Neo4jURI(), cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			return nil, nil, err
		}
		store := bolt.NewStore(driver, cfg.Neo4jDB)
		store.EnsureIndexes(ctx)
		return store, func() {
			if err := driver.Close(context.Background()); err != nil {
				slog.Warn("closing neo4j driver", "error", err)
			}
		}, nil
	}
}

func openDLQ(ctx context.Context, cfg config) (loader.DLQPublisher, func(), error) {
	if cfg.DLQTopicID == "" {
		return &loader.NoopDLQPublisher{}, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.DLQTopicID)
	slog.Info("dead-lettering failed hosts", "project", cfg.ProjectID, "topic", cfg.DLQTopicID)
	return loader.NewPubSubDLQPublisher(topic), func() {
		topic.Stop()
		client.Close()
	}, nil
}
