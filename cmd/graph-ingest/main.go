// Command graph-ingest runs the Anchored-Event Intake pipeline: it wires
// the graph store, event store, caches, and metrics together and starts a
// worker pool plus a reconciliation sweep, following the teacher's
// cmd/indexer entrypoint shape (load config, build service, start, wait
// for a signal, stop).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/chainledger/musicgraph/domain/intake"
	"github.com/chainledger/musicgraph/domain/role"
	"github.com/chainledger/musicgraph/infrastructure/dedupcache"
	"github.com/chainledger/musicgraph/infrastructure/eventstore"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
	"github.com/chainledger/musicgraph/infrastructure/metrics"
	"github.com/chainledger/musicgraph/internal/config"
)

func main() {
	log := logrus.WithField("app", "graph-ingest")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildGraphStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("build graph store")
	}
	defer store.Close(ctx)

	if err := store.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("ensure graph schema")
	}

	dedup, err := dedupcache.New(cfg.DedupCacheSize)
	if err != nil {
		log.WithError(err).Fatal("build dedup cache")
	}

	roleTable, err := role.LoadTable(os.Getenv("ROLE_TABLE_PATH"))
	if err != nil {
		log.WithError(err).Fatal("load role table")
	}

	m := metrics.Init("graph-ingest")

	events := eventstore.NewFake()

	in := intake.New(store, events, dedup, roleTable, m)
	pool := intake.NewPool(in, cfg.Workers, cfg.Workers*4)
	pool.Start(ctx)
	defer pool.Stop()

	reconciler, err := intake.NewReconciler(in, cfg.ReconcileCron, cfg.RetryBudget, cfg.RetryBackoff)
	if err != nil {
		log.WithError(err).Fatal("build reconciler")
	}
	reconciler.Start()
	defer reconciler.Stop()

	log.WithField("workers", cfg.Workers).Info("graph-ingest started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
}

// buildGraphStore selects the in-memory Fake only in dev mode with no
// GRAPH_URI set, and Neo4jStore otherwise (in prod mode GRAPH_URI is
// required by config.Validate), so graph-ingest can
// run standalone without a live Neo4j instance during local development.
func buildGraphStore(ctx context.Context, cfg *config.Config) (graphstore.Store, error) {
	if cfg.IsDev() && cfg.GraphURI == "" {
		return graphstore.NewFake(), nil
	}
	return graphstore.NewNeo4jStore(ctx, cfg.GraphURI, cfg.GraphUser, cfg.GraphPassword, cfg.GraphPoolSize)
}
