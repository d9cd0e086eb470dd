package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/urfave/cli/v2"

	"github.com/kadena-io/chainweb-indexer/internal/backfill"
	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
	"github.com/kadena-io/chainweb-indexer/internal/concurrency"
	"github.com/kadena-io/chainweb-indexer/internal/config"
	"github.com/kadena-io/chainweb-indexer/internal/logging"
	"github.com/kadena-io/chainweb-indexer/internal/pubsub"
	"github.com/kadena-io/chainweb-indexer/internal/storage"
)

// applyFlagOverrides calls os.Setenv for every flag the caller actually set, so
// config.FromEnv (the single source of truth for defaults and required-ness)
// stays the only place that validates configuration. Flags win over
// whatever the process environment already carries.
func applyFlagOverrides(c *cli.Context) {
	for _, f := range []struct {
		flag, env string
	}{
		{flagBaseURL, "SYNC_BASE_URL"},
		{flagNetwork, "SYNC_NETWORK"},
		{flagDatabaseURL, "DATABASE_URL"},
		{flagBucket, "SYNC_OBJECT_STORE_BUCKET"},
		{flagRegion, "SYNC_OBJECT_STORE_REGION"},
		{flagEndpoint, "SYNC_OBJECT_STORE_ENDPOINT"},
		{flagMinHeight, "SYNC_MIN_HEIGHT"},
		{flagFetchInterval, "SYNC_FETCH_INTERVAL_IN_BLOCKS"},
		{flagSleepMS, "SLEEP_INTERVAL_MS"},
		{flagChainCount, "SYNC_CHAIN_COUNT"},
	} {
		if c.IsSet(f.flag) {
			setenv(f.env, c.String(f.flag))
		}
	}
}

// bootstrap is the shared state every subcommand assembles from Config:
// a DB pool with the schema migrated, a node HTTP client, the object store,
// the publication bus and a root logger. Subcommands close store.Store
// themselves via defer.
type bootstrap struct {
	cfg    *config.Config
	store  *storage.Store
	client *chainweb.Client
	os     backfill.ObjectStore
	bus    *pubsub.Bus
	sem    *concurrency.Semaphore
	log    logging.Logger
}

func newBootstrap(ctx context.Context, c *cli.Context) (*bootstrap, error) {
	applyFlagOverrides(c)

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	root := rootLogger(c)

	store, err := storage.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	os, err := newObjectStore(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("configuring object store: %w", err)
	}

	return &bootstrap{
		cfg:    cfg,
		store:  store,
		client: chainweb.NewClient(cfg.BaseURL, cfg.Network),
		os:     os,
		bus:    pubsub.NewBus(),
		sem:    concurrency.NewSemaphore(cfg.MaxConcurrentFetch),
		log:    root,
	}, nil
}

func (b *bootstrap) Close() { b.store.Close() }

func newObjectStore(ctx context.Context, cfg *config.Config) (backfill.ObjectStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.ObjectStoreRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.ObjectStoreRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ObjectStoreEndpoint != "" {
			o.BaseEndpoint = &cfg.ObjectStoreEndpoint
		}
	})
	return backfill.NewS3Store(client, cfg.ObjectStoreBucket), nil
}
