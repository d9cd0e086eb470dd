// Command chainweb-indexer runs the four ingestion pipelines of the
// chainweb indexer — Archive Backfiller, Tip Streamer, Gap Filler and
// Guards Reconciler — either individually or all together, following the
// teacher's cmd/geth convention of one binary, one cli.App, one
// subcommand per concern.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kadena-io/chainweb-indexer/internal/backfill"
	"github.com/kadena-io/chainweb-indexer/internal/chainweb"
	"github.com/kadena-io/chainweb-indexer/internal/daemon"
	"github.com/kadena-io/chainweb-indexer/internal/gapfill"
	"github.com/kadena-io/chainweb-indexer/internal/guards"
	"github.com/kadena-io/chainweb-indexer/internal/logging"
	"github.com/kadena-io/chainweb-indexer/internal/streamer"
)

const (
	flagBaseURL       = "base-url"
	flagNetwork       = "network"
	flagDatabaseURL   = "database-url"
	flagBucket        = "object-store-bucket"
	flagRegion        = "object-store-region"
	flagEndpoint      = "object-store-endpoint"
	flagMinHeight     = "min-height"
	flagFetchInterval = "fetch-interval-in-blocks"
	flagSleepMS       = "sleep-interval-ms"
	flagChainCount    = "chain-count"
	flagVerbosity     = "verbosity"
	flagLogFile       = "log-file"

	flagChainID = "chain-id"
	flagPrefix  = "prefix"
)

var globalFlags = []cli.Flag{
	&cli.StringFlag{Name: flagBaseURL, Usage: "node HTTP API base URL (SYNC_BASE_URL)"},
	&cli.StringFlag{Name: flagNetwork, Usage: "chainweb network name, e.g. mainnet01 (SYNC_NETWORK)"},
	&cli.StringFlag{Name: flagDatabaseURL, Usage: "postgres connection string (DATABASE_URL)"},
	&cli.StringFlag{Name: flagBucket, Usage: "archive object store bucket (SYNC_OBJECT_STORE_BUCKET)"},
	&cli.StringFlag{Name: flagRegion, Usage: "archive object store region (SYNC_OBJECT_STORE_REGION)"},
	&cli.StringFlag{Name: flagEndpoint, Usage: "archive object store endpoint, for S3-compatible stores (SYNC_OBJECT_STORE_ENDPOINT)"},
	&cli.StringFlag{Name: flagMinHeight, Usage: "lowest height the Gap Filler will ever repair (SYNC_MIN_HEIGHT)"},
	&cli.StringFlag{Name: flagFetchInterval, Usage: "gap-fill chunk size, in blocks (SYNC_FETCH_INTERVAL_IN_BLOCKS)"},
	&cli.StringFlag{Name: flagSleepMS, Usage: "daemon tick interval, in milliseconds (SLEEP_INTERVAL_MS)"},
	&cli.StringFlag{Name: flagChainCount, Usage: "number of chains in the network (SYNC_CHAIN_COUNT)"},
	&cli.IntFlag{Name: flagVerbosity, Value: 2, Usage: "log verbosity: 0=error 1=warn 2=info 3=debug 4=trace"},
	&cli.StringFlag{Name: flagLogFile, Usage: "rotate logs to this path instead of stderr (via lumberjack)"},
}

func main() {
	app := &cli.App{
		Name:  "chainweb-indexer",
		Usage: "ingest and reconcile a chainweb network into a relational store",
		Flags: globalFlags,
		Commands: []*cli.Command{
			backfillCommand,
			streamCommand,
			gapfillCommand,
			reconcileGuardsCommand,
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "chainweb-indexer:", err)
		os.Exit(1)
	}
}

var backfillCommand = &cli.Command{
	Name:  "backfill",
	Usage: "run the Archive Backfiller for one (chain, prefix), re-running it every sleep interval until interrupted",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: flagChainID, Required: true, Usage: "chain to backfill"},
		&cli.StringFlag{Name: flagPrefix, Required: true, Usage: "object-store key prefix for this chain"},
	},
	Action: func(c *cli.Context) error {
		ctx, stop := signalContext()
		defer stop()

		b, err := newBootstrap(ctx, c)
		if err != nil {
			return err
		}
		defer b.Close()

		bf := backfill.New(backfill.Config{
			Network:            b.cfg.Network,
			ChainID:            c.Int(flagChainID),
			Prefix:             c.String(flagPrefix),
			MaxConcurrentFetch: b.cfg.MaxConcurrentMaterialise,
		}, b.store, b.os, b.bus, b.log.New("area", "backfill"))

		daemon.Run(ctx, b.log, b.cfg.SleepInterval, bf.Run)
		return nil
	},
}

var streamCommand = &cli.Command{
	Name:  "stream",
	Usage: "run the Tip Streamer, consuming the node's block-updates SSE feed",
	Action: func(c *cli.Context) error {
		ctx, stop := signalContext()
		defer stop()

		b, err := newBootstrap(ctx, c)
		if err != nil {
			return err
		}
		defer b.Close()

		sse := chainweb.NewSSEReader(b.client.HTTPClient(), b.cfg.BaseURL, b.cfg.Network)
		s := streamer.New(streamer.Config{Network: b.cfg.Network}, b.store, sse, b.bus, b.log.New("area", "streamer"))
		s.ReconcileGuards = guards.New(b.store, b.client, b.sem, b.log.New("area", "guards")).Run

		return s.Run(ctx)
	},
}

var gapfillCommand = &cli.Command{
	Name:  "gapfill",
	Usage: "run the Gap Filler, periodically detecting and repairing missing height ranges",
	Action: func(c *cli.Context) error {
		ctx, stop := signalContext()
		defer stop()

		b, err := newBootstrap(ctx, c)
		if err != nil {
			return err
		}
		defer b.Close()

		gf := gapfill.New(gapfill.Config{
			Network:               b.cfg.Network,
			ChainCount:            b.cfg.ChainCount,
			MinHeight:             b.cfg.MinHeight,
			FetchIntervalInBlocks: b.cfg.FetchIntervalInBlocks,
		}, b.store, b.client, b.sem, b.bus, b.log.New("area", "gapfill"))

		daemon.Run(ctx, b.log, b.cfg.SleepInterval, gf.Tick)
		return nil
	},
}

var reconcileGuardsCommand = &cli.Command{
	Name:  "reconcile-guards",
	Usage: "run the Guards Reconciler once, rebuilding the guards table wholesale",
	Action: func(c *cli.Context) error {
		ctx, stop := signalContext()
		defer stop()

		b, err := newBootstrap(ctx, c)
		if err != nil {
			return err
		}
		defer b.Close()

		return guards.New(b.store, b.client, b.sem, b.log.New("area", "guards")).Run(ctx)
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run the Tip Streamer and Gap Filler together (the Guards Reconciler is scheduled by the streamer)",
	Action: func(c *cli.Context) error {
		ctx, stop := signalContext()
		defer stop()

		b, err := newBootstrap(ctx, c)
		if err != nil {
			return err
		}
		defer b.Close()

		sse := chainweb.NewSSEReader(b.client.HTTPClient(), b.cfg.BaseURL, b.cfg.Network)
		s := streamer.New(streamer.Config{Network: b.cfg.Network}, b.store, sse, b.bus, b.log.New("area", "streamer"))
		s.ReconcileGuards = guards.New(b.store, b.client, b.sem, b.log.New("area", "guards")).Run

		gf := gapfill.New(gapfill.Config{
			Network:               b.cfg.Network,
			ChainCount:            b.cfg.ChainCount,
			MinHeight:             b.cfg.MinHeight,
			FetchIntervalInBlocks: b.cfg.FetchIntervalInBlocks,
		}, b.store, b.client, b.sem, b.bus, b.log.New("area", "gapfill"))

		errc := make(chan error, 1)
		go func() {
			errc <- s.Run(ctx)
		}()
		go daemon.Run(ctx, b.log, b.cfg.SleepInterval, gf.Tick)

		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		}
	},
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func setenv(key, value string) {
	if value == "" {
		return
	}
	_ = os.Setenv(key, value)
}

// rootLogger builds the process-wide root logger from the verbosity and
// log-file flags, the one piece of configuration that deliberately isn't
// sourced from the environment: it's an operator-local concern, not part
// of the network identity config.FromEnv validates.
func rootLogger(c *cli.Context) logging.Logger {
	w := io.Writer(os.Stderr)
	if path := c.String(flagLogFile); path != "" {
		w = logging.FileWriter(path)
	}

	glog := logging.NewGlogHandler(logging.NewTerminalHandler(w))
	glog.Verbosity(verbosityLevel(c.Int(flagVerbosity)))
	return logging.New("root", glog)
}

func verbosityLevel(v int) slog.Level {
	switch v {
	case 0:
		return slog.LevelError
	case 1:
		return slog.LevelWarn
	case 3:
		return slog.LevelDebug
	case 4:
		return slog.Level(-8) // levelTrace
	default:
		return slog.LevelInfo
	}
}
