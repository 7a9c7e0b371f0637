// Command fisbpipe runs the full ground-uplink pipeline: ingest,
// decode, reconstruct, normalize, deduplicate, harvest, and archive,
// against a live Postgres-backed store and an optional ClickHouse
// archive. Raw ground-uplink lines arrive either on stdin or from a
// NATS subject, and operational status is exposed over HTTP.
//
// Usage:
//
//	fisbpipe [options]
//
// Options:
//
//	-pg-host HOST        PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT        PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB      PostgreSQL database (default: fisb, env: POSTGRES_DATABASE)
//	-pg-user USER        PostgreSQL user (default: fisb, env: POSTGRES_USER)
//	-pg-password PASS    PostgreSQL password (default: fisb, env: POSTGRES_PASSWORD)
//	-archive             Enable the ClickHouse append-only archive
//	-ch-host HOST        ClickHouse host (default: localhost, env: CLICKHOUSE_HOST)
//	-ch-port PORT        ClickHouse port (default: 9000, env: CLICKHOUSE_PORT)
//	-ch-database DB      ClickHouse database (default: fisb, env: CLICKHOUSE_DATABASE)
//	-ch-user USER        ClickHouse user (default: default, env: CLICKHOUSE_USER)
//	-ch-password PASS    ClickHouse password (env: CLICKHOUSE_PASSWORD)
//	-nats-url URL        NATS server URL; when set, lines are read from -nats-subject instead of stdin
//	-nats-subject SUBJ   NATS subject carrying raw ground-uplink lines (default: fisb.uplink)
//	-review-port N       Operational review server port (default: 8282)
//	-rsr                 Calculate per-station reception success rate
//	-block-sua           Drop SUA (product 13) messages (default: true)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"fisb/internal/archive"
	"fisb/internal/config"
	"fisb/internal/diag"
	"fisb/internal/harvest"
	"fisb/internal/ingest"
	"fisb/internal/pipeline"
	"fisb/internal/review"
	"fisb/internal/store"
)

// nullRenderer satisfies harvest.Renderer without producing tiles.
// Raster rendering is a pluggable non-goal: the harvester's job ends
// at maintaining bins and deciding when a render is due, not at
// drawing pixels, so the reference entry point wires in a renderer
// that records nothing.
type nullRenderer struct{}

func (nullRenderer) Render(ctx context.Context, product string, bins map[int]harvest.BinEntry, scaleFactor int, mapFcn string) (harvest.BBox, error) {
	return harvest.BBox{}, nil
}

func main() {
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "fisb"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "fisb"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "fisb"), "PostgreSQL database")

	enableArchive := flag.Bool("archive", false, "Enable the ClickHouse append-only archive")
	chHost := flag.String("ch-host", envOrDefault("CLICKHOUSE_HOST", "localhost"), "ClickHouse host")
	chPort := flag.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse port")
	chUser := flag.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := flag.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")
	chDB := flag.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "fisb"), "ClickHouse database")

	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", ""), "NATS server URL (reads stdin when empty)")
	natsSubject := flag.String("nats-subject", envOrDefault("NATS_SUBJECT", "fisb.uplink"), "NATS subject carrying raw ground-uplink lines")

	reviewPort := flag.Int("review-port", 8282, "Operational review server port")
	calculateRSR := flag.Bool("rsr", false, "Calculate per-station reception success rate")
	blockSUA := flag.Bool("block-sua", true, "Drop SUA (product 13) messages")

	flag.Parse()

	cfg := config.Default()
	cfg.Postgres = config.PostgresConfig{Host: *pgHost, Port: *pgPort, Database: *pgDB, User: *pgUser, Password: *pgPassword}
	cfg.ClickHouse = config.ClickHouseConfig{Host: *chHost, Port: *chPort, Database: *chDB, User: *chUser, Password: *chPassword}
	cfg.ReviewPort = *reviewPort
	cfg.CalculateRSR = *calculateRSR
	cfg.BlockSUAMessages = *blockSUA

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.Open(ctx, cfg.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fisbpipe: opening postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	var archiver *archive.ClickHouse
	if *enableArchive {
		archiver, err = archive.Open(ctx, cfg.ClickHouse)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fisbpipe: opening clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer archiver.Close()
	}

	var source ingest.Source
	if *natsURL != "" {
		natsSource, err := ingest.DialNATS(*natsURL, *natsSubject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fisbpipe: connecting to nats: %v\n", err)
			os.Exit(1)
		}
		defer natsSource.Close()
		source = natsSource
	} else {
		source = ingest.NewStdin(os.Stdin)
	}

	diagLog := diag.New(nil, 256)
	p := pipeline.New(cfg, source, pg, nullRenderer{}, archiver, diagLog)

	reviewServer := review.NewServer(p.Harvester(), p.DedupCache(), cfg.ReviewPort).WithRSRSource(p.RSRStatuses)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(ctx)
	})
	g.Go(func() error {
		err := reviewServer.Run()
		if ctx.Err() != nil {
			return nil // shutting down; the listener's own error is expected
		}
		return err
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "fisbpipe: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
