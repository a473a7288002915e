// Command payengine runs the concurrent transaction engine.
//
// Batch mode (default) reads a transactions CSV, applies it and writes the
// final account report to stdout:
//
//	payengine transactions.csv > accounts.csv
//
// Stream mode (-stream) consumes transactions from NATS JetStream, serves
// the operational HTTP surface, and emits the report on shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"PayEngine/internal/api"
	"PayEngine/internal/config"
	"PayEngine/internal/csvio"
	"PayEngine/internal/dispatch"
	"PayEngine/internal/ingestion"
	"PayEngine/internal/observability"
	"PayEngine/internal/report"
	"PayEngine/internal/store"
)

func main() {
	streamMode := flag.Bool("stream", false, "consume transactions from NATS instead of a CSV file")
	lanes := flag.Int("lanes", 0, "override the configured lane count")
	flag.Parse()

	cfg := config.Load()
	if err := overrideLaneCount(&cfg, *lanes); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	runID := uuid.NewString()
	log := observability.NewLogger("payengine").With().Str("run_id", runID).Logger()
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store setup failed")
	}
	defer closeStore()

	dispatcher := dispatch.New(st, cfg.LaneCount, cfg.MailboxSize, log, metrics)
	reports := report.NewGenerator(st, metrics)

	if *streamMode {
		err = runStream(ctx, cfg, dispatcher, reports, log)
	} else {
		if flag.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: payengine [-stream] [-lanes n] <transactions.csv>")
			os.Exit(2)
		}
		err = runBatch(ctx, flag.Arg(0), dispatcher, reports, log)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}
}

// overrideLaneCount applies the -lanes flag. Zero means "keep the
// configured count"; anything outside the lane count domain is a usage
// error rather than a silent truncation.
func overrideLaneCount(cfg *config.Config, lanes int) error {
	if lanes == 0 {
		return nil
	}
	if lanes < 1 || lanes > math.MaxUint16 {
		return fmt.Errorf("lanes must be between 1 and %d, got %d", math.MaxUint16, lanes)
	}
	cfg.LaneCount = uint16(lanes)
	return nil
}

// buildStore picks the persistent store when a DSN is configured and the
// volatile in-memory store otherwise.
func buildStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		return store.NewMemStore(), func() {}, nil
	}

	db, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPGStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info().Msg("using postgres store")
	return pg, func() { db.Close() }, nil
}

// runBatch feeds the file through the dispatcher, drains, and writes the
// rounded report to stdout. Undecodable rows are skipped, not fatal.
func runBatch(ctx context.Context, path string, dispatcher *dispatch.Dispatcher, reports *report.Generator, log zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	for txn, err := range csvio.ReadTransactions(f) {
		if err != nil {
			log.Warn().Err(err).Msg("skipping undecodable record")
			continue
		}
		if err := dispatcher.Post(ctx, txn); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}

	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("lane failures during shutdown")
	}

	return writeReport(ctx, reports, log)
}

// runStream wires NATS ingestion and the HTTP surface, then waits for a
// signal. Shutdown order: stop intake, drain lanes, emit the final report.
func runStream(ctx context.Context, cfg config.Config, dispatcher *dispatch.Dispatcher, reports *report.Generator, log zerolog.Logger) error {
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, log)
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := ingestion.EnsureStream(ctx, js); err != nil {
		return err
	}

	sub := ingestion.NewSubscriber(js, dispatcher, log)
	if err := sub.Start(ctx); err != nil {
		return err
	}

	health := observability.NewHealthChecker()
	server := api.NewServer(cfg.HTTPAddr, reports, health, log)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()
	health.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	health.SetReady(false)
	sub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("lane failures during shutdown")
	}

	return writeReport(ctx, reports, log)
}

func writeReport(ctx context.Context, reports *report.Generator, log zerolog.Logger) error {
	seq, err := reports.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	if err := csvio.WriteAccounts(os.Stdout, seq); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Info().Msg("report written")
	return nil
}
