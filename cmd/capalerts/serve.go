package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/elasticsearch"
	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/cap-alerts-etl/internal/adapter/kafka"
	"github.com/couchcryptid/cap-alerts-etl/internal/observability"
	"github.com/couchcryptid/cap-alerts-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume CAP notifications from Kafka and index them continuously",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	res := &resources{}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}()

	es, err := elasticsearch.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	if _, err := es.EnsureIndex(ctx); err != nil {
		return err
	}

	ledger, err := newLedger(cfg, res, logger)
	if err != nil {
		return err
	}
	transformer, err := newTransformer(cfg, logger)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	reader := kafkaadapter.NewReader(cfg, logger)
	res.add(reader)
	loader := newSinks(cfg, es, metrics, res, logger)

	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize, pipeline.WithLedger(ledger))

	checks := append(httpadapter.Checks{
		{Name: "elasticsearch", Checker: es},
		{Name: "pipeline", Checker: p},
	}, res.checks...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, func() any { return p.Stats() }, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before the shutdown timeout")
	}
	logger.Info("shutdown complete")
	return nil
}
