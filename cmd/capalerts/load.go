package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/elasticsearch"
	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/filesource"
	"github.com/couchcryptid/cap-alerts-etl/internal/observability"
	"github.com/couchcryptid/cap-alerts-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <path>...",
		Short: "Load CAP files or directories into the index",
		Long: "Load scans the given files and directories for .xml and .cap documents, " +
			"in descending file name order, and indexes one feature per alerted area. " +
			"An area already loaded from an earlier file in the same run is skipped. " +
			"File names order chronologically only when they share a bulletin prefix " +
			"(T_<header>_C_<office>_), so load one office at a time when the newest " +
			"alert for an area must win.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.load(ctx, cmd, args)
		},
	}
}

func (a *app) load(ctx context.Context, cmd *cobra.Command, paths []string) error {
	res := &resources{}
	defer func() {
		if err := res.Close(); err != nil {
			a.logger.Error("close error", "error", err)
		}
	}()

	es, err := elasticsearch.NewClient(a.cfg, a.logger)
	if err != nil {
		return err
	}
	if _, err := es.EnsureIndex(ctx); err != nil {
		return err
	}

	source, err := filesource.New(paths, a.logger)
	if err != nil {
		return err
	}

	transformer, err := newTransformer(a.cfg, a.logger)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	loader := newSinks(a.cfg, es, metrics, res, a.logger)

	p := pipeline.New(source, transformer, loader, a.logger, metrics, a.cfg.BatchSize, pipeline.WithRunDedup())
	if err := p.Run(ctx); err != nil {
		return err
	}

	s := p.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "%d documents, %d features loaded into %s (%d failed documents, %d duplicates skipped)\n",
		s.Documents, s.Features, es.Index(), s.Failed, s.Duplicates)

	if ctx.Err() != nil {
		return fmt.Errorf("load interrupted after %d of %d documents", s.Documents, source.Len())
	}
	if s.FailedBatches > 0 {
		return fmt.Errorf("%d batches failed to load", s.FailedBatches)
	}
	return nil
}
