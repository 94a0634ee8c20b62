package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/archive"
	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/elasticsearch"
	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/cap-alerts-etl/internal/adapter/kafka"
	"github.com/couchcryptid/cap-alerts-etl/internal/adapter/seen"
	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/observability"
	"github.com/couchcryptid/cap-alerts-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// resources collects what a run opened so it can be closed in one place.
type resources struct {
	closers []io.Closer
	checks  httpadapter.Checks
}

func (r *resources) add(c io.Closer) { r.closers = append(r.closers, c) }

// Close closes everything in reverse opening order.
func (r *resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newTransformer builds the CAP transformer, archiving raw documents to S3
// when ARCHIVE_BUCKET is set.
func newTransformer(cfg *config.Config, logger *slog.Logger) (*pipeline.CAPTransformer, error) {
	if cfg.ArchiveBucket == "" {
		return pipeline.NewTransformer(cfg, nil, logger), nil
	}
	a, err := archive.NewS3(cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.AWSRegion, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("raw document archive enabled", "bucket", cfg.ArchiveBucket, "prefix", cfg.ArchivePrefix)
	return pipeline.NewTransformer(cfg, a, logger), nil
}

// newSinks returns the Elasticsearch sink followed by the Kafka feature topic
// when KAFKA_SINK_TOPIC is set.
func newSinks(cfg *config.Config, es *elasticsearch.Client, metrics *observability.Metrics, res *resources, logger *slog.Logger) *pipeline.FanOut {
	sinks := []pipeline.Sink{{Name: "elasticsearch", Loader: es}}
	if cfg.KafkaSinkTopic != "" {
		writer := kafkaadapter.NewWriter(cfg, logger)
		res.add(writer)
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: writer})
		logger.Info("feature publishing enabled", "topic", cfg.KafkaSinkTopic)
	}
	return pipeline.NewFanOut(metrics, sinks...)
}

// newLedger returns the Redis ledger when REDIS_URL is set and an in-memory
// LRU otherwise.
func newLedger(cfg *config.Config, res *resources, logger *slog.Logger) (pipeline.Ledger, error) {
	if cfg.RedisURL == "" {
		logger.Info("using in-memory seen ledger", "size", cfg.LedgerCacheSize, "ttl", cfg.LedgerTTL)
		return seen.NewMemory(cfg.LedgerCacheSize, cfg.LedgerTTL, clockwork.NewRealClock()), nil
	}
	r, err := seen.NewRedis(cfg.RedisURL, cfg.LedgerTTL)
	if err != nil {
		return nil, err
	}
	res.add(r)
	res.checks = append(res.checks, httpadapter.Check{Name: "redis", Checker: r})
	logger.Info("using redis seen ledger", "ttl", cfg.LedgerTTL)
	return r, nil
}
