package pipeline

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	"github.com/couchcryptid/cap-alerts-etl/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw CAP documents from the source.
// A finite source returns io.EOF once it is drained.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawDocument, error)
}

// Transformer converts a raw document into features.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawDocument) (domain.Result, error)
}

// BatchLoader writes features to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, features []domain.Feature) error
}

// Ledger remembers which documents were already loaded.
type Ledger interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLedger skips documents whose path the ledger has already seen, and
// records every document once its batch is loaded.
func WithLedger(l Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithRunDedup keeps the first successfully loaded feature for each
// identifier during the run and drops later ones. An identifier whose batch
// failed to load stays open for later documents. Combined with a newest-first
// source, an older document never overwrites a newer alert.
func WithRunDedup() Option {
	return func(p *Pipeline) { p.loadedIDs = make(map[string]struct{}) }
}

// Stats are the running totals of a pipeline.
type Stats struct {
	Documents     int64 `json:"documents"`
	Skipped       int64 `json:"skipped"`
	Failed        int64 `json:"failed"`
	Features      int64 `json:"features"`
	Duplicates    int64 `json:"duplicates"`
	FailedBatches int64 `json:"failed_batches"`
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	ledger      Ledger
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int

	// loadedIDs is only touched by the Run goroutine.
	loadedIDs map[string]struct{}

	documents     atomic.Int64
	skipped       atomic.Int64
	failed        atomic.Int64
	features      atomic.Int64
	duplicates    atomic.Int64
	failedBatches atomic.Int64
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a batch has been loaded, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any batch yet")
	}
	return nil
}

// Ready reports whether a batch has been loaded.
func (p *Pipeline) Ready() bool { return p.ready.Load() }

// Stats returns a snapshot of the running totals.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Documents:     p.documents.Load(),
		Skipped:       p.skipped.Load(),
		Failed:        p.failed.Load(),
		Features:      p.features.Load(),
		Duplicates:    p.duplicates.Load(),
		FailedBatches: p.failedBatches.Load(),
	}
}

// Run executes the batch ETL loop until the context is cancelled or the
// source is drained.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "ledger", p.ledger != nil, "run_dedup", p.loadedIDs != nil)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			s := p.Stats()
			p.logger.Info("pipeline finished",
				"documents", s.Documents,
				"skipped", s.Skipped,
				"failed", s.Failed,
				"features", s.Features,
				"duplicates", s.Duplicates,
				"failed_batches", s.FailedBatches,
			)
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.documents.Add(int64(len(rawBatch)))
	p.metrics.DocumentsConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	if !p.transformAndLoad(ctx, rawBatch, backoff) {
		return false
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

// transformAndLoad transforms each document in the batch, loads the features
// of the successes, then commits and records the documents. Returns false if
// the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawDocument, backoff *time.Duration) bool {
	var features []domain.Feature
	handled := make([]domain.RawDocument, 0, len(rawBatch))
	inBatch := make(map[string]struct{}, len(rawBatch))
	pending := make(map[string]struct{})
	duplicates := 0

	for _, raw := range rawBatch {
		if p.alreadySeen(ctx, raw, inBatch) {
			p.skipped.Add(1)
			p.metrics.DocumentsSkipped.Inc()
			p.commitOffset(ctx, raw)
			continue
		}

		res, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping document",
				"error", err,
				"path", raw.Path,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
				"timestamp", raw.Timestamp,
			)
			p.failed.Add(1)
			p.metrics.DocumentsFailed.WithLabelValues(failureReason(err)).Inc()
			p.commitOffset(ctx, raw)
			continue
		}

		p.inspect(raw, res)
		kept, dups := p.dedup(res.Features, pending)
		features = append(features, kept...)
		duplicates += dups
		handled = append(handled, raw)
	}

	if len(features) > 0 {
		if err := p.loader.LoadBatch(ctx, features); err != nil {
			p.failedBatches.Add(1)
			p.logger.Error("load batch failed", "error", err, "features", len(features), "documents", len(handled))
			return p.backoffOrStop(ctx, backoff)
		}
		p.features.Add(int64(len(features)))
		p.ready.Store(true)
	}
	p.recordLoaded(pending, duplicates)

	for _, raw := range handled {
		p.markSeen(ctx, raw)
		p.commitOffset(ctx, raw)
	}
	return true
}

// inspect logs pairing and ring diagnostics of a successful transform.
func (p *Pipeline) inspect(raw domain.RawDocument, res domain.Result) {
	if !res.Pairing.Complete() {
		p.metrics.PairingIncomplete.Inc()
		p.logger.Info("english and french areas differ, no features emitted",
			"path", raw.Path,
			"identifier", res.Identifier,
			"english", res.Pairing.English,
			"french", res.Pairing.French,
			"unmatched", res.Pairing.Unmatched,
		)
		return
	}

	p.metrics.FeaturesEmitted.Add(float64(len(res.Features)))
	for _, f := range res.Features {
		shape := domain.ShapeOf(f.Ring())
		if shape.Closed && !shape.Degenerate {
			continue
		}
		p.metrics.DegenerateRings.Inc()
		p.logger.Debug("emitting irregular ring",
			"identifier", f.Properties.Identifier,
			"reference", res.Identifier,
			"vertices", shape.Vertices,
			"closed", shape.Closed,
			"degenerate", shape.Degenerate,
		)
	}
}

// dedup drops features whose identifier was already loaded in this run or is
// pending in the current batch. Kept identifiers are added to pending and only
// become loaded through recordLoaded once the batch is stored.
func (p *Pipeline) dedup(features []domain.Feature, pending map[string]struct{}) ([]domain.Feature, int) {
	if p.loadedIDs == nil {
		return features, 0
	}
	kept := features[:0:0]
	dups := 0
	for _, f := range features {
		id := f.Properties.Identifier
		_, loaded := p.loadedIDs[id]
		_, queued := pending[id]
		if loaded || queued {
			dups++
			continue
		}
		pending[id] = struct{}{}
		kept = append(kept, f)
	}
	return kept, dups
}

// recordLoaded promotes the identifiers of a stored batch to the run set.
func (p *Pipeline) recordLoaded(pending map[string]struct{}, duplicates int) {
	if p.loadedIDs == nil {
		return
	}
	for id := range pending {
		p.loadedIDs[id] = struct{}{}
	}
	p.duplicates.Add(int64(duplicates))
	p.metrics.DuplicateFeatures.Add(float64(duplicates))
}

// alreadySeen reports whether the ledger holds raw's path or the path already
// appeared earlier in the same batch. Ledger marks only happen after a load.
func (p *Pipeline) alreadySeen(ctx context.Context, raw domain.RawDocument, inBatch map[string]struct{}) bool {
	if p.ledger == nil || raw.Path == "" {
		return false
	}
	if _, dup := inBatch[raw.Path]; dup {
		return true
	}
	inBatch[raw.Path] = struct{}{}
	seen, err := p.ledger.Seen(ctx, raw.Path)
	if err != nil {
		p.logger.Warn("ledger lookup failed, processing document", "error", err, "path", raw.Path)
		return false
	}
	return seen
}

func (p *Pipeline) markSeen(ctx context.Context, raw domain.RawDocument) {
	if p.ledger == nil || raw.Path == "" {
		return
	}
	if err := p.ledger.Mark(ctx, raw.Path); err != nil {
		p.logger.Warn("ledger mark failed", "error", err, "path", raw.Path)
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawDocument) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrDateFormat):
		return "date"
	case errors.Is(err, domain.ErrUnpaired):
		return "unpaired"
	case errors.Is(err, domain.ErrDegeneratePolygon):
		return "polygon"
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return "read"
	default:
		return "other"
	}
}
