package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes CAP file notifications from a Kafka topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
// Offsets are committed explicitly once a document has been handled.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{reader: r, flushInterval: cfg.BatchFlushInterval, logger: logger}
}

// ExtractBatch fetches up to batchSize notifications. It returns early with a
// partial (possibly empty) batch when the flush interval elapses. Malformed
// notifications are committed and skipped.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawDocument, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	batch := make([]domain.RawDocument, 0, batchSize)
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return batch, err
		}

		raw, err := mapMessageToRawDocument(msg)
		if err != nil {
			r.logger.Warn("skipping malformed notification",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			if err := r.reader.CommitMessages(ctx, msg); err != nil {
				r.logger.Warn("commit offset failed", "error", err, "offset", msg.Offset)
			}
			continue
		}
		raw.Commit = func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		}
		batch = append(batch, raw)
	}
	return batch, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// notification is the JSON form of a message value. A plain-text value is
// taken as the path itself.
type notification struct {
	Path string `json:"path"`
}

func mapMessageToRawDocument(msg kafkago.Message) (domain.RawDocument, error) {
	path, err := notificationPath(msg.Value)
	if err != nil {
		return domain.RawDocument{}, err
	}
	return domain.RawDocument{
		Path:      path,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}, nil
}

func notificationPath(value []byte) (string, error) {
	text := strings.TrimSpace(string(value))
	if strings.HasPrefix(text, "{") {
		var n notification
		if err := json.Unmarshal([]byte(text), &n); err != nil {
			return "", fmt.Errorf("decode notification: %w", err)
		}
		text = strings.TrimSpace(n.Path)
	}
	if text == "" {
		return "", errors.New("notification has no path")
	}
	return text, nil
}
