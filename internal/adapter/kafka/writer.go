package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	"github.com/mmcloughlin/geohash"
	kafkago "github.com/segmentio/kafka-go"
)

// centroidPrecision is the geohash length of the centroid header (about 150 m).
const centroidPrecision = 7

// Writer publishes features to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes the features in a single WriteMessages call. Messages
// are keyed by feature identifier so updates of one area stay ordered.
func (w *Writer) LoadBatch(ctx context.Context, features []domain.Feature) error {
	if len(features) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(features))
	for i := range features {
		msg, err := serializeToMessage(features[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Feature into a Kafka message.
func serializeToMessage(f domain.Feature) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "reference", Value: []byte(f.Properties.Reference)},
		{Key: "expires", Value: []byte(f.Properties.Expires)},
	}
	if lat, lon, ok := centroid(f.Ring()); ok {
		headers = append(headers, kafkago.Header{
			Key:   "centroid_geohash",
			Value: []byte(geohash.EncodeWithPrecision(lat, lon, centroidPrecision)),
		})
	}
	return kafkago.Message{
		Key:     []byte(f.Properties.Identifier),
		Value:   data,
		Headers: headers,
	}, nil
}

// centroid averages the distinct vertices of a ring, ignoring the closing one.
func centroid(ring []domain.Position) (lat, lon float64, ok bool) {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) == 0 {
		return 0, 0, false
	}
	for _, p := range ring {
		lon += p[0]
		lat += p[1]
	}
	n := float64(len(ring))
	return lat / n, lon / n, true
}
