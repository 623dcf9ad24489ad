package kafka

import (
	"context"
	"log/slog"
	"sort"

	"github.com/couchcryptid/msi-broadcast-etl/internal/config"
	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes output records to a Kafka topic, one message per report
// keyed by record ID. It implements pipeline.RecordSink.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSinkTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Store serializes and publishes records in a single WriteMessages call.
func (w *Writer) Store(ctx context.Context, runID string, records []domain.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i], runID)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Debug("records published", "run_id", runID, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage maps a record onto a Kafka message with sorted headers.
func serializeToMessage(rec domain.OutputRecord, runID string) (kafkago.Message, error) {
	evt, err := domain.SerializeRecord(rec, runID)
	if err != nil {
		return kafkago.Message{}, err
	}
	keys := make([]string, 0, len(evt.Headers))
	for k := range evt.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(evt.Headers[k])})
	}
	return kafkago.Message{Key: evt.Key, Value: evt.Value, Headers: headers}, nil
}
