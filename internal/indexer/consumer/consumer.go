// Package consumer reads record-change events from Kafka and applies them to
// the postings through the indexer engine.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/resilience"
)

// DefaultUpdateTimeout bounds a single Update call made for one event.
const DefaultUpdateTimeout = 30 * time.Second

// Updater is satisfied by *indexer.Engine.
type Updater interface {
	Update(ctx context.Context, ids []int64) error
}

// IndexConsumer wraps a Kafka consumer to drive incremental updates.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler that re-indexes the records named in
// each change event. Undecodable events are logged and committed so they do
// not block the partition. Each update attempt is bounded by timeout and
// failed attempts are retried per retry; once they run out the error is
// returned, which stops the consumer before the event is committed.
func HandleMessage(u Updater, m *metrics.Metrics, timeout time.Duration, retry resilience.RetryConfig) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.ChangeEvent](value)
		if err != nil {
			m.ChangeEventsTotal.WithLabelValues("consume", "invalid").Inc()
			logger.Error("failed to decode change event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if len(event.RecordIDs) == 0 {
			m.ChangeEventsTotal.WithLabelValues("consume", "empty").Inc()
			return nil
		}

		logger.Debug("processing change event",
			"event_id", event.EventID,
			"records", len(event.RecordIDs),
			"reason", event.Reason,
		)
		err = resilience.Retry(ctx, "record update", retry, func() error {
			return resilience.WithTimeout(ctx, timeout, "record update", func(ctx context.Context) error {
				return u.Update(ctx, event.RecordIDs)
			})
		})
		if err != nil {
			m.ChangeEventsTotal.WithLabelValues("consume", "error").Inc()
			return fmt.Errorf("applying change event %s: %w", event.EventID, err)
		}

		m.ChangeEventsTotal.WithLabelValues("consume", "ok").Inc()
		logger.Info("change event applied",
			"event_id", event.EventID,
			"records", len(event.RecordIDs),
		)
		return nil
	}
}
