// Package publisher turns accepted change requests into Kafka events for the
// indexer. Publishing goes through a circuit breaker so a broker outage fails
// fast instead of piling up requests.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/textdex/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/resilience"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

// EventProducer is satisfied by *kafka.Producer.
type EventProducer interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

type Publisher struct {
	producer EventProducer
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *slog.Logger
}

func New(producer EventProducer, breaker *resilience.CircuitBreaker, m *metrics.Metrics, clk clock.Clock) *Publisher {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Publisher{
		producer: producer,
		breaker:  breaker,
		metrics:  m,
		clock:    clk,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Publish emits one ChangeEvent for req, keyed by its lowest record id so
// changes to the same record stay ordered on one partition.
func (p *Publisher) Publish(ctx context.Context, req *ingestion.ChangeRequest) (*ingestion.ChangeResponse, error) {
	ids := slices.Clone(req.RecordIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	event := ingestion.ChangeEvent{
		EventID:    uuid.NewString(),
		RecordIDs:  ids,
		Reason:     req.Reason,
		OccurredAt: p.clock.Now().UTC(),
	}
	err := p.breaker.Execute(func() error {
		return p.producer.Publish(ctx, kafka.Event{
			Key:   strconv.FormatInt(ids[0], 10),
			Value: event,
		})
	})
	if err != nil {
		p.metrics.ChangeEventsTotal.WithLabelValues("publish", "error").Inc()
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "change feed unavailable")
		}
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "publishing change event")
	}
	p.metrics.ChangeEventsTotal.WithLabelValues("publish", "ok").Inc()
	p.logger.Debug("change event published", "event_id", event.EventID, "records", len(ids))
	return &ingestion.ChangeResponse{
		EventID:  event.EventID,
		Accepted: len(ids),
		Status:   "queued",
	}, nil
}
