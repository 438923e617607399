// Package outboxrelay drains committed audit records from a Storage outbox
// and delivers them to an AuditSink.
//
// The relay polls in batches and only marks records delivered after the sink
// accepted them, giving at-least-once delivery: a crash or sink failure
// between delivery and acknowledgment causes redelivery, never loss.
package outboxrelay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

const (
	logMsgDeliveryFailed   = "audit delivery to sink failed"
	logMsgMarkingFailed    = "marking audit records delivered failed"
	logMsgBatchDelivered   = "audit batch delivered"
	logAttrError           = "error"
	logAttrRecords         = "records"
	metricRecordsDelivered = "outboxrelay_records_delivered"
	metricDeliveryFailures = "outboxrelay_delivery_failures"
)

var (
	// ErrNilStorage is returned when NewRelay is called without a storage.
	ErrNilStorage = errors.New("storage must not be nil")

	// ErrNilSink is returned when NewRelay is called without a sink.
	ErrNilSink = errors.New("sink must not be nil")

	// ErrInvalidBatchSize is returned for a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidPollInterval is returned for a non-positive poll interval.
	ErrInvalidPollInterval = errors.New("poll interval must be positive")
)

// Option defines a functional option for configuring the relay.
type Option func(relay *Relay) error

// WithBatchSize caps how many records one delivery attempt carries.
func WithBatchSize(batchSize int) Option {
	return func(relay *Relay) error {
		if batchSize <= 0 {
			return ErrInvalidBatchSize
		}

		relay.batchSize = batchSize

		return nil
	}
}

// WithPollInterval sets how long Run sleeps between empty polls.
func WithPollInterval(interval time.Duration) Option {
	return func(relay *Relay) error {
		if interval <= 0 {
			return ErrInvalidPollInterval
		}

		relay.pollInterval = interval

		return nil
	}
}

// WithLogger configures operational logging for the relay.
func WithLogger(logger circulation.Logger) Option {
	return func(relay *Relay) error {
		relay.logger = logger

		return nil
	}
}

// WithMetrics configures metrics collection for the relay.
func WithMetrics(metrics circulation.MetricsCollector) Option {
	return func(relay *Relay) error {
		relay.metrics = metrics

		return nil
	}
}

// Relay moves audit records from the storage outbox to the sink.
type Relay struct {
	storage      circulation.Storage
	sink         circulation.AuditSink
	batchSize    int
	pollInterval time.Duration
	logger       circulation.Logger
	metrics      circulation.MetricsCollector
}

// NewRelay creates a relay reading from storage and delivering to sink.
func NewRelay(storage circulation.Storage, sink circulation.AuditSink, options ...Option) (*Relay, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}

	if sink == nil {
		return nil, ErrNilSink
	}

	relay := &Relay{
		storage:      storage,
		sink:         sink,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}

	for _, option := range options {
		if err := option(relay); err != nil {
			return nil, err
		}
	}

	return relay, nil
}

// Run polls the outbox until ctx is canceled. A batch that fails to deliver
// stays in the outbox and is retried on the next poll; Run itself only
// returns on context cancellation.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		// Drain eagerly so a backlog is not throttled to one batch per tick.
		for {
			delivered, err := r.DeliverPending(ctx)
			if err != nil || delivered < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeliverPending delivers one batch of pending audit records and returns how
// many records reached the sink. Records are only acknowledged after the sink
// accepted the whole batch.
func (r *Relay) DeliverPending(ctx context.Context) (int, error) {
	records, err := r.storage.PendingAudit(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	if len(records) == 0 {
		return 0, nil
	}

	if deliverErr := r.sink.Deliver(ctx, records); deliverErr != nil {
		r.logWarn(logMsgDeliveryFailed, logAttrError, deliverErr.Error())
		r.incrementCounter(metricDeliveryFailures)

		return 0, deliverErr
	}

	ids := make([]uuid.UUID, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}

	if markErr := r.storage.MarkAuditDelivered(ctx, ids); markErr != nil {
		// The sink has the batch but the outbox still holds it, so the next
		// poll redelivers. The sink contract tolerates that.
		r.logWarn(logMsgMarkingFailed, logAttrError, markErr.Error())

		return len(records), markErr
	}

	r.logDebug(logMsgBatchDelivered, logAttrRecords, len(records))
	r.recordDelivered(len(records))

	return len(records), nil
}

func (r *Relay) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Relay) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Relay) incrementCounter(metric string) {
	if r.metrics != nil {
		r.metrics.IncrementCounter(metric, nil)
	}
}

func (r *Relay) recordDelivered(count int) {
	if r.metrics != nil {
		r.metrics.RecordValue(metricRecordsDelivered, float64(count), nil)
	}
}
