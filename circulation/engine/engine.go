package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openlibra/circulation-engine/circulation"
)

const (
	logMsgOperationCompleted  = "circulation operation completed"
	logMsgOperationFailed     = "circulation operation failed"
	logMsgConcurrencyConflict = "concurrency conflict detected"

	logAttrOperation  = "operation"
	logAttrError      = "error"
	logAttrDurationMS = "duration_ms"

	metricOperationDuration = "circulation_operation_duration_ms"
	metricOperationOutcome  = "circulation_operations_total"
)

var (
	// ErrNilStorage is returned when the engine is constructed without a storage backend.
	ErrNilStorage = errors.New("storage must not be nil")
)

// SystemActorID is recorded on audit records for mutations not initiated by
// a patron, such as background sweeps.
var SystemActorID = uuid.Nil

// Catalog is the read-only descriptive catalog. The engine, not the catalog,
// is authoritative for availability counters.
type Catalog interface {
	GetTitle(ctx context.Context, titleID uuid.UUID) (TitleInfo, error)
}

// TitleInfo is the catalog's view of a title.
type TitleInfo struct {
	TotalCopies int
}

// PatronDirectory is the external person/role service consulted for patron
// status.
type PatronDirectory interface {
	GetPatronStatus(ctx context.Context, patronID uuid.UUID) (PatronStatus, error)
}

// PatronStatus is the directory's view of a patron.
type PatronStatus struct {
	Active bool
}

// Engine couples the four ledgers - copy availability, active loans,
// reservations, fines/payments - under one consistency contract. Every
// operation runs as a single serializable unit of work against the
// configured Storage and is retried with exponential backoff on concurrency
// conflicts.
type Engine struct {
	storage      circulation.Storage
	config       circulation.Config
	catalog      Catalog
	patrons      PatronDirectory
	clock        func() time.Time
	logger       circulation.Logger
	ctxLogger    circulation.ContextualLogger
	metrics      circulation.MetricsCollector
	retryOptions []RetryOption
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithConfig replaces the default policy configuration.
func WithConfig(config circulation.Config) Option {
	return func(e *Engine) error {
		if err := config.Validate(); err != nil {
			return err
		}

		e.config = config

		return nil
	}
}

// WithCatalog wires the external descriptive catalog.
func WithCatalog(catalog Catalog) Option {
	return func(e *Engine) error {
		e.catalog = catalog
		return nil
	}
}

// WithPatronDirectory wires the external person/role service. When set,
// checkout and reservation reject inactive patrons.
func WithPatronDirectory(patrons PatronDirectory) Option {
	return func(e *Engine) error {
		e.patrons = patrons
		return nil
	}
}

// WithClock replaces the engine's time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		e.clock = clock
		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Debug level: per-transaction details (development use)
// Info level: operation outcomes, durations, conflicts (production-safe)
// Error level: failures that abort an operation.
func WithLogger(logger circulation.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over the plain
// Logger when both are configured.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(e *Engine) error {
		e.ctxLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metrics = collector
		return nil
	}
}

// WithRetryOptions sets a custom retry configuration for conflict handling.
func WithRetryOptions(options ...RetryOption) Option {
	return func(e *Engine) error {
		e.retryOptions = options
		return nil
	}
}

// NewEngine creates an Engine on top of the given storage backend with
// optional configuration.
func NewEngine(storage circulation.Storage, options ...Option) (*Engine, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}

	e := &Engine{
		storage: storage,
		config:  circulation.DefaultConfig(),
		clock:   time.Now,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Config returns the policy configuration the engine runs with.
func (e *Engine) Config() circulation.Config {
	return e.config
}

// now returns the current engine time, normalized like stored timestamps.
func (e *Engine) now() time.Time {
	return circulation.ToTimestamp(e.clock())
}

// execute runs fn as one retried serializable unit of work and records
// observability data for the operation.
func (e *Engine) execute(ctx context.Context, operation string, fn func(tx circulation.Transaction) error) error {
	start := time.Now()

	retryOptions := append([]RetryOption{withRetryMetrics(e.metrics, operation)}, e.retryOptions...)

	err := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		execErr := e.storage.Execute(retryCtx, fn)
		if errors.Is(execErr, circulation.ErrConcurrencyConflict) {
			e.logInfo(retryCtx, logMsgConcurrencyConflict, logAttrOperation, operation)
		}

		return execErr
	}, retryOptions...)

	duration := time.Since(start)
	e.recordOperation(operation, duration, err)

	if err != nil {
		e.logOutcome(ctx, err, logAttrOperation, operation, logAttrError, err.Error())
		return err
	}

	e.logInfo(ctx, logMsgOperationCompleted, logAttrOperation, operation, logAttrDurationMS, duration.Milliseconds())

	return nil
}

// requirePatronActive consults the patron directory when one is configured.
func (e *Engine) requirePatronActive(ctx context.Context, patronID uuid.UUID) error {
	if e.patrons == nil {
		return nil
	}

	status, err := e.patrons.GetPatronStatus(ctx, patronID)
	if err != nil {
		return errors.Join(circulation.ErrPatronNotFound, err)
	}

	if !status.Active {
		return circulation.ErrPatronInactive
	}

	return nil
}

func (e *Engine) recordOperation(operation string, duration time.Duration, err error) {
	if e.metrics == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	labels := map[string]string{logAttrOperation: operation, "outcome": outcome}
	e.metrics.RecordDuration(metricOperationDuration, duration, labels)
	e.metrics.IncrementCounter(metricOperationOutcome, labels)
}

// logOutcome logs expected business rejections at Info and everything else
// at Error. A denied checkout is normal operation, not a system failure.
func (e *Engine) logOutcome(ctx context.Context, err error, args ...any) {
	if circulation.IsStateConflict(err) || circulation.IsPolicyDenied(err) || circulation.IsValidation(err) {
		e.logInfo(ctx, logMsgOperationFailed, args...)
		return
	}

	e.logError(ctx, logMsgOperationFailed, args...)
}

func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.ctxLogger != nil {
		e.ctxLogger.InfoContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logError(ctx context.Context, msg string, args ...any) {
	if e.ctxLogger != nil {
		e.ctxLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}
