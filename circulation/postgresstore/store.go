// Package postgresstore implements the circulation storage contract on
// PostgreSQL. Every unit of work runs as one SERIALIZABLE transaction;
// serialization failures and version-check misses surface as
// circulation.ErrConcurrencyConflict, which the engine retries. The store
// works through pgxpool, sqlx or database/sql, wrapped behind internal
// adapters.
package postgresstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/openlibra/circulation-engine/circulation"
	"github.com/openlibra/circulation-engine/circulation/postgresstore/internal/adapters"
)

const (
	logMsgBeginFailed     = "failed to begin serializable transaction"
	logMsgCommitFailed    = "failed to commit transaction"
	logMsgRollbackFailed  = "failed to roll back transaction"
	logMsgCloseRowsFailed = "failed to close database rows"
	logMsgSQLExecuted     = "executed sql"
	logMsgUnitCompleted   = "unit of work committed"
	logMsgSerialConflict  = "serialization conflict, unit of work aborted"
	logAttrError          = "error"
	logAttrQuery          = "query"
	logAttrDurationMS     = "duration_ms"

	// SQLSTATE codes Postgres reports for transactions that must be retried.
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// ErrNilDatabaseConnection is returned when a store is constructed without a connection.
var ErrNilDatabaseConnection = errors.New("database connection must not be nil")

// Compile-time contract assertion.
var _ circulation.Storage = (*Store)(nil)

// Store is the PostgreSQL storage backend.
type Store struct {
	db     adapters.DBAdapter
	logger circulation.Logger
}

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// WithLogger sets the logger for the Store.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: unit-of-work outcomes and serialization conflicts
// Warn level: non-critical issues like rollback failures after an error.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// NewStoreFromPGXPool creates a Store using a pgx pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{db: db}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Execute runs fn as one SERIALIZABLE transaction.
func (s *Store) Execute(ctx context.Context, fn func(tx circulation.Transaction) error) error {
	dbTx, beginErr := s.db.BeginSerializable(ctx)
	if beginErr != nil {
		if s.logger != nil {
			s.logger.Error(logMsgBeginFailed, logAttrError, beginErr.Error())
		}

		return errors.Join(circulation.ErrStorageUnavailable, beginErr)
	}

	start := time.Now()

	if err := fn(&transaction{ctx: ctx, db: dbTx, logger: s.logger}); err != nil {
		s.rollback(ctx, dbTx)
		return s.mapConflict(err)
	}

	if commitErr := dbTx.Commit(ctx); commitErr != nil {
		if s.logger != nil {
			s.logger.Error(logMsgCommitFailed, logAttrError, commitErr.Error())
		}

		return s.mapConflict(commitErr)
	}

	if s.logger != nil {
		s.logger.Debug(logMsgUnitCompleted, logAttrDurationMS, time.Since(start).Milliseconds())
	}

	return nil
}

func (s *Store) rollback(ctx context.Context, dbTx adapters.DBTx) {
	if rollbackErr := dbTx.Rollback(ctx); rollbackErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgRollbackFailed, logAttrError, rollbackErr.Error())
		}
	}
}

// mapConflict folds Postgres serialization failures into the contract's
// concurrency-conflict error so the engine's retry loop recognizes them.
func (s *Store) mapConflict(err error) error {
	if isSerializationFailure(err) {
		if s.logger != nil {
			s.logger.Info(logMsgSerialConflict, logAttrError, err.Error())
		}

		return errors.Join(circulation.ErrConcurrencyConflict, err)
	}

	return err
}

// sqlStater is implemented by both pgconn.PgError and pq.Error.
type sqlStater interface {
	SQLState() string
}

func isSerializationFailure(err error) bool {
	var stater sqlStater
	if !errors.As(err, &stater) {
		return false
	}

	code := stater.SQLState()

	return code == sqlstateSerializationFailure || code == sqlstateDeadlockDetected
}

// PendingAudit returns up to limit undelivered audit records, oldest first.
func (s *Store) PendingAudit(ctx context.Context, limit int) ([]circulation.AuditRecord, error) {
	sqlQuery, err := buildPendingAuditQuery(limit)
	if err != nil {
		return nil, err
	}

	rows, queryErr := s.db.Query(ctx, sqlQuery)
	if queryErr != nil {
		return nil, errors.Join(circulation.ErrStorageUnavailable, queryErr)
	}
	defer s.closeRows(rows)

	return scanAuditRecords(rows)
}

// MarkAuditDelivered marks the given outbox records as delivered; unknown
// IDs are ignored.
func (s *Store) MarkAuditDelivered(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	sqlQuery, err := buildMarkDeliveredQuery(ids)
	if err != nil {
		return err
	}

	if _, execErr := s.db.Exec(ctx, sqlQuery); execErr != nil {
		return errors.Join(circulation.ErrStorageUnavailable, execErr)
	}

	return nil
}

func (s *Store) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}
