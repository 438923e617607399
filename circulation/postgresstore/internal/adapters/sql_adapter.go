package adapters

import (
	"context"
	"database/sql"
)

// SQLAdapter implements DBAdapter for sql.DB.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter creates a new SQL adapter.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// BeginSerializable starts a SERIALIZABLE transaction.
func (s *SQLAdapter) BeginSerializable(ctx context.Context) (DBTx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}

	return &sqlTx{tx: tx}, nil
}

// Query executes a query outside any transaction.
func (s *SQLAdapter) Query(ctx context.Context, query string) (DBRows, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &sqlRows{rows: rows}, nil
}

// Exec executes a statement outside any transaction.
func (s *SQLAdapter) Exec(ctx context.Context, query string) (DBResult, error) {
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &sqlResult{result: result}, nil
}

// sqlTx wraps sql.Tx to implement the DBTx interface.
type sqlTx struct {
	tx *sql.Tx
}

// Query executes a query within the transaction.
func (s *sqlTx) Query(ctx context.Context, query string) (DBRows, error) {
	rows, err := s.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &sqlRows{rows: rows}, nil
}

// Exec executes a statement within the transaction.
func (s *sqlTx) Exec(ctx context.Context, query string) (DBResult, error) {
	result, err := s.tx.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &sqlResult{result: result}, nil
}

// Commit commits the transaction.
func (s *sqlTx) Commit(_ context.Context) error {
	return s.tx.Commit()
}

// Rollback aborts the transaction.
func (s *sqlTx) Rollback(_ context.Context) error {
	return s.tx.Rollback()
}

// sqlRows wraps standard library sql.Rows to implement the DBRows interface.
type sqlRows struct {
	rows *sql.Rows
}

// Next advances to the next row.
func (s *sqlRows) Next() bool {
	return s.rows.Next()
}

// Scan copies row values into provided destinations.
func (s *sqlRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

// Close closes the rows iterator.
func (s *sqlRows) Close() error {
	return s.rows.Close()
}

// sqlResult wraps standard library sql.Result to implement the DBResult interface.
type sqlResult struct {
	result sql.Result
}

// RowsAffected returns the number of rows affected by the command.
func (s *sqlResult) RowsAffected() (int64, error) {
	return s.result.RowsAffected()
}
