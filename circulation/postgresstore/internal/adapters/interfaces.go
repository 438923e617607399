// Package adapters wraps the supported database access layers - pgxpool,
// sqlx and database/sql - behind one minimal interface so the store can run
// serializable transactions against any of them.
package adapters

import "context"

// DBAdapter defines the interface for database operations needed by the store.
type DBAdapter interface {
	// BeginSerializable starts a transaction with SERIALIZABLE isolation.
	BeginSerializable(ctx context.Context) (DBTx, error)
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBTx defines the interface for operations inside one transaction.
type DBTx interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
