// Package postgres implements store.Store on PostgreSQL.
//
// Write transactions run at serializable isolation and are retried on serialization failures.
// Conditional writes are single UPDATE statements guarded in their WHERE clause.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraengage/internal/store"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var (
	dialect = goqu.Dialect("postgres")
	json    = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db          *sqlx.DB
	tracer      trace.Tracer
	maxAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds how many times a serialization failure is retried.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		tracer:      otel.Tracer("libraengage/store/postgres"),
		maxAttempts: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in a serializable transaction, retrying the whole function on serialization failures.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return store.Retry(ctx, func(ctx context.Context) error {
		return s.run(ctx, false, fn)
	}, store.WithMaxAttempts(s.maxAttempts))
}

// ReadOnly runs fn in a read-only transaction.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return store.Retry(ctx, func(ctx context.Context) error {
		return s.run(ctx, true, fn)
	}, store.WithMaxAttempts(s.maxAttempts))
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.tx", trace.WithAttributes(attribute.Bool("tx.read_only", readOnly)))
	defer span.End()

	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
		ReadOnly:  readOnly,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError converts driver errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pqErr.Constraint)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", store.ErrNotFound, pqErr.Constraint)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", store.ErrSerialization, pqErr.Message)
		}
	}
	return err
}

// tx implements store.Tx on a database transaction.
type tx struct {
	tx *sqlx.Tx
}

// guarded turns "no row updated" into ErrNotFound or ErrConflict depending on whether the row exists.
func (t *tx) guarded(ctx context.Context, res sql.Result, existsQuery string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := t.tx.GetContext(ctx, &exists, existsQuery, args...); err != nil {
		return mapError(err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	return res, nil
}

func (t *tx) selectDataset(ctx context.Context, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := t.tx.SelectContext(ctx, dest, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)
