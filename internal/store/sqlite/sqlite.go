// Package sqlite is the Store implementation backed by a single-file
// embedded SQLite database (modernc.org/sqlite, pure Go, no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ravelhq/ravel/internal/types"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("github.com/ravelhq/ravel/store/sqlite")

type storeMetrics struct {
	retries metric.Int64Counter
}

func newStoreMetrics() storeMetrics {
	meter := otel.Meter("github.com/ravelhq/ravel/store/sqlite")
	retries, _ := meter.Int64Counter(
		"ravel.store.retries",
		metric.WithDescription("operations retried after a transient SQLITE_BUSY/locked error"),
		metric.WithUnit("{retry}"),
	)
	return storeMetrics{retries: retries}
}

// Storage is the sqlite-backed Store implementation.
type Storage struct {
	db      *sql.DB
	metrics storeMetrics
}

// New opens (creating if necessary) a single-file SQLite database at
// path and applies schema migrations idempotently.
func New(path string) (*Storage, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY storms under the
	// engine's own serialization; readers still benefit from WAL mode.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL journal mode: %w", err)
	}

	s := &Storage{db: db, metrics: newStoreMetrics()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate() error {
	var current int
	row := s.db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`)
	err := row.Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		// schema_meta table doesn't exist yet; fall through and create it.
		current = 0
	}
	if current >= schemaVersion {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM schema_meta`); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_meta(version) VALUES (?)`, schemaVersion); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// execer is the subset of *sql.DB / *sql.Tx this package needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// conn returns the active transaction's execer if one is open on ctx,
// otherwise the database handle itself (each call is then its own
// implicit transaction at the driver level).
func (s *Storage) conn(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction runs fn inside a single transaction. Spec.md §9's
// design note requires every compound operation to declare a
// transaction boundary explicitly through this primitive; a call made
// from inside an already-open transaction (nested compound operations)
// reuses it instead of opening a second one, so the whole call still
// commits or rolls back atomically.
func (s *Storage) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, already := ctx.Value(txKey{}).(*sql.Tx); already {
		return fn(ctx)
	}

	op := func() error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		txCtx := context.WithValue(ctx, txKey{}, tx)
		if err := fn(txCtx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	err := op()
	if err != nil && isTransient(err) {
		s.metrics.retries.Add(ctx, 1)
		b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
		err = backoff.Retry(func() error {
			retryErr := op()
			if retryErr != nil && !isTransient(retryErr) {
				return backoff.Permanent(retryErr)
			}
			return retryErr
		}, b)
	}
	if err != nil {
		var typed *types.Error
		if errors.As(err, &typed) {
			return err
		}
		return wrapDBError("transaction", err)
	}
	return nil
}

// startSpan opens a tracing span for a single store operation, tagged
// with the operation name and entity id, mirroring the teacher's
// per-operation span convention in internal/storage/dolt/store.go.
func (s *Storage) startSpan(ctx context.Context, op, entityID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("ravel.store.op", op)}
	if entityID != "" {
		attrs = append(attrs, attribute.String("ravel.store.entity_id", entityID))
	}
	return tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
