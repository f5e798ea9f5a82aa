// Package projection is the Projection Engine (spec §3.5, §4.6): a
// small framework for consumers to derive locally-owned tables from an
// event stream. Apply runs inside the same per-partition transaction
// the Consumer Runtime (internal/consumer) already opens, so the
// projection write and the dedup record commit atomically; the runtime
// commits the log offset after that transaction has committed.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/nimbusline/platform-core/internal/eventlog"
	"github.com/nimbusline/platform-core/pkg/dbtx"
)

// ApplyFunc is a projection's apply function (spec §4.6): given the
// transaction-bound executor and a record, update the projection's own
// table(s). It must be safe to run more than once for the same record
// id (rebuild and redelivery both replay records).
type ApplyFunc func(ctx context.Context, exec dbtx.Executor, rec eventlog.Record) error

// Definition names a projection: its owning service, the topics it
// subscribes to, and the apply function the Consumer Runtime invokes
// for every record on those topics (spec §4.6).
type Definition struct {
	Name    string
	Service string
	Topics  []string
	Apply   ApplyFunc
}

// Handler adapts a Definition into the consumer.Handler signature: it
// calls Apply with the executor bound to ctx's transaction (or db when
// ctx carries none). Idempotence under replay rests on Apply itself.
func (d Definition) Handler(db *sql.DB) func(ctx context.Context, rec eventlog.Record) error {
	return func(ctx context.Context, rec eventlog.Record) error {
		exec := dbtx.GetExecutor(ctx, db)
		return d.Apply(ctx, exec, rec)
	}
}

// Store tracks rebuild bookkeeping (last_applied_event_id per
// projection, spec §3.5) and performs the truncate-and-reposition
// rebuild sequence (spec §4.6).
type Store struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// New builds a Store over db, the consumer's own local database.
func New(db *sql.DB) *Store {
	return &Store{db: db, psql: sq.StatementBuilderType{}.PlaceholderFormat(sq.Dollar)}
}

const progressTable = "projection_progress"

// RecordProgress upserts the last-applied event id for a projection,
// read back by LastAppliedEventID.
func (s *Store) RecordProgress(ctx context.Context, projection, eventID string, appliedAt time.Time) error {
	query, args, err := s.psql.Insert(progressTable).
		Columns("projection", "last_applied_event_id", "applied_at").
		Values(projection, eventID, appliedAt).
		Suffix("ON CONFLICT (projection) DO UPDATE SET last_applied_event_id = EXCLUDED.last_applied_event_id, applied_at = EXCLUDED.applied_at").
		ToSql()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	return err
}

// LastAppliedEventID returns the projection's last-applied event id, or
// "" if the projection has never applied anything (a fresh or
// just-truncated projection).
func (s *Store) LastAppliedEventID(ctx context.Context, projection string) (string, error) {
	query, args, err := s.psql.Select("last_applied_event_id").
		From(progressTable).
		Where(sq.Eq{"projection": projection}).
		ToSql()
	if err != nil {
		return "", err
	}

	var eventID string

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&eventID)
	if err == sql.ErrNoRows {
		return "", nil
	}

	return eventID, err
}

// Rebuilder truncates a projection's owned tables, dedup records and
// progress row (spec §4.6 "Rebuild"). It does not move any
// subscription itself: RebuildStartPosition reports the position the
// caller resubscribes at so the Consumer Runtime reprocesses the topic.
type Rebuilder struct {
	db         *sql.DB
	tables     []string
	subscription string
}

// NewRebuilder builds a Rebuilder for one projection's owned tables.
func NewRebuilder(db *sql.DB, subscription string, tables ...string) *Rebuilder {
	return &Rebuilder{db: db, tables: tables, subscription: subscription}
}

// Truncate empties the projection's owned tables and its dedup rows in
// one transaction, the first half of a rebuild (spec §4.6 step a).
func (r *Rebuilder) Truncate(ctx context.Context) error {
	return dbtx.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		exec := dbtx.GetExecutor(txCtx, r.db)

		for _, table := range r.tables {
			if _, err := exec.ExecContext(txCtx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
				return fmt.Errorf("projection: truncate %s: %w", table, err)
			}
		}

		if _, err := exec.ExecContext(txCtx, "DELETE FROM consumer_dedup WHERE subscription = $1", r.subscription); err != nil {
			return fmt.Errorf("projection: clear dedup for %s: %w", r.subscription, err)
		}

		if _, err := exec.ExecContext(txCtx, "DELETE FROM "+progressTable+" WHERE projection = $1", r.subscription); err != nil {
			return fmt.Errorf("projection: clear progress for %s: %w", r.subscription, err)
		}

		return nil
	})
}

// RebuildStartPosition is the position a Consumer Runtime must
// subscribe at after Truncate completes (spec §4.6 step b).
func (r *Rebuilder) RebuildStartPosition() eventlog.StartPosition {
	return eventlog.StartEarliest
}
