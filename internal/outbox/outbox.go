// Package outbox is the Outbox Store (spec §3.2, §4.2, §6.2): a
// per-service append-only table co-located with domain state. Writers
// append inside their own business transaction through Append/
// AppendMany; the Outbox Dispatcher (internal/dispatcher) is the only
// other reader, leasing unpublished rows for publish.
package outbox

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nimbusline/platform-core/pkg/dbtx"
)

// Event is what a business transaction hands to Append — the durable
// shape is Row, built from Event plus bookkeeping columns.
type Event struct {
	EventID        uuid.UUID
	AggregateID    string
	AggregateType  string
	EventKind      string
	SchemaVersion  int
	Payload        any
	CorrelationID  string
	CausationID    string // empty if this event was not caused by another
	OccurredAt     time.Time
}

// Row is one outbox table row (spec §6.2 column list), plus a
// Quarantined flag the dispatcher sets after MaxAttempts (spec §4.3).
type Row struct {
	EventID        uuid.UUID
	AggregateID    string
	AggregateType  string
	EventKind      string
	SchemaVersion  int
	Payload        []byte
	CorrelationID  string
	CausationID    string
	OccurredAt     time.Time
	CreatedAt      time.Time
	PublishedAt    *time.Time
	PublishAttempts int
	ClaimedBy      string
	ClaimedUntil   *time.Time
	Quarantined    bool
}

const tableName = "outbox_events"

// columns lists every selected column in the order Row's fields expect
// to be Scanned, shared by lease and find-by-id queries.
var columns = []string{
	"event_id", "aggregate_id", "aggregate_type", "event_kind", "schema_version",
	"payload", "correlation_id", "causation_id", "occurred_at", "created_at",
	"published_at", "publish_attempts", "claimed_by", "claimed_until", "quarantined",
}

// Store is the Outbox Store for one service's Postgres database.
type Store struct {
	db      *sql.DB
	psql    sq.StatementBuilderType
}

// New builds a Store over db, an already-opened *sql.DB the caller's
// connection layer has tagged for boundary enforcement.
func New(db *sql.DB) *Store {
	return &Store{db: db, psql: sq.StatementBuilderType{}.PlaceholderFormat(sq.Dollar)}
}

// encodePayload msgpack-encodes the event payload into the opaque bytes
// column spec §6.1 describes.
func encodePayload(payload any) ([]byte, error) {
	if b, ok := payload.([]byte); ok {
		return b, nil
	}

	return msgpack.Marshal(payload)
}

// Append inserts one outbox row inside the caller's transaction,
// retrieved from ctx via dbtx.GetExecutor. Callers MUST go through this
// API; there is no path to publish an event without first appending it
// here (spec §4.2).
func (s *Store) Append(ctx context.Context, event Event) error {
	return s.AppendMany(ctx, []Event{event})
}

// AppendMany is the batch form of Append: all rows are inserted with
// the caller's surrounding transaction, so they are all-or-nothing with
// the business mutation (spec §4.2).
func (s *Store) AppendMany(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	exec := dbtx.GetExecutor(ctx, s.db)

	insert := s.psql.Insert(tableName).Columns(
		"event_id", "aggregate_id", "aggregate_type", "event_kind", "schema_version",
		"payload", "correlation_id", "causation_id", "occurred_at", "created_at",
	)

	now := time.Now().UTC()

	for _, e := range events {
		payload, err := encodePayload(e.Payload)
		if err != nil {
			return err
		}

		occurredAt := e.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = now
		}

		insert = insert.Values(
			e.EventID, e.AggregateID, e.AggregateType, e.EventKind, e.SchemaVersion,
			payload, e.CorrelationID, nullableString(e.CausationID), occurredAt, now,
		)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// LeaseBatch claims up to batchSize unpublished rows not currently held
// by another dispatcher instance, ordered by created_at (spec §4.3
// step 1). leaseTTL bounds how long instanceID holds the claim before
// another dispatcher may re-lease it.
func (s *Store) LeaseBatch(ctx context.Context, instanceID string, batchSize int, leaseTTL time.Duration) ([]Row, error) {
	now := time.Now().UTC()
	until := now.Add(leaseTTL)

	selectQuery, selectArgs, err := s.psql.Select("event_id").
		From(tableName).
		Where(sq.Eq{"published_at": nil, "quarantined": false}).
		Where(sq.Or{
			sq.Eq{"claimed_until": nil},
			sq.Lt{"claimed_until": now},
		}).
		OrderBy("created_at ASC").
		Limit(uint64(batchSize)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	claimQuery, claimArgs, err := s.psql.Update(tableName).
		Set("claimed_by", instanceID).
		Set("claimed_until", until).
		Where(sq.Eq{"event_id": ids}).
		Suffix("RETURNING " + selectAllColumns()).
		ToSql()
	if err != nil {
		return nil, err
	}

	claimed, err := tx.QueryContext(ctx, claimQuery, claimArgs...)
	if err != nil {
		return nil, err
	}

	defer claimed.Close()

	var leased []Row

	for claimed.Next() {
		r, err := scanRow(claimed)
		if err != nil {
			return nil, err
		}

		leased = append(leased, r)
	}

	if err := claimed.Err(); err != nil {
		return nil, err
	}

	return leased, tx.Commit()
}

// MarkPublished sets published_at and releases the lease in a single
// statement (spec §4.3 step 3): after this call, the row is considered
// published.
func (s *Store) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	query, args, err := s.psql.Update(tableName).
		Set("published_at", time.Now().UTC()).
		Set("claimed_by", nil).
		Set("claimed_until", nil).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	return err
}

// MarkFailed increments publish_attempts and reschedules the row instead
// of releasing it for immediate re-lease: claimed_until is set to
// nextAttemptAt, the dispatcher's backoff deadline (spec §4.3 step 4,
// "exponential backoff with jitter, capped"), so LeaseBatch will not
// re-claim the row until that deadline passes. Once attempts reaches
// maxAttempts the row is quarantined instead of rescheduled.
func (s *Store) MarkFailed(ctx context.Context, eventID uuid.UUID, maxAttempts int, nextAttemptAt time.Time) error {
	query, args, err := s.psql.Update(tableName).
		Set("publish_attempts", sq.Expr("publish_attempts + 1")).
		Set("claimed_by", nil).
		Set("claimed_until", nextAttemptAt).
		Set("quarantined", sq.Expr("(publish_attempts + 1) >= ?", maxAttempts)).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	return err
}

// UnpublishedDepth returns the count of unpublished, non-quarantined
// rows, the depth metric Observability Hooks surfaces (spec §4.9).
func (s *Store) UnpublishedDepth(ctx context.Context) (int64, error) {
	query, args, err := s.psql.Select("count(*)").
		From(tableName).
		Where(sq.Eq{"published_at": nil, "quarantined": false}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int64

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)

	return count, err
}

// QuarantinedRows lists rows parked in the poison queue for operator
// inspection (cmd/platformctl `outbox quarantined`, spec §9 Open Questions).
func (s *Store) QuarantinedRows(ctx context.Context, limit int) ([]Row, error) {
	query, args, err := s.psql.Select(selectAllColumns()).
		From(tableName).
		Where(sq.Eq{"quarantined": true}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var result []Row

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, r)
	}

	return result, rows.Err()
}

// Unquarantine clears the quarantine flag and resets publish_attempts
// so the dispatcher retries the row, a human-triggered action only
// (cmd/platformctl `dlq replay`).
func (s *Store) Unquarantine(ctx context.Context, eventID uuid.UUID) error {
	query, args, err := s.psql.Update(tableName).
		Set("quarantined", false).
		Set("publish_attempts", 0).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	return err
}

// PruneBefore deletes published rows whose published_at is older than
// cutoff, the retention-window pruner spec §6.2 requires.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.psql.Delete(tableName).
		Where(sq.NotEq{"published_at": nil}).
		Where(sq.Lt{"published_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func selectAllColumns() string {
	out := columns[0]
	for _, c := range columns[1:] {
		out += ", " + c
	}

	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (Row, error) {
	var (
		r           Row
		causationID sql.NullString
		claimedBy   sql.NullString
	)

	err := sc.Scan(
		&r.EventID, &r.AggregateID, &r.AggregateType, &r.EventKind, &r.SchemaVersion,
		&r.Payload, &r.CorrelationID, &causationID, &r.OccurredAt, &r.CreatedAt,
		&r.PublishedAt, &r.PublishAttempts, &claimedBy, &r.ClaimedUntil, &r.Quarantined,
	)
	if err != nil {
		return r, err
	}

	r.CausationID = causationID.String
	r.ClaimedBy = claimedBy.String

	return r, err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
