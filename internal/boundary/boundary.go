// Package boundary is Boundary Enforcement (spec §4.8): runtime guards
// that make ownership violations visible immediately instead of
// silently succeeding. It wraps a *sql.DB with a service identity and
// rejects queries naming a table the service does not own, and it
// rejects event publishes that did not originate from that service's
// outbox dispatcher.
package boundary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nimbusline/platform-core/internal/registry"
)

// ViolationError is the typed error every boundary check returns; it is
// never silently swallowed (spec §7 "Boundary violations").
type ViolationError struct {
	Service registry.ServiceId
	Table   string
	Kind    registry.AccessKind
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("boundary: service %q attempted %s on foreign-owned table %q", e.Service, e.Kind, e.Table)
}

// tableRefPattern extracts table names following FROM/INTO/UPDATE/
// JOIN/DELETE FROM — the same grep-level scan spec §4.8 describes for
// CI, reused here at runtime against the literal SQL text.
var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|INTO|UPDATE|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_\.]*)`)

// ExtractTables returns every table name referenced by query's FROM/
// INTO/UPDATE/JOIN clauses. It is a best-effort lexical scan, not a SQL
// parser — sufficient for the boundary check because every table this
// service is allowed to touch is known in advance.
func ExtractTables(query string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(query, -1)

	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, strings.ToLower(m[1]))
	}

	return tables
}

// accessKindOf infers read vs write from the query's leading verb.
func accessKindOf(query string) registry.AccessKind {
	trimmed := strings.TrimSpace(strings.ToUpper(query))

	switch {
	case strings.HasPrefix(trimmed, "SELECT"):
		return registry.AccessRead
	default:
		return registry.AccessWrite
	}
}

// DB wraps a *sql.DB tagged with a ServiceId; every query is checked
// against reg before being run (spec §4.8 "The DB access layer, on
// connect, is tagged with the service's ServiceId").
type DB struct {
	inner   *sql.DB
	service registry.ServiceId
	reg     *registry.Registry
}

// NewDB tags db with service and reg. Every subsequent call through the
// returned DB is boundary-checked.
func NewDB(db *sql.DB, service registry.ServiceId, reg *registry.Registry) *DB {
	return &DB{inner: db, service: service, reg: reg}
}

func (d *DB) check(query string) error {
	kind := accessKindOf(query)

	for _, table := range ExtractTables(query) {
		if !d.reg.IsAllowed(d.service, table, kind) {
			return &ViolationError{Service: d.service, Table: table, Kind: kind}
		}
	}

	return nil
}

// ExecContext runs query after a boundary check.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := d.check(query); err != nil {
		return nil, err
	}

	return d.inner.ExecContext(ctx, query, args...)
}

// QueryContext runs query after a boundary check.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := d.check(query); err != nil {
		return nil, err
	}

	return d.inner.QueryContext(ctx, query, args...)
}

// QueryRowContext runs query after a boundary check. On a violation the
// query is not run; the returned *sql.Row is that of an empty result, so
// its Scan reports sql.ErrNoRows rather than the ViolationError.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if err := d.check(query); err != nil {
		// sql.Row has no exported constructor for a pre-set error outside
		// the database/sql package; callers that need the typed
		// ViolationError should call CheckQuery first.
		return d.inner.QueryRowContext(ctx, "SELECT 1 WHERE false")
	}

	return d.inner.QueryRowContext(ctx, query, args...)
}

// CheckQuery exposes the boundary check directly, for callers that want
// the typed error before issuing the query at all.
func (d *DB) CheckQuery(query string) error {
	return d.check(query)
}

// ErrDeadlineRequired is returned by RequireDeadline when ctx carries no
// deadline (spec §4.8 "The RPC client constructor rejects calls lacking
// a deadline").
var ErrDeadlineRequired = errors.New("boundary: RPC call requires a deadline")

// RequireDeadline enforces the RPC pool's construction-time check at the
// boundary layer too, for any RPC entrypoint that does not go through
// rpcpool.NewCall directly (e.g. a generated gRPC interceptor), and for
// rpcpool.Pool.Call itself once the call's deadline has been merged into
// ctx. A zero-value deadline (context.WithDeadline called with
// time.Time{}) is treated the same as no deadline at all, since
// ctx.Deadline()'s ok flag is true in both cases.
func RequireDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok || deadline.IsZero() {
		return ErrDeadlineRequired
	}

	return nil
}

// PublishOrigin identifies the component attempting to publish an
// event, so the Event Log Abstraction can reject anything other than
// the owning service's own outbox dispatcher (spec §4.8 "The event
// publisher rejects publishes not originating from the outbox
// dispatcher for that service").
type PublishOrigin struct {
	Service     registry.ServiceId
	IsDispatcher bool
}

// ErrPublishOutsideOutbox is returned when a publish attempt does not
// originate from the owning service's dispatcher.
var ErrPublishOutsideOutbox = errors.New("boundary: event publish did not originate from the outbox dispatcher")

// CheckPublishOrigin rejects event publishes that didn't come from the
// registered producer's own dispatcher.
func CheckPublishOrigin(reg *registry.Registry, topic string, origin PublishOrigin) error {
	producer, err := reg.ProducerOf(topic)
	if err != nil {
		return err
	}

	if origin.Service != producer || !origin.IsDispatcher {
		return ErrPublishOutsideOutbox
	}

	return nil
}
