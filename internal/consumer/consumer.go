// Package consumer is the Consumer Runtime (spec §4.5): it runs
// subscription handlers with at-least-once delivery, idempotent-apply
// via an event_id dedup table, per-partition strict ordering, and
// dead-letter routing after a bounded number of handler retries.
package consumer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/metric"

	"github.com/nimbusline/platform-core/common/mlog"
	"github.com/nimbusline/platform-core/internal/eventlog"
	"github.com/nimbusline/platform-core/internal/observability"
	"github.com/nimbusline/platform-core/pkg/dbtx"
	"github.com/nimbusline/platform-core/pkg/mretry"
	"github.com/nimbusline/platform-core/pkg/mruntime"
)

// Handler applies one record's effect inside the local transaction ctx
// carries (retrieved via pkg/dbtx.GetExecutor), e.g. writing a
// projection row. It must not commit or roll back; the runtime owns the
// transaction boundary so the dedup insert is atomic with the apply.
type Handler func(ctx context.Context, rec eventlog.Record) error

// Config tunes per-record timeout, retry budget, and the dead-letter
// topic suffix (spec §6.4: consumer.handler_timeout, consumer.
// max_retries, consumer.dlq_topic_suffix). max_in_flight_per_partition
// is always 1 and is therefore not a field here (spec §6.4 explicitly
// calls out that this must not become a knob).
type Config struct {
	Subscription   string
	Group          string
	HandlerTimeout time.Duration
	Retry          mretry.Config
	DLQTopicSuffix string
}

// DefaultConfig returns spec §4.5's defaults: 30s per-record timeout,
// 5 retries with exponential backoff.
func DefaultConfig(subscription, group string) Config {
	return Config{
		Subscription:   subscription,
		Group:          group,
		HandlerTimeout: 30 * time.Second,
		Retry:          mretry.DefaultMetadataOutboxConfig().WithMaxRetries(5),
		DLQTopicSuffix: ".dlq",
	}
}

// DeadLetterProducer is the narrow eventlog.Producer surface the
// runtime needs to route a poison record to its DLQ topic.
type DeadLetterProducer interface {
	Publish(ctx context.Context, topic, partitionKey string, rec eventlog.Record) (eventlog.PublishAck, error)
}

// Runtime runs one subscription's handler over a stream of records from
// a Consumer (internal/eventlog). Records from all partitions arrive on
// one merged stream and are processed one at a time in a single loop.
type Runtime struct {
	db      *sql.DB
	psql    sq.StatementBuilderType
	source  eventlog.Consumer
	deadLtr DeadLetterProducer
	handler Handler
	cfg     Config
	logger  mlog.Logger
	hooks   *observability.Hooks

	dlqCount atomic.Int64
}

// New builds a Runtime. db is the consumer's own local database (never
// the producer's — spec §5 "Projection tables are written only by their
// owning consumer"). hooks may be nil, in which case the runtime emits
// no metrics; otherwise New registers the DLQSize gauge callback
// against hooks.Meter so spec §4.9's "DLQ size" observation reflects
// this runtime's own dead-letter count.
func New(db *sql.DB, source eventlog.Consumer, deadLtr DeadLetterProducer, handler Handler, cfg Config, logger mlog.Logger, hooks *observability.Hooks) *Runtime {
	r := &Runtime{
		db:      db,
		psql:    sq.StatementBuilderType{}.PlaceholderFormat(sq.Dollar),
		source:  source,
		deadLtr: deadLtr,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		hooks:   hooks,
	}

	if hooks != nil && hooks.Meter != nil {
		_, err := hooks.Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(hooks.DLQSize, r.dlqCount.Load())
			return nil
		}, hooks.DLQSize)
		if err != nil {
			logger.Errorf("consumer: register dlq_size callback: %v", err)
		}
	}

	return r
}

const dedupTable = "consumer_dedup"

// alreadyApplied checks the dedup table for (subscription, event_id)
// inside the caller's transaction (spec §4.5 step 2a).
func (r *Runtime) alreadyApplied(ctx context.Context, exec dbtx.Executor, eventID string) (bool, error) {
	query, args, err := r.psql.Select("1").
		From(dedupTable).
		Where(sq.Eq{"subscription": r.cfg.Subscription, "event_id": eventID}).
		ToSql()
	if err != nil {
		return false, err
	}

	var one int

	err = exec.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	return err == nil, err
}

// recordApplied inserts the dedup marker (spec §4.5 step 2c).
func (r *Runtime) recordApplied(ctx context.Context, exec dbtx.Executor, eventID string) error {
	query, args, err := r.psql.Insert(dedupTable).
		Columns("subscription", "event_id", "applied_at").
		Values(r.cfg.Subscription, eventID, time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// Subscribe starts consuming topic under the runtime's configured
// group and processes records until ctx is cancelled (spec §4.5
// "Cancellation": in-flight handlers run to completion, offsets
// flushed, workers exit). numPartitions must match the topic's declared
// partition count (internal/registry.TopicContract.Partitions) so every
// partition actually gets a worker, not just partition 0.
func (r *Runtime) Subscribe(ctx context.Context, topic string, numPartitions int, start eventlog.StartPosition) error {
	stream, err := r.source.Subscribe(ctx, topic, r.cfg.Group, numPartitions, start)
	if err != nil {
		return fmt.Errorf("consumer: subscribe %q: %w", topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-stream:
			if !ok {
				return nil
			}

			r.processOne(ctx, topic, rec)
		}
	}
}

// processOne runs the per-record processing contract: dedup check,
// apply-in-transaction, commit, then advance the log offset. A handler
// panic is recovered and treated as a transient failure for this
// record.
func (r *Runtime) processOne(ctx context.Context, topic string, rec eventlog.Record) {
	attempt := 0

	for {
		attempt++

		err := r.applyOnce(ctx, rec)
		if err == nil {
			if commitErr := r.source.Commit(ctx, r.cfg.Subscription, rec.Partition, rec.Offset); commitErr != nil {
				r.logger.Errorf("consumer: commit offset %d: %v", rec.Offset, commitErr)
			}

			return
		}

		if attempt > r.cfg.Retry.MaxRetries {
			r.routeToDeadLetter(ctx, topic, rec, err, attempt)

			if commitErr := r.source.Commit(ctx, r.cfg.Subscription, rec.Partition, rec.Offset); commitErr != nil {
				r.logger.Errorf("consumer: commit after dlq %d: %v", rec.Offset, commitErr)
			}

			return
		}

		if r.hooks != nil {
			r.hooks.ConsumerRetries.Add(ctx, 1)
		}

		backoff := r.cfg.Retry.Backoff(attempt)
		r.logger.Errorf("consumer: apply event_id=%s attempt=%d: %v (retrying in %.0fms)", rec.EventID, attempt, err, backoff)

		select {
		case <-time.After(time.Duration(backoff) * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

// applyOnce runs one attempt of the per-record processing contract in
// a single local transaction (spec §4.5 step 2).
func (r *Runtime) applyOnce(ctx context.Context, rec eventlog.Record) (err error) {
	defer func() {
		if rcv := recover(); rcv != nil {
			err = fmt.Errorf("consumer: handler panic: %v", rcv)
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, r.cfg.HandlerTimeout)
	defer cancel()

	return dbtx.RunInTransaction(timeoutCtx, r.db, func(txCtx context.Context) error {
		exec := dbtx.GetExecutor(txCtx, r.db)

		applied, dupErr := r.alreadyApplied(txCtx, exec, rec.EventID)
		if dupErr != nil {
			return dupErr
		}

		if applied {
			return nil
		}

		if applyErr := r.handler(txCtx, rec); applyErr != nil {
			return applyErr
		}

		return r.recordApplied(txCtx, exec, rec.EventID)
	})
}

// routeToDeadLetter publishes rec to its subscription's DLQ topic, a
// terminal action after the retry budget is exhausted (spec §4.5
// "Persistent failure"). The published record is rec with only Topic
// changed; the failure cause and attempt count are logged, not attached
// to the record.
func (r *Runtime) routeToDeadLetter(ctx context.Context, topic string, rec eventlog.Record, cause error, attempts int) {
	defer mruntime.RecoverAndLog(r.logger, "consumer.routeToDeadLetter")

	r.dlqCount.Add(1)

	dlqTopic := topic + r.cfg.DLQTopicSuffix

	dlqRec := rec
	dlqRec.Topic = dlqTopic

	if _, err := r.deadLtr.Publish(ctx, dlqTopic, rec.AggregateID, dlqRec); err != nil {
		r.logger.Errorf("consumer: publish to dlq %q for event_id=%s: %v", dlqTopic, rec.EventID, err)
		return
	}

	r.logger.Errorf("consumer: event_id=%s routed to %s after %d attempts: %v", rec.EventID, dlqTopic, attempts, cause)
}

// Lag returns log_head_offset - committed_offset for (partition), the
// metric spec §4.5/§4.9 requires. headOffset is supplied by the caller
// from the log abstraction's own head-tracking (not every broker
// exposes this the same way).
func Lag(headOffset, committedOffset int64) int64 {
	lag := headOffset - committedOffset
	if lag < 0 {
		return 0
	}

	return lag
}
