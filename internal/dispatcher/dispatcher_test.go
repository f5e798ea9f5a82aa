package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusline/platform-core/common/mlog"
	"github.com/nimbusline/platform-core/internal/eventlog"
	"github.com/nimbusline/platform-core/internal/outbox"
)

type fakeStore struct {
	mu          sync.Mutex
	rows        []outbox.Row
	published   []uuid.UUID
	failed      map[uuid.UUID]int
	quarantined map[uuid.UUID]bool
}

func newFakeStore(rows ...outbox.Row) *fakeStore {
	return &fakeStore{rows: rows, failed: map[uuid.UUID]int{}, quarantined: map[uuid.UUID]bool{}}
}

func (s *fakeStore) LeaseBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]outbox.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := batchSize
	if n > len(s.rows) {
		n = len(s.rows)
	}

	batch := s.rows[:n]
	s.rows = s.rows[n:]

	return batch, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, eventID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, eventID)

	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, eventID uuid.UUID, maxAttempts int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[eventID]++

	if s.failed[eventID] >= maxAttempts {
		s.quarantined[eventID] = true
	}

	return nil
}

type fakeProducer struct {
	mu      sync.Mutex
	calls   int
	failing bool
}

func (p *fakeProducer) Publish(_ context.Context, _, _ string, _ eventlog.Record) (eventlog.PublishAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if p.failing {
		return eventlog.PublishAck{}, errors.New("broker unavailable")
	}

	return eventlog.PublishAck{Offset: int64(p.calls)}, nil
}

func (p *fakeProducer) Close() error { return nil }

func noopLogger() mlog.Logger {
	return mlog.NewLoggerFromContext(context.Background())
}

func TestDrainOnce_PublishesLeasedRowsAndMarksPublished(t *testing.T) {
	t.Parallel()

	eventID := uuid.New()
	store := newFakeStore(outbox.Row{EventID: eventID, AggregateID: "p1", AggregateType: "post"})
	producer := &fakeProducer{}
	d := New(store, producer, DefaultAggregateTypeRouter, DefaultConfig("inst-1"), noopLogger(), nil)

	d.drainOnce(context.Background())

	assert.Equal(t, 1, producer.calls)
	require.Len(t, store.published, 1)
	assert.Equal(t, eventID, store.published[0])
}

func TestDrainOnce_PublishFailureMarksFailedNotPublished(t *testing.T) {
	t.Parallel()

	eventID := uuid.New()
	store := newFakeStore(outbox.Row{EventID: eventID, AggregateID: "p1", AggregateType: "post"})
	producer := &fakeProducer{failing: true}
	d := New(store, producer, DefaultAggregateTypeRouter, DefaultConfig("inst-1"), noopLogger(), nil)

	d.drainOnce(context.Background())

	assert.Empty(t, store.published)
	assert.Equal(t, 1, store.failed[eventID])
}

func TestDrainOnce_QuarantinesAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	eventID := uuid.New()
	store := newFakeStore()
	producer := &fakeProducer{failing: true}
	cfg := DefaultConfig("inst-1")
	cfg.MaxAttempts = 1

	d := New(store, producer, DefaultAggregateTypeRouter, cfg, noopLogger(), nil)
	store.rows = []outbox.Row{{EventID: eventID, AggregateID: "p1", AggregateType: "post", PublishAttempts: 0}}

	d.drainOnce(context.Background())

	assert.True(t, store.quarantined[eventID])
}

func TestDefaultAggregateTypeRouter_RoutesByAggregateType(t *testing.T) {
	t.Parallel()

	topic, key := DefaultAggregateTypeRouter(outbox.Row{AggregateID: "p1", AggregateType: "post"})
	assert.Equal(t, "post.events", topic)
	assert.Equal(t, "p1", key)
}
