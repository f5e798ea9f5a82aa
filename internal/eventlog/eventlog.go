// Package eventlog is the Event Log Abstraction (spec §3.3, §4.4): a
// minimal producer/consumer interface over a partitioned, ordered,
// durable log, so the rest of the substrate never imports a broker
// client directly. The only implementation shipped here is backed by
// RabbitMQ (github.com/rabbitmq/amqp091-go) via one direct exchange per topic with
// one queue per partition, bound by a routing key carrying the
// partition number — the same fan-out shape the teacher's (now
// superseded) common/mrabbitmq used, generalized from a single ledger
// exchange to an arbitrary topic set.
package eventlog

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimbusline/platform-core/internal/boundary"
	"github.com/nimbusline/platform-core/internal/registry"
	"github.com/nimbusline/platform-core/pkg/mretry"
)

// Record is one immutable log record (spec §3.3).
type Record struct {
	Topic         string
	Partition     int
	Offset        int64
	EventID       string
	AggregateID   string
	EventKind     string
	SchemaVersion int
	Payload       []byte
	ProducedAt    time.Time
	CorrelationID string
	CausationID   string
	ProducerID    string
}

// PublishAck confirms a record was durably persisted on a quorum.
type PublishAck struct {
	Partition int
	Offset    int64
}

// Producer publishes records to a topic; the spec requires the call to
// block until durability-ack (spec §4.4).
type Producer interface {
	Publish(ctx context.Context, topic, partitionKey string, rec Record) (PublishAck, error)
	Close() error
}

// Consumer subscribes to a topic under a consumer group and delivers
// records in partition-offset order within each partition. numPartitions
// must match the topic's declared partition count (spec §4.4's topic
// contract, internal/registry.TopicContract.Partitions) — the consumer
// side has no way to discover it on its own, since partition count is
// administrative, fixed at topic creation.
type Consumer interface {
	Subscribe(ctx context.Context, topic, group string, numPartitions int, start StartPosition) (<-chan Record, error)
	Commit(ctx context.Context, subscription string, partition int, offset int64) error
	Close() error
}

// StartPosition mirrors registry.StartPosition; duplicated here (rather
// than imported as a type alias) to keep the Producer/Consumer
// interface's own vocabulary self-contained. eventlog does depend on
// internal/registry and internal/boundary for the publish-origin check
// below.
type StartPosition string

const (
	StartEarliest     StartPosition = "earliest"
	StartLatest       StartPosition = "latest"
	StartStoredOffset StartPosition = "stored-offset"
)

// PartitionFor returns the stable partition index for key under
// numPartitions: same key always maps to the same partition for the
// lifetime of the topic (spec §4.4).
func PartitionFor(key string, numPartitions int) int {
	if numPartitions <= 0 {
		return 0
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return int(h.Sum32() % uint32(numPartitions))
}

func exchangeName(topic string) string   { return "log." + topic }
func queueName(topic string, p int) string { return fmt.Sprintf("log.%s.p%d", topic, p) }
func routingKey(p int) string             { return fmt.Sprintf("p%d", p) }

// RabbitProducer is the amqp091-go-backed Producer. Every instance is
// tagged with the registry and the PublishOrigin it publishes under, so
// Publish can enforce spec §4.8's "the event publisher rejects publishes
// not originating from the outbox dispatcher for that service" guard
// (internal/boundary.CheckPublishOrigin) on every call, not just at
// construction time.
type RabbitProducer struct {
	conn         *amqp.Connection
	ch           *amqp.Channel
	producerID   string
	partitionsOf map[string]int
	reg          *registry.Registry
	origin       boundary.PublishOrigin
	mu           sync.Mutex
	retry        mretry.Config
}

// NewRabbitProducer opens a confirm-mode channel on conn. partitionsOf
// gives the (fixed, administrative) partition count per topic (spec
// §4.4: partition count is part of the topic contract and immutable).
// reg and origin are consulted on every Publish call to reject publishes
// that do not originate from the topic's registered producer (spec
// §4.8).
func NewRabbitProducer(conn *amqp.Connection, producerID string, partitionsOf map[string]int, reg *registry.Registry, origin boundary.PublishOrigin) (*RabbitProducer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("eventlog: open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("eventlog: enable confirm mode: %w", err)
	}

	return &RabbitProducer{
		conn:         conn,
		ch:           ch,
		producerID:   producerID,
		partitionsOf: partitionsOf,
		reg:          reg,
		origin:       origin,
		retry:        mretry.DefaultMetadataOutboxConfig(),
	}, nil
}

func (p *RabbitProducer) ensureTopology(topic string, numPartitions int) error {
	if err := p.ch.ExchangeDeclare(exchangeName(topic), "direct", true, false, false, false, nil); err != nil {
		return err
	}

	for part := 0; part < numPartitions; part++ {
		q, err := p.ch.QueueDeclare(queueName(topic, part), true, false, false, false, nil)
		if err != nil {
			return err
		}

		if err := p.ch.QueueBind(q.Name, routingKey(part), exchangeName(topic), false, nil); err != nil {
			return err
		}
	}

	return nil
}

// Publish sends rec to the partition derived from partitionKey and
// blocks for the broker's publisher-confirm (spec §4.4 "blocks until
// durably persisted").
func (p *RabbitProducer) Publish(ctx context.Context, topic, partitionKey string, rec Record) (PublishAck, error) {
	if err := boundary.CheckPublishOrigin(p.reg, topic, p.origin); err != nil {
		return PublishAck{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	numPartitions := p.partitionsOf[topic]
	if numPartitions <= 0 {
		numPartitions = 1
	}

	partition := PartitionFor(partitionKey, numPartitions)

	if err := p.ensureTopology(topic, numPartitions); err != nil {
		return PublishAck{}, fmt.Errorf("eventlog: declare topology: %w", err)
	}

	confirmCh := p.ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	headers := amqp.Table{
		"event_id":       rec.EventID,
		"aggregate_id":   rec.AggregateID,
		"event_kind":     rec.EventKind,
		"schema_version": int32(rec.SchemaVersion),
		"correlation_id": rec.CorrelationID,
		"causation_id":   rec.CausationID,
		"producer_id":    p.producerID,
		"partition":      int32(partition),
	}

	err := p.ch.PublishWithContext(ctx, exchangeName(topic), routingKey(partition), true, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/msgpack",
		Body:         rec.Payload,
		Timestamp:    time.Now().UTC(),
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return PublishAck{}, fmt.Errorf("eventlog: publish: %w", err)
	}

	select {
	case confirm := <-confirmCh:
		if !confirm.Ack {
			return PublishAck{}, fmt.Errorf("eventlog: broker nacked publish for topic %q", topic)
		}

		return PublishAck{Partition: partition, Offset: int64(confirm.DeliveryTag)}, nil
	case <-ctx.Done():
		return PublishAck{}, ctx.Err()
	}
}

// Close releases the underlying channel.
func (p *RabbitProducer) Close() error {
	return p.ch.Close()
}

// offsetKey identifies a committed-offset slot.
type offsetKey struct {
	subscription string
	partition    int
}

// RabbitConsumer is the amqp091-go-backed Consumer. Offset tracking is
// delegated to the broker's own ack/requeue semantics plus an in-memory
// high-water mark per (subscription, partition); a production deployment
// swaps the in-memory map for a durable store without changing this
// interface (spec §4.4: "committed offsets survive consumer restarts").
type RabbitConsumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu      sync.Mutex
	offsets map[offsetKey]int64
	tags    map[offsetKey][]uint64
}

// NewRabbitConsumer opens a channel on conn for subscribing.
func NewRabbitConsumer(conn *amqp.Connection) (*RabbitConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("eventlog: open channel: %w", err)
	}

	if err := ch.Qos(32, 0, false); err != nil {
		return nil, fmt.Errorf("eventlog: set qos: %w", err)
	}

	return &RabbitConsumer{
		conn:    conn,
		ch:      ch,
		offsets: make(map[offsetKey]int64),
		tags:    make(map[offsetKey][]uint64),
	}, nil
}

// Subscribe delivers records from every one of the topic's numPartitions
// queues onto one merged channel, one goroutine per partition (spec
// §4.5 "one worker per partition"); ordering within a partition is
// preserved because each partition's queue is consumed by its own
// goroutine writing to the shared channel only after the previous
// record on that partition has been handed off (spec §4.5 enforces
// in-order apply on the consumer side; this just must not reorder what
// it hands the runtime).
func (c *RabbitConsumer) Subscribe(ctx context.Context, topic, group string, numPartitions int, start StartPosition) (<-chan Record, error) {
	out := make(chan Record)

	if numPartitions <= 0 {
		numPartitions = 1
	}

	if err := c.ch.ExchangeDeclare(exchangeName(topic), "direct", true, false, false, false, nil); err != nil {
		return nil, err
	}

	for part := 0; part < numPartitions; part++ {
		queue := fmt.Sprintf("%s.%s", group, queueName(topic, part))

		q, err := c.ch.QueueDeclare(queue, true, false, false, false, nil)
		if err != nil {
			return nil, err
		}

		if err := c.ch.QueueBind(q.Name, routingKey(part), exchangeName(topic), false, nil); err != nil {
			return nil, err
		}

		deliveries, err := c.ch.ConsumeWithContext(ctx, q.Name, group, false, false, false, false, nil)
		if err != nil {
			return nil, err
		}

		go c.forward(ctx, topic, group, part, deliveries, out)
	}

	return out, nil
}

func (c *RabbitConsumer) forward(ctx context.Context, topic, subscription string, partition int, deliveries <-chan amqp.Delivery, out chan<- Record) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			rec := Record{
				Topic:       topic,
				Partition:   partition,
				Offset:      int64(binary.BigEndian.Uint64(offsetBytes(d.DeliveryTag))),
				Payload:     d.Body,
				ProducedAt:  d.Timestamp,
			}

			if v, ok := d.Headers["event_id"].(string); ok {
				rec.EventID = v
			}

			if v, ok := d.Headers["aggregate_id"].(string); ok {
				rec.AggregateID = v
			}

			if v, ok := d.Headers["event_kind"].(string); ok {
				rec.EventKind = v
			}

			if v, ok := d.Headers["correlation_id"].(string); ok {
				rec.CorrelationID = v
			}

			if v, ok := d.Headers["causation_id"].(string); ok {
				rec.CausationID = v
			}

			c.mu.Lock()
			key := offsetKey{subscription: subscription, partition: partition}
			c.tags[key] = append(c.tags[key], d.DeliveryTag)
			c.mu.Unlock()

			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func offsetBytes(tag uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, tag)

	return b
}

// Commit acks every delivery observed so far for (subscription,
// partition) up to and including offset, the durable-progress write
// the runtime calls only after the handler's local transaction commits
// (spec §4.5 step 3).
func (c *RabbitConsumer) Commit(ctx context.Context, subscription string, partition int, offset int64) error {
	c.mu.Lock()
	key := offsetKey{subscription: subscription, partition: partition}
	var tags, pending []uint64

	for _, tag := range c.tags[key] {
		if tag <= uint64(offset) {
			tags = append(tags, tag)
		} else {
			pending = append(pending, tag)
		}
	}

	c.tags[key] = pending
	c.offsets[key] = offset
	c.mu.Unlock()

	for _, tag := range tags {
		if err := c.ch.Ack(tag, false); err != nil {
			return fmt.Errorf("eventlog: ack: %w", err)
		}
	}

	return nil
}

// CommittedOffset returns the last committed offset for (subscription,
// partition), used to compute consumer lag (spec §4.5, §4.9).
func (c *RabbitConsumer) CommittedOffset(subscription string, partition int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.offsets[offsetKey{subscription: subscription, partition: partition}]
}

// Close releases the underlying channel.
func (c *RabbitConsumer) Close() error {
	return c.ch.Close()
}
