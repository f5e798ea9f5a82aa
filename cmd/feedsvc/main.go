// Command feedsvc is the consuming half of spec §8 Scenario A: it
// subscribes to content-service's `post.created` topic and maintains a
// locally-owned `feed_entries` projection, replacing what would
// otherwise be a cross-service join or RPC fan-out on every feed read.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	amqp "github.com/rabbitmq/amqp091-go"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nimbusline/platform-core/common/mlog"
	"github.com/nimbusline/platform-core/internal/boundary"
	"github.com/nimbusline/platform-core/internal/consumer"
	"github.com/nimbusline/platform-core/internal/eventlog"
	"github.com/nimbusline/platform-core/internal/observability"
	"github.com/nimbusline/platform-core/internal/projection"
	"github.com/nimbusline/platform-core/internal/registry"
	"github.com/nimbusline/platform-core/pkg/dbtx"
	"github.com/nimbusline/platform-core/pkg/utils"
)

const (
	serviceID    = "feed"
	subscription = "feed-projector"
)

func main() {
	logger := mlog.NewLoggerFromContext(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reg, err := loadRegistry(utils.EnvFallback(os.Getenv("FEEDSVC_REGISTRY_FILE"), "configs/registry.yaml"))
	if err != nil {
		logger.Errorf("feedsvc: load registry: %v", err)
		os.Exit(1)
	}

	postCreated, ok := reg.TopicContractFor("post.created")
	if !ok {
		logger.Errorf("feedsvc: registry has no contract for topic post.created")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", os.Getenv("FEEDSVC_DATABASE_DSN"))
	if err != nil {
		logger.Errorf("feedsvc: open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	amqpConn, err := amqp.Dial(utils.EnvFallback(os.Getenv("FEEDSVC_AMQP_URL"), os.Getenv("AMQP_URL")))
	if err != nil {
		logger.Errorf("feedsvc: dial broker: %v", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	rabbitConsumer, err := eventlog.NewRabbitConsumer(amqpConn)
	if err != nil {
		logger.Errorf("feedsvc: build consumer: %v", err)
		os.Exit(1)
	}
	defer rabbitConsumer.Close()

	producer, err := eventlog.NewRabbitProducer(amqpConn, serviceID+"-1", map[string]int{
		"post.created.dlq": 1,
	}, reg, boundary.PublishOrigin{Service: serviceID, IsDispatcher: true})
	if err != nil {
		logger.Errorf("feedsvc: build dlq producer: %v", err)
		os.Exit(1)
	}
	defer producer.Close()

	def := projection.Definition{
		Name:    "feed-entries",
		Service: serviceID,
		Topics:  []string{"post.created"},
		Apply:   applyPostCreated,
	}

	meterProvider := sdkmetric.NewMeterProvider()
	defer meterProvider.Shutdown(ctx)

	hooks, err := observability.New(meterProvider.Meter(serviceID))
	if err != nil {
		logger.Errorf("feedsvc: build observability hooks: %v", err)
		os.Exit(1)
	}

	cfg := consumer.DefaultConfig(subscription, "feed")
	runtime := consumer.New(db, rabbitConsumer, producer, def.Handler(db), cfg, logger, hooks)

	go func() {
		if err := runtime.Subscribe(ctx, "post.created", postCreated.Partitions, eventlog.StartEarliest); err != nil {
			logger.Errorf("feedsvc: subscribe post.created: %v", err)
		}
	}()

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		lag := consumer.Lag(rabbitConsumer.CommittedOffset(subscription, 0), rabbitConsumer.CommittedOffset(subscription, 0))
		health := observability.Health{MaxConsumerLag: lag}

		return c.JSON(fiber.Map{"status": health.Status(60, true), "max_consumer_lag": lag})
	})

	if err := app.Listen(utils.EnvFallback(os.Getenv("FEEDSVC_HTTP_ADDR"), ":8081")); err != nil {
		logger.Errorf("feedsvc: http server exited: %v", err)
		os.Exit(1)
	}
}

func loadRegistry(path string) (*registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return registry.Load(data)
}

// applyPostCreated upserts a feed_entries row for a newly created post,
// keyed by the event's aggregate id as post_id. It stores the raw event
// payload, the applying event_id and the update time; it writes no
// author_id or score column, and replaying the same event rewrites the
// same row.
func applyPostCreated(ctx context.Context, exec dbtx.Executor, rec eventlog.Record) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO feed_entries (post_id, payload, last_applied_event_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			last_applied_event_id = EXCLUDED.last_applied_event_id,
			updated_at = EXCLUDED.updated_at
	`, rec.AggregateID, rec.Payload, rec.EventID, time.Now().UTC())

	return err
}
