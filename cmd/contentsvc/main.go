// Command contentsvc is a thin example service on the substrate: it
// runs its own Outbox Dispatcher instance, an hourly outbox pruner with
// a 7-day cutoff, and a /health endpoint. It has no code path that
// inserts into `posts` or appends a `post.created` outbox event; it
// only dispatches rows already in the outbox. It carries no real HTTP API — spec §1 Non-goals exclude
// HTTP API shape — only the health/metrics surface spec §6.5 requires.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nimbusline/platform-core/common/mlog"
	"github.com/nimbusline/platform-core/internal/boundary"
	"github.com/nimbusline/platform-core/internal/dispatcher"
	"github.com/nimbusline/platform-core/internal/eventlog"
	"github.com/nimbusline/platform-core/internal/observability"
	"github.com/nimbusline/platform-core/internal/outbox"
	"github.com/nimbusline/platform-core/internal/registry"
	"github.com/nimbusline/platform-core/pkg/server"
	"github.com/nimbusline/platform-core/pkg/utils"
)

const serviceID = "content"

func main() {
	logger := mlog.NewLoggerFromContext(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	reg, err := loadRegistry(utils.EnvFallback(os.Getenv("CONTENTSVC_REGISTRY_FILE"), "configs/registry.yaml"))
	if err != nil {
		logger.Errorf("contentsvc: load registry: %v", err)
		os.Exit(1)
	}

	postCreated, ok := reg.TopicContractFor("post.created")
	if !ok {
		logger.Errorf("contentsvc: registry has no contract for topic post.created")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", os.Getenv("CONTENTSVC_DATABASE_DSN"))
	if err != nil {
		logger.Errorf("contentsvc: open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	store := outbox.New(db)

	amqpConn, err := dialAMQP()
	if err != nil {
		logger.Errorf("contentsvc: dial broker: %v", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	producer, err := eventlog.NewRabbitProducer(amqpConn, serviceID+"-1", map[string]int{
		postCreated.Topic: postCreated.Partitions,
	}, reg, boundary.PublishOrigin{Service: serviceID, IsDispatcher: true})
	if err != nil {
		logger.Errorf("contentsvc: build producer: %v", err)
		os.Exit(1)
	}
	defer producer.Close()

	meterProvider := sdkmetric.NewMeterProvider()
	defer meterProvider.Shutdown(ctx)

	hooks, err := observability.New(meterProvider.Meter(serviceID))
	if err != nil {
		logger.Errorf("contentsvc: build observability hooks: %v", err)
		os.Exit(1)
	}

	d := dispatcher.New(store, producer, postCreatedRouter, dispatcher.DefaultConfig(serviceID+"-1"), logger, hooks)
	go d.Run(ctx)

	go runPruner(ctx, store, logger)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		depth, err := store.UnpublishedDepth(c.Context())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
		}

		health := observability.Health{OutboxUnpublishedDepth: depth}

		return c.JSON(fiber.Map{"status": health.Status(60, true), "outbox_unpublished_depth": depth})
	})

	gracePeriod := 30 * time.Second
	mgr := server.NewServerManager(logger, nil, &gracePeriod).WithHTTPServer(app, utils.EnvFallback(os.Getenv("CONTENTSVC_HTTP_ADDR"), ":8080"))

	if err := mgr.Run(ctx); err != nil {
		logger.Errorf("contentsvc: server exited: %v", err)
		os.Exit(1)
	}
}

// postCreatedRouter sends every outbox row straight to the
// post.created topic, partitioned by aggregate id. contentsvc owns a
// single aggregate type today, so this skips the generic
// aggregate-type-to-topic mapping dispatcher.DefaultAggregateTypeRouter
// provides for services with more than one.
func postCreatedRouter(row outbox.Row) (topic, partitionKey string) {
	return "post.created", row.AggregateID
}

func loadRegistry(path string) (*registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return registry.Load(data)
}

func runPruner(ctx context.Context, store *outbox.Store, logger mlog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-7 * 24 * time.Hour)

			n, err := store.PruneBefore(ctx, cutoff)
			if err != nil {
				logger.Errorf("contentsvc: prune outbox: %v", err)
				continue
			}

			if n > 0 {
				logger.Infof("contentsvc: pruned %d published outbox rows older than %s", n, cutoff)
			}
		}
	}
}
