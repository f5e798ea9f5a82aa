// Package server provides the graceful-shutdown and multi-protocol server
// lifecycle shared by every example service's cmd/ entrypoint (spec §5:
// "on signal, stop accepting new work, let in-flight handlers finish up to
// a grace deadline, flush offsets and outbox state, exit").
package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"google.golang.org/grpc"

	"github.com/nimbusline/platform-core/common/mlog"
)

// defaultGracePeriod bounds how long in-flight work is given to finish
// before shutdown forces termination.
const defaultGracePeriod = 30 * time.Second

// ShutdownHook runs during drain, after the HTTP/gRPC listeners have
// stopped accepting new work but before the process exits.
type ShutdownHook func(ctx context.Context) error

// GracefulShutdown coordinates draining an HTTP server, a gRPC server, and
// an arbitrary list of ShutdownHooks within a single grace deadline.
type GracefulShutdown struct {
	httpServer  *fiber.App
	grpcServer  *grpc.Server
	hooks       []ShutdownHook
	gracePeriod time.Duration
	logger      mlog.Logger
}

// NewGracefulShutdown builds a GracefulShutdown. Any of httpServer,
// grpcServer, hooks, gracePeriod, or logger may be nil/zero; a nil
// gracePeriod falls back to defaultGracePeriod and a nil logger to a
// no-op logger.
func NewGracefulShutdown(httpServer *fiber.App, grpcServer *grpc.Server, hooks []ShutdownHook, gracePeriod *time.Duration, logger mlog.Logger) *GracefulShutdown {
	gp := defaultGracePeriod
	if gracePeriod != nil {
		gp = *gracePeriod
	}

	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &GracefulShutdown{
		httpServer:  httpServer,
		grpcServer:  grpcServer,
		hooks:       hooks,
		gracePeriod: gp,
		logger:      logger,
	}
}

// Listen blocks until SIGINT or SIGTERM is received, then runs Shutdown.
func (g *GracefulShutdown) Listen(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	g.logger.Info("graceful shutdown: signal received, draining")

	return g.Shutdown(context.Background())
}

// Shutdown stops accepting new work on both servers, waits up to the
// grace period for in-flight work to finish, then runs every registered
// hook. Exceeding the grace deadline forces termination of the gRPC
// server; the HTTP server's own ShutdownWithContext enforces the same
// bound. Hook errors are collected and returned joined, never silently
// dropped, since a failed offset/outbox flush means redelivery on restart
// must be relied on instead.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, g.gracePeriod)
	defer cancel()

	var errs []error

	if g.httpServer != nil {
		if err := g.httpServer.ShutdownWithContext(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}

	if g.grpcServer != nil {
		done := make(chan struct{})

		go func() {
			g.grpcServer.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			g.logger.Warn("graceful shutdown: grace period exceeded, forcing gRPC stop")
			g.grpcServer.Stop()
		}
	}

	for _, hook := range g.hooks {
		if err := hook(shutdownCtx); err != nil {
			g.logger.Errorf("graceful shutdown: hook failed: %v", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
