package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"google.golang.org/grpc"

	"github.com/nimbusline/platform-core/common/mlog"
)

// ServerManager is a chainable builder over GracefulShutdown: it owns the
// optional HTTP (health/metrics, spec §6.5) and gRPC (cross-service RPC,
// spec §4.7) listeners for one service instance and starts/stops them
// together.
type ServerManager struct {
	logger      mlog.Logger
	hooks       []ShutdownHook
	gracePeriod *time.Duration

	httpServer *fiber.App
	httpAddr   string

	grpcServer *grpc.Server
	grpcAddr   string
}

// NewServerManager creates a ServerManager with no listeners attached yet;
// chain WithHTTPServer / WithGRPCServer to add them.
func NewServerManager(logger mlog.Logger, hooks []ShutdownHook, gracePeriod *time.Duration) *ServerManager {
	return &ServerManager{
		logger:      logger,
		hooks:       hooks,
		gracePeriod: gracePeriod,
	}
}

// WithHTTPServer attaches app to listen on addr and returns the same
// ServerManager for chaining.
func (s *ServerManager) WithHTTPServer(app *fiber.App, addr string) *ServerManager {
	s.httpServer = app
	s.httpAddr = addr

	return s
}

// WithGRPCServer attaches srv to listen on addr and returns the same
// ServerManager for chaining.
func (s *ServerManager) WithGRPCServer(srv *grpc.Server, addr string) *ServerManager {
	s.grpcServer = srv
	s.grpcAddr = addr

	return s
}

// Run starts every attached listener in its own goroutine, then blocks on
// GracefulShutdown.Listen until a shutdown signal is handled. The first
// listener start error is returned immediately without waiting for a
// signal.
func (s *ServerManager) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if s.httpServer != nil {
		go func() {
			if err := s.httpServer.Listen(s.httpAddr); err != nil {
				errCh <- fmt.Errorf("http server on %s: %w", s.httpAddr, err)
			}
		}()
	}

	if s.grpcServer != nil {
		go func() {
			lis, err := net.Listen("tcp", s.grpcAddr)
			if err != nil {
				errCh <- fmt.Errorf("grpc server on %s: %w", s.grpcAddr, err)
				return
			}

			if err := s.grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server on %s: %w", s.grpcAddr, err)
			}
		}()
	}

	gs := NewGracefulShutdown(s.httpServer, s.grpcServer, s.hooks, s.gracePeriod, s.logger)

	listenErr := make(chan error, 1)

	go func() { listenErr <- gs.Listen(ctx) }()

	select {
	case err := <-errCh:
		return err
	case err := <-listenErr:
		return err
	}
}
