// Package grpc serves the standard gRPC health protocol for the API process so
// orchestrators can probe it without HTTP.
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "contractdesk"

// Config holds the gRPC server configuration.
type Config struct {
	Port             int
	TLSCertFile      string
	TLSKeyFile       string
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// CheckInterval is how often dependencies are probed to refresh the status.
	CheckInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:             9090,
		KeepaliveTime:    30 * time.Second,
		KeepaliveTimeout: 10 * time.Second,
		CheckInterval:    10 * time.Second,
	}
}

// ServingChecker reports whether the service should accept traffic.
// *health.Checker from the api package implements it.
type ServingChecker interface {
	Serving(ctx context.Context) bool
}

// Server serves grpc.health.v1.Health backed by a ServingChecker.
type Server struct {
	config *Config
	checker ServingChecker
	logger *slog.Logger

	grpcServer *grpc.Server
	health     *health.Server

	serving  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer creates a new gRPC server instance.
func NewServer(cfg *Config, checker ServingChecker, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		checker: checker,
		logger: logger.With("component", "grpc"),
		health: health.NewServer(),
		stopCh: make(chan struct{}),
	}

	opts, err := s.buildServerOptions()
	if err != nil {
		return nil, err
	}
	s.grpcServer = grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

	return s, nil
}

// buildServerOptions constructs the gRPC server options.
func (s *Server) buildServerOptions() ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.config.KeepaliveTime,
			Timeout: s.config.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor()),
		grpc.ChainStreamInterceptor(s.streamLoggingInterceptor()),
	}

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS credentials: %w", err)
		}
		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	return opts, nil
}

// Start listens on the configured port and serves until Stop or GracefulStop.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis. The health status is refreshed every CheckInterval until
// the server stops.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.refresh(ctx)
	go s.watch(ctx)

	s.logger.Info("gRPC server starting", "address", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("serving gRPC: %w", err)
	}
	return nil
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh probes dependencies and publishes the result.
func (s *Server) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil && !s.checker.Serving(ctx) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if prev := s.serving.Load(); prev != (status == healthpb.HealthCheckResponse_SERVING) {
		s.logger.Info("health status changed", "status", status.String())
	}
	s.setStatus(status)
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.serving.Store(status == healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// GracefulStop marks the service NOT_SERVING and waits for in-flight RPCs.
func (s *Server) GracefulStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.health.Shutdown()
	s.serving.Store(false)
	s.logger.Info("gRPC server stopping")
	s.grpcServer.GracefulStop()
	s.logger.Info("gRPC server stopped")
}

// IsServing returns whether the server currently reports SERVING.
func (s *Server) IsServing() bool {
	return s.serving.Load()
}
