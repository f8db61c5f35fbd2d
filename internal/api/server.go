package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/patient-dashboard/internal/config"
)

// ServiceName is the gRPC health service name reported by the probe server.
const ServiceName = "patient-dashboard"

// Server wraps the dashboard HTTP listener and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
	listener   net.Listener
}

// NewServer constructs an HTTP server bound to the configured address.
func NewServer(cfg config.ServerConfig, handler http.Handler) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		listener: lis,
	}, nil
}

// Start serves HTTP requests until Shutdown is invoked.
func (s *Server) Start() error {
	if s.httpServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, closing connections once ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Address exposes the bound listener address (useful for tests).
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

// ProbeServer exposes grpc.health.v1.Health for orchestrator probes.
type ProbeServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// NewProbeServer constructs the probe server on cfg.ProbeAddress. It reports NOT_SERVING
// until SetServing(true).
func NewProbeServer(cfg config.ServerConfig, opts ...grpc.ServerOption) (*ProbeServer, error) {
	lis, err := net.Listen("tcp", cfg.ProbeAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.ProbeAddress, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpc_prometheus.Register(grpcServer)

	reflection.Register(grpcServer)

	return &ProbeServer{
		grpcServer: grpcServer,
		health:     healthSrv,
		listener:   lis,
	}, nil
}

// SetServing flips the reported health status.
func (p *ProbeServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus("", status)
	p.health.SetServingStatus(ServiceName, status)
}

// Start serves probe requests until Shutdown is invoked.
func (p *ProbeServer) Start() error {
	if p.grpcServer == nil || p.listener == nil {
		return fmt.Errorf("probe server not initialised")
	}
	return p.grpcServer.Serve(p.listener)
}

// Shutdown attempts a graceful shutdown, falling back to Stop after timeout.
func (p *ProbeServer) Shutdown(ctx context.Context) {
	if p.grpcServer == nil {
		return
	}
	p.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		p.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		p.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address (useful for tests).
func (p *ProbeServer) Address() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}
