package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer bundles a gRPC server exposing only grpc.health.v1 with the
// status handle used to flip serving state.
type HealthServer struct {
	Server *gogrpc.Server
	Health *health.Server
}

// NewHealthServer builds a gRPC server with OTel stats handling and the
// standard health service registered. Every service starts NOT_SERVING.
func NewHealthServer(services ...string) *HealthServer {
	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	for _, service := range services {
		healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return &HealthServer{Server: server, Health: healthServer}
}

// SetServing marks the overall status and each named service as serving.
func (s *HealthServer) SetServing(services ...string) {
	s.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		s.Health.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
}

// Serve blocks serving on listener until ctx is canceled, then shuts down
// health reporting and stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return fmt.Errorf("listener is required")
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.Health.Shutdown()
		s.Server.GracefulStop()
		<-serveErr
		return nil
	case err := <-serveErr:
		if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve grpc: %w", err)
	}
}
