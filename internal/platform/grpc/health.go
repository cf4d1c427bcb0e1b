package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/eventpass/eventpass/internal/platform/timeouts"
)

const (
	healthPollFloor = 200 * time.Millisecond
	healthPollCeil  = time.Second
)

// DialHealth opens a plaintext client connection suitable for health probes
// against a local service.
func DialHealth(addr string) (*gogrpc.ClientConn, error) {
	if addr == "" {
		return nil, fmt.Errorf("health address is required")
	}
	conn, err := gogrpc.NewClient(
		addr,
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial health %s: %w", addr, err)
	}
	return conn, nil
}

// WaitForHealth polls grpc.health.v1 until service reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	wait := healthPollFloor
	for {
		status, err := checkOnce(ctx, client, service)
		switch {
		case err != nil:
			logf("health %q: %v", service, err)
		case status == grpc_health_v1.HealthCheckResponse_SERVING:
			logf("health %q: SERVING", service)
			return nil
		default:
			logf("health %q: %s", service, status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for health %q: %w", service, ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, healthPollCeil)
	}
}

func checkOnce(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.HealthCheck)
	defer cancel()
	resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
