package healthprobe

import (
	"bytes"
	"context"
	"flag"
	"net"
	"strings"
	"testing"
	"time"

	platformgrpc "github.com/eventpass/eventpass/internal/platform/grpc"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(flag.NewFlagSet("probe", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "localhost:8096" || cfg.Timeout != 5*time.Second || cfg.Service != "" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestRunServing(t *testing.T) {
	addr := startHealth(t, "purchases.v1", true)
	out := &bytes.Buffer{}
	cfg := Config{Addr: addr, Service: "purchases.v1", Timeout: 2 * time.Second, Verbose: true}
	if err := Run(context.Background(), cfg, out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "SERVING") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunTimesOutWhenNotServing(t *testing.T) {
	addr := startHealth(t, "purchases.v1", false)
	cfg := Config{Addr: addr, Service: "purchases.v1", Timeout: 300 * time.Millisecond}
	if err := Run(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	if err := Run(context.Background(), Config{Addr: "localhost:1"}, nil); err == nil {
		t.Fatal("expected error for zero timeout")
	}
	if err := Run(context.Background(), Config{Timeout: time.Second}, nil); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func startHealth(t *testing.T, service string, serving bool) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := platformgrpc.NewHealthServer(service)
	if serving {
		server.SetServing(service)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return listener.Addr().String()
}
