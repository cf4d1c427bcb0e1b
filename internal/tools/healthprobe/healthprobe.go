// Package healthprobe checks that an eventpass service reports SERVING on its
// gRPC health endpoint. Container health checks run it.
package healthprobe

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	platformgrpc "github.com/eventpass/eventpass/internal/platform/grpc"
)

// Config selects the probe target.
type Config struct {
	Addr    string
	Service string
	Timeout time.Duration
	Verbose bool
}

// ParseConfig parses probe flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{}
	fs.StringVar(&cfg.Addr, "addr", "localhost:8096", "gRPC health address")
	fs.StringVar(&cfg.Service, "service", "", "health service name; empty checks overall status")
	fs.DurationVar(&cfg.Timeout, "timeout", 5*time.Second, "how long to wait for SERVING")
	fs.BoolVar(&cfg.Verbose, "v", false, "log each poll")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run blocks until the target is SERVING or cfg.Timeout elapses.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be greater than zero")
	}
	conn, err := platformgrpc.DialHealth(cfg.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	var logf func(string, ...any)
	if cfg.Verbose && out != nil {
		logf = func(format string, args ...any) {
			fmt.Fprintf(out, format+"\n", args...)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return platformgrpc.WaitForHealth(ctx, conn, cfg.Service, logf)
}
