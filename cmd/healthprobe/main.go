// Package main exits non-zero unless a service reports SERVING.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/eventpass/eventpass/internal/platform/config"
	"github.com/eventpass/eventpass/internal/tools/healthprobe"
)

func main() {
	cfg, err := healthprobe.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := healthprobe.Run(context.Background(), cfg, os.Stderr); err != nil {
		config.Exitf("healthprobe: %v", err)
	}
}
