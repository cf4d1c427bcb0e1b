// Package main loads demo users and events into the purchases database.
package main

import (
	"flag"
	"os"

	entrypoint "github.com/eventpass/eventpass/internal/platform/cmd"
	"github.com/eventpass/eventpass/internal/platform/config"
	"github.com/eventpass/eventpass/internal/tools/seed"
)

func main() {
	cfg, err := seed.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := entrypoint.SignalContext()
	defer stop()

	if err := seed.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("seed: %v", err)
	}
}
