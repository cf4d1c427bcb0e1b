// Package main starts the receipt notification worker.
package main

import (
	"flag"
	"log"
	"os"

	workercmd "github.com/eventpass/eventpass/internal/cmd/worker"
	entrypoint "github.com/eventpass/eventpass/internal/platform/cmd"
)

func main() {
	cfg, err := workercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceWorker))
	ctx, stop := entrypoint.SignalContext()
	defer stop()

	if err := workercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
