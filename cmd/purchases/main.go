// Package main starts the purchases service.
package main

import (
	"flag"
	"log"
	"os"

	purchasescmd "github.com/eventpass/eventpass/internal/cmd/purchases"
	entrypoint "github.com/eventpass/eventpass/internal/platform/cmd"
)

func main() {
	cfg, err := purchasescmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServicePurchases))
	ctx, stop := entrypoint.SignalContext()
	defer stop()

	if err := purchasescmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
