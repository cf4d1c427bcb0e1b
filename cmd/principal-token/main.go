// Package main prints a development bearer token for the purchases API.
package main

import (
	"flag"
	"os"

	"github.com/eventpass/eventpass/internal/platform/config"
	"github.com/eventpass/eventpass/internal/tools/principal"
)

func main() {
	cfg, err := principal.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := principal.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("mint token: %v", err)
	}
}
