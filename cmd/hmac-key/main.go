// Package main prints freshly generated HMAC secrets as env exports.
package main

import (
	"flag"
	"os"

	"github.com/eventpass/eventpass/internal/platform/config"
	"github.com/eventpass/eventpass/internal/tools/hmackey"
)

func main() {
	cfg, err := hmackey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := hmackey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("hmac-key: %v", err)
	}
}
