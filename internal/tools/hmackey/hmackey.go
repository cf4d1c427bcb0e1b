// Package hmackey generates secrets for receipt signing and bearer tokens.
package hmackey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Key targets.
const (
	TargetReceipt   = "receipt"
	TargetPrincipal = "principal"
)

// Config holds configuration for key generation.
type Config struct {
	Bytes  int
	KeyID  string
	Target string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32, KeyID: "v1", Target: TargetReceipt}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes")
	fs.StringVar(&cfg.KeyID, "key-id", cfg.KeyID, "receipt signing key id")
	fs.StringVar(&cfg.Target, "target", cfg.Target, "key target: receipt or principal")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the key and writes env assignments to out.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes <= 0 {
		return errors.New("bytes must be greater than zero")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	key := hex.EncodeToString(buf)

	switch strings.TrimSpace(cfg.Target) {
	case TargetReceipt:
		keyID := strings.TrimSpace(cfg.KeyID)
		if keyID == "" || strings.ContainsAny(keyID, "=,") {
			return fmt.Errorf("key id %q is invalid", cfg.KeyID)
		}
		_, err := fmt.Fprintf(out, "EVENTPASS_RECEIPT_HMAC_KEY_ID=%s\nEVENTPASS_RECEIPT_HMAC_KEY=%s\n", keyID, key)
		return err
	case TargetPrincipal:
		if cfg.Bytes < 32 {
			return errors.New("principal secrets need at least 32 bytes")
		}
		_, err := fmt.Fprintf(out, "EVENTPASS_PRINCIPAL_SECRET=%s\n", key)
		return err
	default:
		return fmt.Errorf("unknown target %q", cfg.Target)
	}
}
