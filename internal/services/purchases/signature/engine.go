package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Engine signs and verifies facts with a keyring. It holds no other state.
type Engine struct {
	keyring *Keyring
}

// NewEngine returns an engine bound to keyring.
func NewEngine(keyring *Keyring) (*Engine, error) {
	if keyring == nil {
		return nil, fmt.Errorf("hmac keyring is required")
	}
	return &Engine{keyring: keyring}, nil
}

// Sign returns "<keyID>:<hex hmac-sha256>" over the canonical fact using the
// active key derived for kind.
func (e *Engine) Sign(kind string, fact *Fact) (string, error) {
	if e == nil || e.keyring == nil {
		return "", fmt.Errorf("hmac keyring is not configured")
	}
	canonical, err := fact.Canonical()
	if err != nil {
		return "", fmt.Errorf("canonicalize fact: %w", err)
	}
	keyID := e.keyring.ActiveKeyID()
	key, err := e.keyring.deriveKey(keyID, kind)
	if err != nil {
		return "", err
	}
	return keyID + ":" + macHex(key, canonical), nil
}

// Verify reports whether signature matches the fact. It never panics and
// returns false for malformed input, unknown key ids or any mismatch.
func (e *Engine) Verify(kind string, fact *Fact, signature string) bool {
	if e == nil || e.keyring == nil {
		return false
	}
	keyID, provided, ok := strings.Cut(signature, ":")
	if !ok || keyID == "" || provided == "" {
		return false
	}
	key, err := e.keyring.deriveKey(keyID, kind)
	if err != nil {
		return false
	}
	canonical, err := fact.Canonical()
	if err != nil {
		return false
	}
	return constantTimeEqual(macHex(key, canonical), provided)
}

func macHex(key, message []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEqual hashes both sides to a fixed width first so the
// comparison time does not depend on the length of the provided value.
func constantTimeEqual(expected, provided string) bool {
	a := sha256.Sum256([]byte(expected))
	b := sha256.Sum256([]byte(provided))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
