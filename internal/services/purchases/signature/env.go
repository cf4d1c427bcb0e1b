package signature

import (
	"fmt"
	"os"
	"strings"
)

const (
	envHMACKeys  = "EVENTPASS_RECEIPT_HMAC_KEYS"
	envHMACKey   = "EVENTPASS_RECEIPT_HMAC_KEY"
	envHMACKeyID = "EVENTPASS_RECEIPT_HMAC_KEY_ID"
	defaultKeyID = "v1"
)

// KeyringFromEnv loads the receipt keyring from environment variables.
// EVENTPASS_RECEIPT_HMAC_KEYS ("id=key,...") takes precedence over the single
// EVENTPASS_RECEIPT_HMAC_KEY; EVENTPASS_RECEIPT_HMAC_KEY_ID selects the
// signing key and defaults to "v1".
func KeyringFromEnv() (*Keyring, error) {
	keyID := strings.TrimSpace(os.Getenv(envHMACKeyID))
	if keyID == "" {
		keyID = defaultKeyID
	}

	keySpec := strings.TrimSpace(os.Getenv(envHMACKeys))
	if keySpec == "" {
		raw := strings.TrimSpace(os.Getenv(envHMACKey))
		if raw == "" {
			return nil, fmt.Errorf("%s is required", envHMACKey)
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys, err := ParseKeySpec(keySpec)
	if err != nil {
		return nil, err
	}
	return NewKeyring(keys, keyID)
}

// ParseKeySpec parses "id=key,id2=key2" into a key map.
func ParseKeySpec(spec string) (map[string][]byte, error) {
	keys := make(map[string][]byte)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		value = strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("invalid %s entry", envHMACKeys)
		}
		keys[id] = []byte(value)
	}
	return keys, nil
}
