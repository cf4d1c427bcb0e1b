package signature

import (
	"crypto/hkdf"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Keyring stores root HMAC keys and the active key id.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for receipt signing and verification.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active hmac key id is required")
	}
	cloned := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if strings.Contains(id, ":") {
			return nil, fmt.Errorf("hmac key id %q must not contain ':'", id)
		}
		if len(key) == 0 {
			return nil, fmt.Errorf("hmac key %q is empty", id)
		}
		cloned[id] = append([]byte(nil), key...)
	}
	if _, ok := cloned[activeKeyID]; !ok {
		return nil, fmt.Errorf("active hmac key id is not configured")
	}
	return &Keyring{keys: cloned, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the configured signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// KeyIDs returns the configured key ids in sorted order.
func (k *Keyring) KeyIDs() []string {
	if k == nil {
		return nil
	}
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (k *Keyring) deriveKey(keyID, kind string) ([]byte, error) {
	rootKey, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("hmac key id is unknown")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, fmt.Errorf("receipt kind is required")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, "receipt:"+kind, 32)
	if err != nil {
		return nil, fmt.Errorf("derive receipt key: %w", err)
	}
	return key, nil
}
