package signature

import (
	"reflect"
	"testing"
)

func TestNewKeyringValidation(t *testing.T) {
	if _, err := NewKeyring(nil, "v1"); err == nil {
		t.Fatal("expected error for missing keys")
	}
	if _, err := NewKeyring(map[string][]byte{"v1": []byte("secret")}, ""); err == nil {
		t.Fatal("expected error for missing active key id")
	}
	if _, err := NewKeyring(map[string][]byte{"v1": []byte("secret")}, "v2"); err == nil {
		t.Fatal("expected error for unknown active key id")
	}
	if _, err := NewKeyring(map[string][]byte{"v:1": []byte("secret")}, "v:1"); err == nil {
		t.Fatal("expected error for key id containing separator")
	}
	if _, err := NewKeyring(map[string][]byte{"v1": nil}, "v1"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestKeyringActiveKeyID(t *testing.T) {
	var ring *Keyring
	if ring.ActiveKeyID() != "" {
		t.Fatal("expected empty active key id for nil keyring")
	}

	ring, err := NewKeyring(map[string][]byte{"v2": []byte("b"), "v1": []byte("a")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	if ring.ActiveKeyID() != "v1" {
		t.Fatalf("expected active key id v1, got %s", ring.ActiveKeyID())
	}
	if got := ring.KeyIDs(); !reflect.DeepEqual(got, []string{"v1", "v2"}) {
		t.Fatalf("KeyIDs = %v", got)
	}
}

func TestKeyringFromEnvSingleKey(t *testing.T) {
	t.Setenv(envHMACKeys, "")
	t.Setenv(envHMACKey, "secret")
	t.Setenv(envHMACKeyID, "")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != defaultKeyID {
		t.Fatalf("active key id = %q, want %q", ring.ActiveKeyID(), defaultKeyID)
	}
}

func TestKeyringFromEnvKeySpec(t *testing.T) {
	t.Setenv(envHMACKeys, "v1=old, v2=new")
	t.Setenv(envHMACKey, "")
	t.Setenv(envHMACKeyID, "v2")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != "v2" {
		t.Fatalf("active key id = %q, want v2", ring.ActiveKeyID())
	}
}

func TestKeyringFromEnvErrors(t *testing.T) {
	t.Setenv(envHMACKeys, "")
	t.Setenv(envHMACKey, "")
	t.Setenv(envHMACKeyID, "")
	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected error when no key is configured")
	}

	t.Setenv(envHMACKeys, "v1")
	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected error for malformed key spec")
	}

	t.Setenv(envHMACKeys, "v2=x")
	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected error when default key id is missing from spec")
	}
}
