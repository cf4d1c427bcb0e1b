package signature

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ring, err := NewKeyring(map[string][]byte{"v1": []byte("secret")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	engine, err := NewEngine(ring)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func eventFact(tokens int64) *Fact {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewFact().
		String("receipt_number", "RCP-ABC-0123456789").
		String("purchase_id", "p1").
		String("user_id", "u1").
		String("event_id", "e1").
		String("access_token", "eat_x").
		Int("tokens_spent", tokens).
		Time("expires_at", issued.Add(30*24*time.Hour)).
		Time("timestamp", issued)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	engine := newTestEngine(t)
	sig, err := engine.Sign("event_access", eventFact(50))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(sig, "v1:") {
		t.Fatalf("signature = %q, want v1 prefix", sig)
	}
	if !engine.Verify("event_access", eventFact(50), sig) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsSingleFieldMutation(t *testing.T) {
	engine := newTestEngine(t)
	sig, err := engine.Sign("event_access", eventFact(50))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if engine.Verify("event_access", eventFact(49), sig) {
		t.Fatal("expected mutated fact to fail verification")
	}
	if engine.Verify("token_package", eventFact(50), sig) {
		t.Fatal("expected signature to be bound to receipt kind")
	}
}

func TestVerifyRejectsReorderedFields(t *testing.T) {
	engine := newTestEngine(t)
	a := NewFact().String("a", "1").String("b", "2")
	b := NewFact().String("b", "2").String("a", "1")
	sig, err := engine.Sign("event_access", a)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if engine.Verify("event_access", b, sig) {
		t.Fatal("expected field order to matter")
	}
}

func TestVerifyMalformedSignatures(t *testing.T) {
	engine := newTestEngine(t)
	sig, err := engine.Sign("event_access", eventFact(50))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	cases := []string{
		"",
		"v1",
		"v1:",
		":" + strings.TrimPrefix(sig, "v1:"),
		"v2:" + strings.TrimPrefix(sig, "v1:"),
		sig[:len(sig)-2],
		sig + "00",
		"v1:zz",
	}
	for _, candidate := range cases {
		if engine.Verify("event_access", eventFact(50), candidate) {
			t.Fatalf("expected %q to fail verification", candidate)
		}
	}
	if engine.Verify("event_access", NewFact(), sig) {
		t.Fatal("expected empty fact to fail verification")
	}
	var nilEngine *Engine
	if nilEngine.Verify("event_access", eventFact(50), sig) {
		t.Fatal("expected nil engine to fail verification")
	}
}

func TestRotatedKeysStillVerify(t *testing.T) {
	oldRing, err := NewKeyring(map[string][]byte{"v1": []byte("old")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	oldEngine, _ := NewEngine(oldRing)
	sig, err := oldEngine.Sign("token_package", eventFact(1))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rotated, err := NewKeyring(map[string][]byte{"v1": []byte("old"), "v2": []byte("new")}, "v2")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	engine, _ := NewEngine(rotated)
	if !engine.Verify("token_package", eventFact(1), sig) {
		t.Fatal("expected v1 signature to verify after rotation")
	}
	next, err := engine.Sign("token_package", eventFact(1))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(next, "v2:") {
		t.Fatalf("signature = %q, want v2 prefix", next)
	}
}

func TestCanonicalEncoding(t *testing.T) {
	fact := NewFact().
		String("name", `a"b`).
		Int("n", -3).
		Decimal("amount", decimal.RequireFromString("9.9")).
		Time("at", time.Date(2026, 1, 2, 3, 4, 5, 6_789_000, time.FixedZone("x", 3600)))
	got, err := fact.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	want := `{"name":"a\"b","n":-3,"amount":"9.90","at":"2026-01-02T02:04:05.006Z"}`
	if string(got) != want {
		t.Fatalf("canonical = %s, want %s", got, want)
	}
}

func TestCanonicalRejectsDuplicateAndEmpty(t *testing.T) {
	if _, err := NewFact().Canonical(); err == nil {
		t.Fatal("expected error for empty fact")
	}
	if _, err := NewFact().String("a", "1").Int("a", 2).Canonical(); err == nil {
		t.Fatal("expected error for duplicate field")
	}
	if _, err := NewFact().String("", "1").Canonical(); err == nil {
		t.Fatal("expected error for unnamed field")
	}
}

func TestVerifyRejectsSubCentAmountChange(t *testing.T) {
	engine := newTestEngine(t)
	fact := func(amount string) *Fact {
		return NewFact().String("receipt_number", "RCP-1").Decimal("amount", decimal.RequireFromString(amount))
	}
	sig, err := engine.Sign("token_package", fact("9.99"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !engine.Verify("token_package", fact("9.990"), sig) {
		t.Fatal("expected trailing zeros to verify")
	}
	for _, tampered := range []string{"9.994", "9.9901", "9.985"} {
		if engine.Verify("token_package", fact(tampered), sig) {
			t.Fatalf("expected amount %s to fail verification", tampered)
		}
	}
}

func TestInvalidUTF8NeverVerifies(t *testing.T) {
	engine := newTestEngine(t)
	valid := NewFact().String("access_token", "eat_\uFFFD")
	sig, err := engine.Sign("event_access", valid)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for _, raw := range []string{"eat_\xff", "eat_\xfe"} {
		fact := NewFact().String("access_token", raw)
		if _, err := fact.Canonical(); err == nil {
			t.Fatalf("expected canonical error for %q", raw)
		}
		if engine.Verify("event_access", fact, sig) {
			t.Fatalf("expected %q not to verify", raw)
		}
		if _, err := engine.Sign("event_access", fact); err == nil {
			t.Fatalf("expected sign error for %q", raw)
		}
	}
}

func TestSignRequiresKind(t *testing.T) {
	engine := newTestEngine(t)
	if _, err := engine.Sign(" ", eventFact(1)); err == nil {
		t.Fatal("expected error for empty kind")
	}
}
