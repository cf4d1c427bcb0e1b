package ident

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestEntityIDIsKSUID(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	gen := NewGenerator(WithClock(fixedClock(now)))
	value, err := gen.EntityID()
	if err != nil {
		t.Fatalf("entity id: %v", err)
	}
	parsed, err := ksuid.Parse(value)
	if err != nil {
		t.Fatalf("parse ksuid %q: %v", value, err)
	}
	if !parsed.Time().Equal(now) {
		t.Fatalf("ksuid time = %v, want %v", parsed.Time(), now)
	}
}

func TestAccessTokenShape(t *testing.T) {
	gen := NewGenerator(WithClock(fixedClock(time.UnixMilli(61))))
	value, err := gen.AccessToken()
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if !strings.HasPrefix(value, "eat_z") {
		t.Fatalf("access token = %q, want eat_ prefix with base62 timestamp", value)
	}
	suffix := strings.TrimPrefix(value, "eat_z")
	if len(suffix) != 32 || !onlyAlphabet(suffix, base62Alphabet) {
		t.Fatalf("random part = %q, want 32 base62 chars", suffix)
	}
}

func TestReceiptNumberShape(t *testing.T) {
	gen := NewGenerator(WithClock(fixedClock(time.UnixMilli(35))))
	value, err := gen.ReceiptNumber()
	if err != nil {
		t.Fatalf("receipt number: %v", err)
	}
	if !strings.HasPrefix(value, "RCP-Z-") {
		t.Fatalf("receipt number = %q, want RCP-Z- prefix", value)
	}
	if !IsReceiptNumber(value) {
		t.Fatalf("IsReceiptNumber(%q) = false", value)
	}
}

func TestIsReceiptNumberRejects(t *testing.T) {
	for _, value := range []string{"", "RCP-", "RCP-ABC", "RCP-ABC-short", "RCP-abc-0123456789", "XYZ-ABC-0123456789"} {
		if IsReceiptNumber(value) {
			t.Fatalf("IsReceiptNumber(%q) = true", value)
		}
	}
}

func TestIdentifiersAreDistinct(t *testing.T) {
	gen := NewGenerator()
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		value, err := gen.ReceiptNumber()
		if err != nil {
			t.Fatalf("receipt number: %v", err)
		}
		if _, ok := seen[value]; ok {
			t.Fatalf("duplicate receipt number %q", value)
		}
		seen[value] = struct{}{}
	}
}

func TestIdempotencyKeyIsUUID(t *testing.T) {
	gen := NewGenerator()
	a, err := gen.IdempotencyKey()
	if err != nil {
		t.Fatalf("idempotency key: %v", err)
	}
	b, _ := gen.IdempotencyKey()
	if len(a) != 36 || a == b {
		t.Fatalf("idempotency keys %q, %q", a, b)
	}
}

func TestRandomStringRejectsBiasedBytes(t *testing.T) {
	// 0xFF is above the rejection limit for base36 and must be skipped.
	source := bytes.NewReader(append(bytes.Repeat([]byte{0xFF}, 20), bytes.Repeat([]byte{1}, 20)...))
	gen := NewGenerator(WithRandom(source))
	value, err := gen.randomString(base36Alphabet, 10)
	if err != nil {
		t.Fatalf("random string: %v", err)
	}
	if value != "1111111111" {
		t.Fatalf("random string = %q", value)
	}
}

func TestGeneratorSurfacesEntropyErrors(t *testing.T) {
	gen := NewGenerator(WithRandom(failingReader{}))
	if _, err := gen.EntityID(); err == nil {
		t.Fatal("expected entity id error")
	}
	if _, err := gen.AccessToken(); err == nil {
		t.Fatal("expected access token error")
	}
	if _, err := gen.ReceiptNumber(); err == nil {
		t.Fatal("expected receipt number error")
	}
	if _, err := gen.IdempotencyKey(); err == nil {
		t.Fatal("expected idempotency key error")
	}
}

func TestEncodeBase62(t *testing.T) {
	tests := map[int64]string{0: "0", 61: "z", 62: "10", 3843: "zz"}
	for input, want := range tests {
		if got := encodeBase62(input); got != want {
			t.Fatalf("encodeBase62(%d) = %q, want %q", input, got, want)
		}
	}
}
