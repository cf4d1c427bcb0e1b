// Package ident generates the identifier flavors used by purchases: entity
// ids, access credentials, receipt numbers and payment idempotency keys.
package ident

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

const (
	// AccessTokenPrefix marks event access credentials.
	AccessTokenPrefix = "eat_"
	// ReceiptPrefix marks receipt numbers for humans scanning them.
	ReceiptPrefix = "RCP-"

	accessTokenRandomLen   = 32
	receiptNumberRandomLen = 10

	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Generator produces identifiers from a clock and a random source.
type Generator struct {
	clock  func() time.Time
	random io.Reader
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithRandom overrides the random source. Production code keeps crypto/rand.
func WithRandom(random io.Reader) Option {
	return func(g *Generator) {
		if random != nil {
			g.random = random
		}
	}
}

// NewGenerator returns a generator backed by crypto/rand and the wall clock.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{clock: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EntityID returns a KSUID: 32-bit timestamp plus 128 random bits, base62.
func (g *Generator) EntityID() (string, error) {
	payload := make([]byte, 16)
	if _, err := io.ReadFull(g.random, payload); err != nil {
		return "", fmt.Errorf("read entity id entropy: %w", err)
	}
	value, err := ksuid.FromParts(g.clock(), payload)
	if err != nil {
		return "", fmt.Errorf("build entity id: %w", err)
	}
	return value.String(), nil
}

// AccessToken returns "eat_" + base62 millisecond timestamp + 32 random
// base62 characters.
func (g *Generator) AccessToken() (string, error) {
	suffix, err := g.randomString(base62Alphabet, accessTokenRandomLen)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return AccessTokenPrefix + encodeBase62(g.clock().UnixMilli()) + suffix, nil
}

// ReceiptNumber returns "RCP-" + uppercase base36 millisecond timestamp +
// "-" + 10 uppercase base36 random characters.
func (g *Generator) ReceiptNumber() (string, error) {
	suffix, err := g.randomString(base36Alphabet, receiptNumberRandomLen)
	if err != nil {
		return "", fmt.Errorf("generate receipt number: %w", err)
	}
	stamp := strings.ToUpper(strconv.FormatInt(g.clock().UnixMilli(), 36))
	return ReceiptPrefix + stamp + "-" + suffix, nil
}

// IdempotencyKey returns a fresh UUIDv4 for one payment charge attempt.
func (g *Generator) IdempotencyKey() (string, error) {
	value, err := uuid.NewRandomFromReader(g.random)
	if err != nil {
		return "", fmt.Errorf("generate idempotency key: %w", err)
	}
	return value.String(), nil
}

// IsReceiptNumber reports whether value has the receipt number shape.
func IsReceiptNumber(value string) bool {
	rest, ok := strings.CutPrefix(value, ReceiptPrefix)
	if !ok {
		return false
	}
	stamp, suffix, ok := strings.Cut(rest, "-")
	if !ok || stamp == "" || len(suffix) != receiptNumberRandomLen {
		return false
	}
	return onlyAlphabet(stamp, base36Alphabet) && onlyAlphabet(suffix, base36Alphabet)
}

// randomString draws n characters uniformly from alphabet using rejection
// sampling so no character is favored.
func (g *Generator) randomString(alphabet string, n int) (string, error) {
	limit := 256 - (256 % len(alphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func encodeBase62(value int64) string {
	if value <= 0 {
		return "0"
	}
	var buf [11]byte
	i := len(buf)
	for value > 0 {
		i--
		buf[i] = base62Alphabet[value%62]
		value /= 62
	}
	return string(buf[i:])
}

func onlyAlphabet(value, alphabet string) bool {
	for _, r := range value {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
