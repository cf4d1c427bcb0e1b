// Package domain holds outbox event handlers run by the worker loop.
package domain

import (
	"errors"
	"fmt"
)

// ErrPermanent marks a delivery failure that retrying cannot fix, such as a
// malformed payload or a missing sender. The loop dead-letters the event on
// the first such failure.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err with ErrPermanent. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err carries ErrPermanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
