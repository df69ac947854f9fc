package countdown

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable wraps any failure to reach the timer store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMalformedRecord is returned by stores when the persisted record cannot be decoded.
	ErrMalformedRecord = errors.New("malformed timer record")

	// ErrCancelled is delivered on StartResult.Done when a reset cancels the pre-countdown.
	ErrCancelled = errors.New("pre-countdown cancelled")
)

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
