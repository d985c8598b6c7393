// Package queue implements a durable, priority-ordered queue of pending
// mutating operations, drained sequentially when connectivity returns.
package queue

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action is one buffered mutating operation. It is immutable after
// creation except for the Attempts counter.
type Action struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Data       json.RawMessage `json:"data"`
	Priority   int             `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempts   int             `json:"attempts"`
}

// newActionID builds an id that sorts by creation time, with a random
// suffix to break same-nanosecond ties.
func newActionID() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// math-free fallback: the timestamp alone still orders actions
		return fmt.Sprintf("%020d-00000000", time.Now().UnixNano())
	}
	return fmt.Sprintf("%020d-%s", time.Now().UnixNano(), hex.EncodeToString(suffix))
}

// permanentError marks a replay failure that no retry can fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue drops the action immediately instead of
// retrying it. Handlers return this for validation-style failures.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
