package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStrategy is returned by a resolution attempt naming a
	// strategy that is not registered.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")

	// ErrResolutionExhausted marks a conflict that could not be resolved
	// within the retry budget. Returned wrapped in a ResolutionError.
	ErrResolutionExhausted = errors.New("conflict resolution exhausted retries")
)

// ResolutionError reports a conflict whose resolution failed on every
// attempt. It matches ErrResolutionExhausted under errors.Is and unwraps to
// the error of the last attempt.
type ResolutionError struct {
	Key      string
	Strategy string
	Attempts int
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving conflict on %q with strategy %q failed after %d attempts: %v",
		e.Key, e.Strategy, e.Attempts, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolutionExhausted }
