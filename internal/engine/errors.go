package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes cycle failures for logging, exit status, and alert
// wording. The scheduler retries nothing itself; a failed cycle is simply
// retried by the next scheduled invocation.
type ErrorCode string

const (
	// CodeTransientFetch covers clone/fetch/read failures against the
	// target repository, including timeouts.
	CodeTransientFetch ErrorCode = "TRANSIENT_FETCH"

	// CodeTransientPush covers restoration write failures, including the
	// optimistic-concurrency conflict when the branch head moved after the
	// snapshot was taken.
	CodeTransientPush ErrorCode = "TRANSIENT_PUSH"

	// CodeHistoryExhausted means no intact commit was found within the
	// configured scan depth. Restoration is never guessed; this escalates
	// to a human.
	CodeHistoryExhausted ErrorCode = "HISTORY_EXHAUSTED"

	// CodeTrackerUnavailable means the issue tracker could not be reached.
	// Never fatal to a cycle; surfaced through logs only.
	CodeTrackerUnavailable ErrorCode = "TRACKER_UNAVAILABLE"

	// CodeConfiguration means the protected-path or reference definitions
	// are missing or invalid. Fatal before any repository access.
	CodeConfiguration ErrorCode = "CONFIGURATION"
)

// CycleError is a categorized failure from one reconciliation cycle.
type CycleError struct {
	Code ErrorCode
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func cycleErr(code ErrorCode, err error) *CycleError {
	return &CycleError{Code: code, Err: err}
}

// CodeOf extracts the error code from err, or empty if err is not a
// CycleError.
func CodeOf(err error) ErrorCode {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
