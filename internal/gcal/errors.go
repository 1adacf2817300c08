package gcal

import (
	"errors"
	"fmt"
)

// ErrAuthorizationRequired means no usable OAuth token exists. Nothing else
// can succeed until the operator re-runs the authorization flow, so callers
// treat this as session-fatal rather than per-request.
var ErrAuthorizationRequired = errors.New("calendar authorization required (run with -authorize)")

// RemoteAPIError wraps any transport or API-level failure from the calendar
// provider. No retry is performed here; transient failures surface
// immediately to the caller.
type RemoteAPIError struct {
	Op  string // e.g. "events.insert"
	Err error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("calendar %s: %v", e.Op, e.Err)
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }
