package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedPayload is returned when an ingestion payload lacks the
// provider identifier. Nothing is persisted for such payloads.
var ErrMalformedPayload = errors.New("malformed ingestion payload")

// ProviderError reports a failed call to a CI provider for one unit of work
// (a repository, or the whole job list). The unit is skipped for the cycle.
type ProviderError struct {
	Provider   Tool
	Unit       string
	StatusCode int // HTTP status when the provider answered; zero on network errors.
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider: %s: status %d: %v", e.Provider, e.Unit, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Unit, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether retrying the call could succeed: network
// failures, rate limiting and server errors.
func (e *ProviderError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// PersistenceError wraps a store failure. It is the only error class that
// fails an ingestion.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError wraps a failed alert delivery. It is logged and never
// propagated to the ingestion that triggered it.
type NotificationError struct {
	BuildID int64
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify build %d: %v", e.BuildID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
