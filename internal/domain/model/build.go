// Package model defines the provider-agnostic domain types shared by every
// adapter and service.
package model

import (
	"math"
	"time"
)

// Build is the canonical record every provider adapter converges on.
// (Tool, ExternalID) is the dedup key.
type Build struct {
	ID              int64 // Surrogate key assigned by the store; zero before the first upsert.
	Tool            Tool
	ExternalID      string
	Repo            string
	Branch          string
	Status          BuildStatus
	Conclusion      Conclusion
	StartedAt       time.Time // Zero when the provider did not report a start time.
	CompletedAt     time.Time // Zero while the build is running.
	DurationSeconds int64
	URL             string
	Logs            string // Empty means "no new logs"; the store keeps the previous value.
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key returns the global dedup key "tool/external_id".
func (b Build) Key() string {
	return string(b.Tool) + "/" + b.ExternalID
}

// UpsertResult is returned by the store after an atomic insert-or-update.
// It is the only signal the alert path uses to decide whether to notify.
type UpsertResult struct {
	ID         int64
	Conclusion Conclusion
}

// IsFailure reports whether the stored build concluded with a failure.
func (r UpsertResult) IsFailure() bool {
	return r.Conclusion == ConclusionFailure
}

// DurationSeconds derives a build duration from its start and completion
// times. It returns 0 when either is unknown and never returns a negative value.
func DurationSeconds(started, completed time.Time) int64 {
	if started.IsZero() || completed.IsZero() {
		return 0
	}

	secs := math.Round(completed.Sub(started).Seconds())
	if secs < 0 {
		return 0
	}
	return int64(secs)
}
