package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// BuildStore defines the driven port for canonical build persistence.
// All mutation goes through Upsert.
type BuildStore interface {
	// Upsert atomically inserts the build or, when (tool, external_id) already
	// exists, overwrites every field except logs, which is kept unless the
	// incoming build carries new logs. It returns the stored id and conclusion.
	Upsert(ctx context.Context, b model.Build) (model.UpsertResult, error)
	// GetByKey returns the stored build for (tool, externalID), or nil, nil.
	GetByKey(ctx context.Context, tool model.Tool, externalID string) (*model.Build, error)
	// ListRecent returns up to limit builds ordered by started_at descending,
	// builds without a start time last.
	ListRecent(ctx context.Context, limit int) ([]model.Build, error)
	// Summary returns aggregate counts for the metrics endpoint.
	Summary(ctx context.Context) (model.BuildSummary, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
