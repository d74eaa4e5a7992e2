package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// EventPublisher defines the driven port for the build event stream.
// Publishing is best-effort and never affects ingestion.
type EventPublisher interface {
	PublishBuild(ctx context.Context, b model.Build, result model.UpsertResult) error
	Close() error
}
