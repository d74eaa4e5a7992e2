// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// DefaultPublishTimeout bounds a single build event publish.
const DefaultPublishTimeout = 5 * time.Second

// IngestService is the single entry point through which every build
// observation, polled or pushed, reaches the store.
type IngestService struct {
	builds     driven.BuildStore
	events     driven.EventPublisher
	dispatcher *AlertDispatcher

	publishTimeout time.Duration
}

// NewIngestService creates a new IngestService. events may be nil, in which
// case no build events are published.
func NewIngestService(builds driven.BuildStore, events driven.EventPublisher, dispatcher *AlertDispatcher) *IngestService {
	return &IngestService{
		builds:     builds,
		events:     events,
		dispatcher: dispatcher,

		publishTimeout: DefaultPublishTimeout,
	}
}

// WithPublishTimeout overrides DefaultPublishTimeout. A non-positive d is
// ignored.
func (s *IngestService) WithPublishTimeout(d time.Duration) *IngestService {
	if d > 0 {
		s.publishTimeout = d
	}
	return s
}

// Ingest upserts one observation and alerts when the stored conclusion is a
// failure. Only a store failure is returned as an error; publish and
// notification failures are logged.
func (s *IngestService) Ingest(ctx context.Context, b model.Build) (model.UpsertResult, error) {
	if err := validate(b); err != nil {
		return model.UpsertResult{}, err
	}

	result, err := s.builds.Upsert(ctx, b)
	if err != nil {
		return model.UpsertResult{}, &model.PersistenceError{Op: "upsert build " + b.Key(), Err: err}
	}

	slog.Debug("build ingested",
		"key", b.Key(),
		"id", result.ID,
		"status", b.Status,
		"conclusion", result.Conclusion,
	)

	if result.IsFailure() && s.dispatcher != nil {
		s.dispatcher.MaybeAlert(ctx, result.ID, b)
	}

	s.publish(ctx, b, result)

	return result, nil
}

// publish emits the build event under its own deadline.
func (s *IngestService) publish(ctx context.Context, b model.Build, result model.UpsertResult) {
	if s.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := s.events.PublishBuild(ctx, b, result); err != nil {
		slog.Warn("build event publish failed", "key", b.Key(), "error", err)
	}
}

func validate(b model.Build) error {
	if !b.Tool.Valid() {
		return fmt.Errorf("%w: unknown tool %q", model.ErrMalformedPayload, b.Tool)
	}
	if b.ExternalID == "" {
		return fmt.Errorf("%w: missing external id", model.ErrMalformedPayload)
	}
	return nil
}
