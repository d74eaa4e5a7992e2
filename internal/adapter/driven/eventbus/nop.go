package eventbus

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EventPublisher = NopPublisher{}

// NopPublisher discards every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishBuild(context.Context, model.Build, model.UpsertResult) error { return nil }

func (NopPublisher) Close() error { return nil }
