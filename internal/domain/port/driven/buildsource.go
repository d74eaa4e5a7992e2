package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// BuildSource defines the driven port for a polled CI provider.
type BuildSource interface {
	// Tool names the provider the source reads from.
	Tool() model.Tool
	// Enabled reports whether the source has the credentials it needs.
	// A disabled source's FetchBuilds is a no-op.
	Enabled() bool
	// FetchBuilds returns every build it could map. Failures for individual
	// units of work are returned joined as *model.ProviderError values
	// alongside the builds that did succeed.
	FetchBuilds(ctx context.Context) ([]model.Build, error)
}
