package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// AlertStore defines the driven port for alert dedup records.
type AlertStore interface {
	// Claim inserts the alert unless one already exists for its build, as a
	// single conditional write. It returns false when the build was already
	// claimed.
	Claim(ctx context.Context, alert model.Alert) (bool, error)
	// Release deletes the alert for buildID so a later observation may retry.
	Release(ctx context.Context, buildID int64) error
	// GetByBuild returns the alert for buildID, or nil, nil.
	GetByBuild(ctx context.Context, buildID int64) (*model.Alert, error)
}
