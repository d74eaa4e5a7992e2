package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// Notifier defines the driven port for outbound alert delivery.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) error
}
