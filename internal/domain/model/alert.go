package model

import "time"

// Alert records that a failure notification was sent for a build.
// BuildID is a lookup reference only; alerts never own builds.
type Alert struct {
	ID        int64
	BuildID   int64
	Recipient string
	Channel   AlertChannel
	CreatedAt time.Time
}

// AlertOutcome describes what the dispatcher did for one failing observation.
type AlertOutcome string

const (
	AlertSent      AlertOutcome = "sent"
	AlertDuplicate AlertOutcome = "duplicate" // An alert already exists for the build.
	AlertFailed    AlertOutcome = "failed"    // Delivery failed; the claim was released for a later retry.
	AlertSkipped   AlertOutcome = "skipped"   // Alerting is not configured.
)

// Notification is an outbound message handed to a Notifier.
// Body is markdown; transports that support HTML render it themselves.
type Notification struct {
	From    string
	To      []string
	Subject string
	Body    string
}
