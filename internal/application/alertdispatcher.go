package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// DefaultSendTimeout bounds a single notification delivery.
const DefaultSendTimeout = 10 * time.Second

// AlertDispatcher sends at most one recorded failure alert per build.
type AlertDispatcher struct {
	alerts      driven.AlertStore
	notifier    driven.Notifier
	from        string
	recipients  []string
	sendTimeout time.Duration
}

// NewAlertDispatcher creates a dispatcher. With no recipients it is disabled
// and every call returns model.AlertSkipped.
func NewAlertDispatcher(alerts driven.AlertStore, notifier driven.Notifier, from string, recipients []string, sendTimeout time.Duration) *AlertDispatcher {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &AlertDispatcher{
		alerts:      alerts,
		notifier:    notifier,
		from:        from,
		recipients:  recipients,
		sendTimeout: sendTimeout,
	}
}

// Enabled reports whether any recipient is configured.
func (d *AlertDispatcher) Enabled() bool {
	return len(d.recipients) > 0 && d.notifier != nil
}

// MaybeAlert claims the alert slot for buildID, then sends the notification.
// If delivery fails the claim is released so a later failing observation of
// the same build can try again.
func (d *AlertDispatcher) MaybeAlert(ctx context.Context, buildID int64, b model.Build) model.AlertOutcome {
	if !d.Enabled() {
		return model.AlertSkipped
	}

	claimed, err := d.alerts.Claim(ctx, model.Alert{
		BuildID:   buildID,
		Recipient: strings.Join(d.recipients, ","),
		Channel:   model.AlertChannelEmail,
	})
	if err != nil {
		slog.Error("alert claim failed", "build_id", buildID, "error", err)
		return model.AlertFailed
	}
	if !claimed {
		slog.Debug("alert already sent", "build_id", buildID, "key", b.Key())
		return model.AlertDuplicate
	}

	subject, body := ComposeAlert(b)
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	err = d.notifier.Send(sendCtx, model.Notification{
		From:    d.from,
		To:      d.recipients,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		nerr := &model.NotificationError{BuildID: buildID, Err: err}
		slog.Error("alert delivery failed", "key", b.Key(), "error", nerr)

		// The caller's context may already be done; the release must still land.
		if rerr := d.alerts.Release(context.WithoutCancel(ctx), buildID); rerr != nil {
			slog.Error("alert release failed", "build_id", buildID, "error", errors.Join(nerr, rerr))
		}
		return model.AlertFailed
	}

	slog.Info("alert sent", "key", b.Key(), "build_id", buildID, "recipients", len(d.recipients))
	return model.AlertSent
}

// ComposeAlert renders the subject and markdown body of a failure alert.
func ComposeAlert(b model.Build) (subject, body string) {
	subject = fmt.Sprintf("[CI] Build failed: %s", b.Repo)
	if b.Branch != "" {
		subject += " (" + b.Branch + ")"
	}

	var sb strings.Builder
	sb.WriteString("**Build failed**\n\n")
	fmt.Fprintf(&sb, "- **Tool:** %s\n", b.Tool)
	fmt.Fprintf(&sb, "- **Repo:** %s\n", valueOr(b.Repo, "unknown"))
	fmt.Fprintf(&sb, "- **Branch:** %s\n", valueOr(b.Branch, "unknown"))
	fmt.Fprintf(&sb, "- **Build:** %s\n", b.ExternalID)
	fmt.Fprintf(&sb, "- **Status:** %s\n", b.Status)
	fmt.Fprintf(&sb, "- **Conclusion:** %s\n", b.Conclusion)
	if !b.CompletedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Completed:** %s\n", b.CompletedAt.UTC().Format(time.RFC3339))
	}
	if b.DurationSeconds > 0 {
		fmt.Fprintf(&sb, "- **Duration:** %s\n", time.Duration(b.DurationSeconds)*time.Second)
	}
	if b.URL != "" {
		fmt.Fprintf(&sb, "\n[Open build](%s)\n", b.URL)
	}

	return subject, sb.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
